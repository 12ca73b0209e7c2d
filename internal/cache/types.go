package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"fieldnote/internal/noteid"
)

// Experience is a user-visible tracker: a titled record owning an ordered,
// append-only collection of entries. The identifier's kind (offline vs
// permanent) is determined purely by its lexical form.
type Experience struct {
	ID          noteid.ID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Entries     []*Entry  `json:"entries"`
	InsertedAt  time.Time `json:"insertedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// SyncFailure carries the server's structured rejection from the last
	// upload attempt, keyed to this experience's client id. Cleared on a
	// successful reconciliation.
	SyncFailure *SyncFailure `json:"syncFailure,omitempty"`
}

// Entry is a child record of an Experience.
type Entry struct {
	ID           noteid.ID    `json:"id"`
	ExperienceID noteid.ID    `json:"experienceId"`
	Data         []DataObject `json:"data"`
	InsertedAt   time.Time    `json:"insertedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`

	// SyncFailure holds field-level errors from the last upload attempt.
	// An entry with a failure keeps its offline id and stays unsynced.
	SyncFailure *SyncFailure `json:"syncFailure,omitempty"`
}

// DataObject is a single field value captured in an entry.
type DataObject struct {
	FieldName string `json:"fieldName"`
	Value     string `json:"value"`
}

// SyncFailure is a structured, field-level rejection from the remote
// service. Attached per entity so the UI can render inline errors; it never
// blocks reconciliation of sibling entities.
type SyncFailure struct {
	// Errors maps a field name (or "" for the whole entity) to a message.
	Errors map[string]string `json:"errors"`
}

// Error implements the error interface for logging convenience.
func (f *SyncFailure) Error() string {
	return fmt.Sprintf("sync rejected: %d field error(s)", len(f.Errors))
}

// Key returns the experience's fragment cache key.
func (e *Experience) Key() string {
	return noteid.CacheKey(noteid.TypeExperience, e.ID)
}

// Key returns the entry's fragment cache key.
func (e *Entry) Key() string {
	return noteid.CacheKey(noteid.TypeEntry, e.ID)
}

// IsOffline reports whether the experience was created offline and not yet
// reconciled.
func (e *Experience) IsOffline() bool {
	return e.ID.IsOffline()
}

// OfflineEntries returns the experience's offline-created entries, in
// collection order.
func (e *Experience) OfflineEntries() []*Entry {
	var offline []*Entry

	for _, entry := range e.Entries {
		if entry.ID.IsOffline() {
			offline = append(offline, entry)
		}
	}

	return offline
}

// MarshalExperience encodes an experience for fragment storage.
func MarshalExperience(e *Experience) (json.RawMessage, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cache: encode experience %s: %w", e.ID, err)
	}

	return data, nil
}

// UnmarshalExperience decodes an experience fragment.
func UnmarshalExperience(data json.RawMessage) (*Experience, error) {
	var e Experience
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cache: decode experience: %w", err)
	}

	return &e, nil
}
