package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// --- Wire types ---

// Experience is the server's representation of an experience. All ids are
// permanent; ClientID echoes the offline id the client submitted, which is
// how the reconciliation routine matches responses back to cache rows.
type Experience struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Entries     []Entry   `json:"entries"`
	InsertedAt  time.Time `json:"insertedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Entry is the server's representation of an entry.
type Entry struct {
	ID           string       `json:"id"`
	ClientID     string       `json:"clientId,omitempty"`
	ExperienceID string       `json:"experienceId"`
	Data         []DataObject `json:"data"`
	InsertedAt   time.Time    `json:"insertedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// DataObject is a single field value in an entry.
type DataObject struct {
	FieldName string `json:"fieldName"`
	Value     string `json:"value"`
}

// ExperienceInput is the payload for creating one offline experience,
// children included, purely-local bookkeeping stripped.
type ExperienceInput struct {
	ClientID    string       `json:"clientId"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Entries     []EntryInput `json:"entries"`
	InsertedAt  time.Time    `json:"insertedAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// EntryInput is the payload for creating one offline entry.
type EntryInput struct {
	ClientID   string       `json:"clientId"`
	Data       []DataObject `json:"data"`
	InsertedAt time.Time    `json:"insertedAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// CreateError is the server's structured rejection for one submitted
// entity, keyed by the client-side offline id. Field-level messages live in
// Errors; "" keys the whole entity.
type CreateError struct {
	ClientID string            `json:"clientId"`
	Errors   map[string]string `json:"errors"`
}

// ExperienceResult is one element of the bulk-create response: either the
// saved experience or a structured error, never both.
type ExperienceResult struct {
	Experience *Experience  `json:"experience,omitempty"`
	Error      *CreateError `json:"error,omitempty"`
}

// EntryBatchInput submits offline entries for one existing (permanent)
// parent experience.
type EntryBatchInput struct {
	ExperienceID string       `json:"experienceId"`
	Entries      []EntryInput `json:"entries"`
}

// EntryResult is one element of a batch response: saved entry or error.
type EntryResult struct {
	Entry *Entry       `json:"entry,omitempty"`
	Error *CreateError `json:"error,omitempty"`
}

// EntryBatchResult is the per-parent response, keyed by the parent's
// permanent id.
type EntryBatchResult struct {
	ExperienceID string        `json:"experienceId"`
	Results      []EntryResult `json:"results"`
}

// User is the authenticated user record stored by login.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// --- Operations ---

// SaveOfflineExperiences submits offline-created experiences (children
// included) to the bulk-create operation. The response carries, for each
// submitted experience in order, either the saved entity or a structured
// error keyed by its client id. A transport failure fails the whole call;
// per-entity validation failures do not.
func (c *Client) SaveOfflineExperiences(ctx context.Context, inputs []ExperienceInput) ([]ExperienceResult, error) {
	c.logger.Info("saving offline experiences", slog.Int("count", len(inputs)))

	var resp struct {
		Results []ExperienceResult `json:"results"`
	}

	req := struct {
		Experiences []ExperienceInput `json:"experiences"`
	}{Experiences: inputs}

	if err := c.doJSON(ctx, http.MethodPost, "/experiences/offline", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) != len(inputs) {
		return nil, fmt.Errorf("remote: bulk create returned %d results for %d experiences",
			len(resp.Results), len(inputs))
	}

	return resp.Results, nil
}

// CreateEntries submits offline-created entries for existing permanent
// parents. Responses are keyed by parent id; entry-level errors carry the
// entry's client id.
func (c *Client) CreateEntries(ctx context.Context, batches []EntryBatchInput) ([]EntryBatchResult, error) {
	c.logger.Info("creating entries for existing experiences", slog.Int("parents", len(batches)))

	var resp struct {
		Batches []EntryBatchResult `json:"batches"`
	}

	req := struct {
		Batches []EntryBatchInput `json:"batches"`
	}{Batches: batches}

	if err := c.doJSON(ctx, http.MethodPost, "/entries/batch", req, &resp); err != nil {
		return nil, err
	}

	return resp.Batches, nil
}

// PrefetchExperiences fetches full experience payloads for the requested
// ids so they are readable offline afterwards.
func (c *Client) PrefetchExperiences(ctx context.Context, ids []string) ([]Experience, error) {
	c.logger.Info("prefetching experiences", slog.Int("count", len(ids)))

	var resp struct {
		Experiences []Experience `json:"experiences"`
	}

	req := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}

	if err := c.doJSON(ctx, http.MethodPost, "/experiences/prefetch", req, &resp); err != nil {
		return nil, err
	}

	return resp.Experiences, nil
}

// Me returns the authenticated user record. Login persists it via the
// userfile store; everything else reads it from there.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User

	if err := c.doJSON(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}

	return &user, nil
}
