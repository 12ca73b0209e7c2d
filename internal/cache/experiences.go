package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fieldnote/internal/noteid"
)

// Query signatures for the typed accessors. The index is the UI-visible
// ordered list of experience ids; prefetch rows are one-shot and evicted
// after they are folded into fragments.
const (
	SigExperienceIndex = "query:experienceIndex"
	SigPrefetchPrefix  = "query:prefetchExperiences"
)

// Experiences provides typed access to experience fragments and the
// experience index on top of the raw Store contract.
type Experiences struct {
	store Store
}

// NewExperiences wraps a Store with the typed experience accessors.
func NewExperiences(store Store) *Experiences {
	return &Experiences{store: store}
}

// Get retrieves an experience fragment by id. Returns (nil, nil) when the
// fragment is absent — the resolver layer maps that to ErrNotFound.
func (x *Experiences) Get(ctx context.Context, id noteid.ID) (*Experience, error) {
	data, err := x.store.ReadFragment(ctx, noteid.CacheKey(noteid.TypeExperience, id))
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, nil
	}

	return UnmarshalExperience(data)
}

// Put writes the whole experience fragment, replacing any previous value.
func (x *Experiences) Put(ctx context.Context, e *Experience) error {
	data, err := MarshalExperience(e)
	if err != nil {
		return err
	}

	return x.store.WriteFragment(ctx, e.Key(), data)
}

// Delete removes the experience fragment. Used transiently during
// reconciliation when an offline-keyed row is rewritten under its
// permanent id.
func (x *Experiences) Delete(ctx context.Context, id noteid.ID) error {
	return x.store.DeleteFragment(ctx, noteid.CacheKey(noteid.TypeExperience, id))
}

// IndexIDs returns the ordered experience id list, or nil when no index has
// been written yet.
func (x *Experiences) IndexIDs(ctx context.Context) ([]noteid.ID, error) {
	data, err := x.store.ReadQuery(ctx, SigExperienceIndex, "")
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, nil
	}

	var ids []noteid.ID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("cache: decode experience index: %w", err)
	}

	return ids, nil
}

// WriteIndex replaces the ordered experience id list.
func (x *Experiences) WriteIndex(ctx context.Context, ids []noteid.ID) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("cache: encode experience index: %w", err)
	}

	return x.store.WriteQuery(ctx, SigExperienceIndex, "", data)
}

// AppendToIndex adds an id to the end of the index unless already present.
func (x *Experiences) AppendToIndex(ctx context.Context, id noteid.ID) error {
	ids, err := x.IndexIDs(ctx)
	if err != nil {
		return err
	}

	for _, existing := range ids {
		if existing.Equal(id) {
			return nil
		}
	}

	return x.WriteIndex(ctx, append(ids, id))
}

// ReplaceInIndex rewrites oldID to newID in place, preserving the list
// position established before reconciliation. A missing oldID is a no-op.
func (x *Experiences) ReplaceInIndex(ctx context.Context, oldID, newID noteid.ID) error {
	ids, err := x.IndexIDs(ctx)
	if err != nil {
		return err
	}

	replaced := false

	for i := range ids {
		if ids[i].Equal(oldID) {
			ids[i] = newID
			replaced = true
		}
	}

	if !replaced {
		return nil
	}

	return x.WriteIndex(ctx, ids)
}

// RemoveFromIndex drops an id from the index. Used when the user deletes an
// experience.
func (x *Experiences) RemoveFromIndex(ctx context.Context, id noteid.ID) error {
	ids, err := x.IndexIDs(ctx)
	if err != nil {
		return err
	}

	kept := ids[:0]

	for _, existing := range ids {
		if !existing.Equal(id) {
			kept = append(kept, existing)
		}
	}

	if len(kept) == len(ids) {
		return nil
	}

	return x.WriteIndex(ctx, kept)
}

// RecordPrefetchResult stores the one-shot query row for a prefetch run,
// keyed by the requested id set. The row exists only while the payloads are
// folded into fragments; EvictPrefetchResults removes it afterward.
func (x *Experiences) RecordPrefetchResult(ctx context.Context, ids []noteid.ID) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("cache: encode prefetch result: %w", err)
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	return x.store.WriteQuery(ctx, SigPrefetchPrefix, strings.Join(raw, ","), data)
}

// EvictPrefetchResults drops all prefetch query rows. Prefetch results never
// serve reads across runs.
func (x *Experiences) EvictPrefetchResults(ctx context.Context) (int64, error) {
	return x.store.EvictQueries(ctx, SigPrefetchPrefix)
}

// ListExperienceIDs returns the ids of all experience fragments currently
// in the cache, in write order. The unsynced-set scan prefers the index but
// falls back to this when no index row exists.
func (x *Experiences) ListExperienceIDs(ctx context.Context) ([]noteid.ID, error) {
	keys, err := x.store.ListFragmentKeys(ctx, noteid.TypeExperience+":")
	if err != nil {
		return nil, err
	}

	ids := make([]noteid.ID, 0, len(keys))

	for _, key := range keys {
		_, id, ok := noteid.ParseCacheKey(key)
		if !ok {
			continue
		}

		ids = append(ids, id)
	}

	return ids, nil
}
