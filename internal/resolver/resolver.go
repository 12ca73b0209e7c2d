// Package resolver answers create and read operations entirely from the
// local cache store, exactly as if they came from the remote service. It is
// the path every offline mutation takes: mint an offline identifier, write
// the whole updated fragment back, and keep the experience index and the
// online-edits ledger consistent.
//
// Expected conditions (a missing entity, a rejected input) come back as
// discriminated errors, never panics; only a failing cache store propagates
// upward uncaught.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
)

// ErrNotFound reports that no cache fragment exists for the requested
// identifier. Callers must treat it as "this entity does not exist", never
// as a transient condition to retry.
var ErrNotFound = errors.New("resolver: entity not found")

// Resolver serves offline create/read operations from the cache store.
type Resolver struct {
	store       cache.Store
	experiences *cache.Experiences
	ledger      *Ledger
	logger      *slog.Logger

	// now is the timestamp source; tests substitute a fixed clock. The
	// same instant also seeds offline identifier minting.
	now func() time.Time
}

// New creates a Resolver over the given store.
func New(store cache.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:       store,
		experiences: cache.NewExperiences(store),
		ledger:      NewLedger(store, logger),
		logger:      logger,
		now:         time.Now,
	}
}

// Experiences exposes the typed cache accessors sharing this resolver's store.
func (r *Resolver) Experiences() *cache.Experiences {
	return r.experiences
}

// Ledger exposes the online-edits ledger.
func (r *Resolver) Ledger() *Ledger {
	return r.ledger
}

// CreateExperienceInput is the payload for an offline experience create.
type CreateExperienceInput struct {
	Title       string
	Description string
	// Entries optionally seeds the new experience with initial entries,
	// each a list of field values.
	Entries [][]cache.DataObject
}

// CreateOfflineExperience mints a new offline experience (and offline ids
// for any seed entries), writes the fragment, and appends it to the
// experience index. The title is NFC-normalized so cache comparisons do not
// depend on the platform's composition form.
func (r *Resolver) CreateOfflineExperience(ctx context.Context, input CreateExperienceInput) (*cache.Experience, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("resolver: experience title must not be empty")
	}

	now := r.now()
	id := noteid.NewOffline(now.UnixMilli())

	exp := &cache.Experience{
		ID:          id,
		Title:       norm.NFC.String(input.Title),
		Description: input.Description,
		InsertedAt:  now,
		UpdatedAt:   now,
	}

	for _, data := range input.Entries {
		exp.Entries = append(exp.Entries, &cache.Entry{
			ID:           noteid.NewOffline(now.UnixMilli()),
			ExperienceID: id,
			Data:         data,
			InsertedAt:   now,
			UpdatedAt:    now,
		})
	}

	if err := r.experiences.Put(ctx, exp); err != nil {
		return nil, err
	}

	if err := r.experiences.AppendToIndex(ctx, id); err != nil {
		return nil, err
	}

	r.logger.Info("created offline experience",
		slog.String("id", id.String()),
		slog.String("title", exp.Title),
		slog.Int("entries", len(exp.Entries)),
	)

	return exp, nil
}

// CreateOfflineEntry appends a new entry to the identified experience. The
// child always gets a freshly minted offline id regardless of the parent's
// kind — a just-created child can never yet have a permanent id. The
// parent fragment is replaced whole; existing children are never reordered.
// Permanent parents are additionally recorded in the online-edits ledger
// (an offline parent is by definition already fully unsynced).
//
// No suspension point sits between the parent read and the parent write:
// the store's single-writer connection keeps concurrent resolvers from
// observing a partially written parent/child pair.
func (r *Resolver) CreateOfflineEntry(
	ctx context.Context, parentID noteid.ID, payload []cache.DataObject,
) (*cache.Entry, *cache.Experience, error) {
	parent, err := r.experiences.Get(ctx, parentID)
	if err != nil {
		return nil, nil, err
	}

	if parent == nil {
		return nil, nil, fmt.Errorf("%w: experience %s", ErrNotFound, parentID)
	}

	now := r.now()

	entry := &cache.Entry{
		ID:           noteid.NewOffline(now.UnixMilli()),
		ExperienceID: parentID,
		Data:         payload,
		InsertedAt:   now,
		UpdatedAt:    now,
	}

	parent.Entries = append(parent.Entries, entry)
	parent.UpdatedAt = now

	if err := r.experiences.Put(ctx, parent); err != nil {
		return nil, nil, err
	}

	if !parentID.IsOffline() {
		if err := r.ledger.Mark(ctx, parentID, now); err != nil {
			return nil, nil, err
		}
	}

	r.logger.Info("created offline entry",
		slog.String("entry_id", entry.ID.String()),
		slog.String("experience_id", parentID.String()),
		slog.String("parent_kind", parentID.Kind().String()),
	)

	return entry, parent, nil
}

// GetExperience reads an experience fragment by identifier. Returns
// ErrNotFound when no fragment exists.
func (r *Resolver) GetExperience(ctx context.Context, id noteid.ID) (*cache.Experience, error) {
	exp, err := r.experiences.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp == nil {
		return nil, fmt.Errorf("%w: experience %s", ErrNotFound, id)
	}

	return exp, nil
}

// restoreFallbackDelay bounds how long GetExperienceEventually waits for
// the store's startup restore before reading anyway. One-shot, not a retry
// loop.
const restoreFallbackDelay = 400 * time.Millisecond

// GetExperienceEventually reads an experience, tolerating the window where
// the cache store has not yet finished its asynchronous startup restore: it
// waits for the restore gate or the fixed fallback delay, whichever comes
// first, then issues a single direct read.
func (r *Resolver) GetExperienceEventually(ctx context.Context, id noteid.ID) (*cache.Experience, error) {
	timer := time.NewTimer(restoreFallbackDelay)
	defer timer.Stop()

	select {
	case <-r.store.Restored():
	case <-timer.C:
		r.logger.Debug("cache restore still pending, reading anyway",
			slog.String("id", id.String()))
	case <-ctx.Done():
		return nil, fmt.Errorf("resolver: read canceled: %w", ctx.Err())
	}

	return r.GetExperience(ctx, id)
}

// DeleteExperience removes an experience from the cache: fragment, index
// position, and any ledger record. Deleting shrinks the unsynced set when
// the experience was offline.
func (r *Resolver) DeleteExperience(ctx context.Context, id noteid.ID) error {
	exp, err := r.experiences.Get(ctx, id)
	if err != nil {
		return err
	}

	if exp == nil {
		return fmt.Errorf("%w: experience %s", ErrNotFound, id)
	}

	if err := r.experiences.Delete(ctx, id); err != nil {
		return err
	}

	if err := r.experiences.RemoveFromIndex(ctx, id); err != nil {
		return err
	}

	if err := r.ledger.Clear(ctx, id); err != nil {
		return err
	}

	r.logger.Info("deleted experience", slog.String("id", id.String()))

	return nil
}
