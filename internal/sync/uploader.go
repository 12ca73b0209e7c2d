// Package sync implements the upload and reconciliation routine: it drains
// the unsynced set to the remote service and rewrites the local cache so
// offline identifiers are replaced by the identifiers the server assigned.
// Partial success is first-class: entities the server rejects keep their
// offline ids and their structured errors, and stay in the unsynced set for
// the next explicitly triggered run.
package sync

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"fieldnote/internal/broadcast"
	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
	"fieldnote/internal/remote"
	"fieldnote/internal/resolver"
)

// RemoteService is the slice of the remote client the uploader needs.
type RemoteService interface {
	SaveOfflineExperiences(ctx context.Context, inputs []remote.ExperienceInput) ([]remote.ExperienceResult, error)
	CreateEntries(ctx context.Context, batches []remote.EntryBatchInput) ([]remote.EntryBatchResult, error)
}

// Uploader drains offline-created entities to the remote service.
type Uploader struct {
	resolver *resolver.Resolver
	remote   RemoteService
	bus      *broadcast.Broadcaster
	logger   *slog.Logger
}

// NewUploader creates an Uploader. bus may be nil; no completion event is
// published then.
func NewUploader(r *resolver.Resolver, svc RemoteService, bus *broadcast.Broadcaster, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{resolver: r, remote: svc, bus: bus, logger: logger}
}

// Result summarizes one upload run.
type Result struct {
	SavedExperiences  int
	SavedEntries      int
	FailedExperiences int
	FailedEntries     int
}

// Clean reports whether the run completed without a single rejection.
func (r Result) Clean() bool {
	return r.FailedExperiences == 0 && r.FailedEntries == 0
}

// Upload runs the reconciliation routine once. An empty unsynced set is a
// no-op. The two remote submissions (bulk experience create, entry batches
// for existing parents) run concurrently; cache rewrites happen afterwards
// on the store's single writer. Rejected entities are not retried; the user
// triggers the next run.
func (u *Uploader) Upload(ctx context.Context) (Result, error) {
	set, err := u.resolver.Unsynced(ctx)
	if err != nil {
		return Result{}, err
	}

	if set.Empty() {
		u.logger.Info("nothing to upload")

		return Result{}, nil
	}

	offlineParents, err := u.loadExperiences(ctx, set.Offline)
	if err != nil {
		return Result{}, err
	}

	partParents, err := u.loadExperiences(ctx, set.PartOffline)
	if err != nil {
		return Result{}, err
	}

	u.logger.Info("uploading unsynced items",
		slog.Int("offline_experiences", len(offlineParents)),
		slog.Int("partly_offline_experiences", len(partParents)),
	)

	var (
		expResults   []remote.ExperienceResult
		batchResults []remote.EntryBatchResult
	)

	g, gctx := errgroup.WithContext(ctx)

	if len(offlineParents) > 0 {
		g.Go(func() error {
			var err error
			expResults, err = u.remote.SaveOfflineExperiences(gctx, experienceInputs(offlineParents))
			return err
		})
	}

	batches, batchParents := entryBatches(partParents)
	if len(batches) > 0 {
		g.Go(func() error {
			var err error
			batchResults, err = u.remote.CreateEntries(gctx, batches)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var result Result

	if err := u.reconcileExperiences(ctx, offlineParents, expResults, &result); err != nil {
		return result, err
	}

	if err := u.reconcileEntries(ctx, batchParents, batchResults, &result); err != nil {
		return result, err
	}

	// Parents that had a ledger record but nothing left to submit are
	// reconciled by this run too.
	for _, p := range partParents {
		if len(p.OfflineEntries()) == 0 {
			if err := u.resolver.Ledger().Clear(ctx, p.ID); err != nil {
				return result, err
			}
		}
	}

	u.logger.Info("upload finished",
		slog.Int("saved_experiences", result.SavedExperiences),
		slog.Int("saved_entries", result.SavedEntries),
		slog.Int("failed_experiences", result.FailedExperiences),
		slog.Int("failed_entries", result.FailedEntries),
	)

	if u.bus != nil {
		u.bus.Publish(broadcast.Custom{Kind: broadcast.KindUploadDone, Payload: result})
	}

	return result, nil
}

func (u *Uploader) loadExperiences(ctx context.Context, summaries []resolver.UnsyncedExperience) ([]*cache.Experience, error) {
	exps := make([]*cache.Experience, 0, len(summaries))

	for _, s := range summaries {
		exp, err := u.resolver.GetExperience(ctx, noteid.New(s.ID))
		if err != nil {
			return nil, err
		}

		exps = append(exps, exp)
	}

	return exps, nil
}

// experienceInputs builds the bulk-create payload: full representations,
// children included, local bookkeeping (sync failures) stripped.
func experienceInputs(exps []*cache.Experience) []remote.ExperienceInput {
	inputs := make([]remote.ExperienceInput, len(exps))

	for i, exp := range exps {
		in := remote.ExperienceInput{
			ClientID:    exp.ID.String(),
			Title:       exp.Title,
			Description: exp.Description,
			InsertedAt:  exp.InsertedAt,
			UpdatedAt:   exp.UpdatedAt,
		}

		for _, entry := range exp.Entries {
			in.Entries = append(in.Entries, remote.EntryInput{
				ClientID:   entry.ID.String(),
				Data:       toWireData(entry.Data),
				InsertedAt: entry.InsertedAt,
				UpdatedAt:  entry.UpdatedAt,
			})
		}

		inputs[i] = in
	}

	return inputs
}

// entryBatches builds per-parent payloads of offline entries for permanent
// parents, returning alongside them the parents keyed by id for response
// matching. Parents with no offline entries produce no batch.
func entryBatches(parents []*cache.Experience) ([]remote.EntryBatchInput, map[string]*cache.Experience) {
	var batches []remote.EntryBatchInput

	byID := make(map[string]*cache.Experience, len(parents))

	for _, parent := range parents {
		offline := parent.OfflineEntries()
		if len(offline) == 0 {
			continue
		}

		byID[parent.ID.String()] = parent

		batch := remote.EntryBatchInput{ExperienceID: parent.ID.String()}
		for _, entry := range offline {
			batch.Entries = append(batch.Entries, remote.EntryInput{
				ClientID:   entry.ID.String(),
				Data:       toWireData(entry.Data),
				InsertedAt: entry.InsertedAt,
				UpdatedAt:  entry.UpdatedAt,
			})
		}

		batches = append(batches, batch)
	}

	return batches, byID
}

// reconcileExperiences rewrites the cache for each bulk-create result. A
// saved experience replaces its offline-keyed row in place: the new
// fragment is written, the old one deleted, and the index position
// preserved, so no two rows ever represent the same logical entity. A
// rejected experience keeps its offline id and gains the server's
// structured error.
func (u *Uploader) reconcileExperiences(
	ctx context.Context, submitted []*cache.Experience, results []remote.ExperienceResult, result *Result,
) error {
	for i, res := range results {
		old := submitted[i]

		switch {
		case res.Experience != nil:
			saved := fromWireExperience(res.Experience, old)

			x := u.resolver.Experiences()

			if err := x.Put(ctx, saved); err != nil {
				return err
			}

			if err := x.Delete(ctx, old.ID); err != nil {
				return err
			}

			if err := x.ReplaceInIndex(ctx, old.ID, saved.ID); err != nil {
				return err
			}

			result.SavedExperiences++
			result.SavedEntries += len(saved.Entries)

			u.logger.Info("experience reconciled",
				slog.String("offline_id", old.ID.String()),
				slog.String("id", saved.ID.String()),
			)

		case res.Error != nil:
			old.SyncFailure = &cache.SyncFailure{Errors: res.Error.Errors}

			if err := u.resolver.Experiences().Put(ctx, old); err != nil {
				return err
			}

			result.FailedExperiences++

			u.logger.Warn("experience rejected",
				slog.String("offline_id", old.ID.String()),
				slog.Int("field_errors", len(res.Error.Errors)),
			)

		default:
			return fmt.Errorf("sync: result %d carries neither experience nor error", i)
		}
	}

	return nil
}

// reconcileEntries applies per-parent entry batch results. Each saved entry
// replaces its offline sibling at the same position; each rejected entry
// keeps its offline id and gains the server's field errors. The parent's
// ledger record is cleared only when every submitted entry succeeded.
func (u *Uploader) reconcileEntries(
	ctx context.Context, parents map[string]*cache.Experience, results []remote.EntryBatchResult, result *Result,
) error {
	for _, batch := range results {
		parent, ok := parents[batch.ExperienceID]
		if !ok {
			u.logger.Warn("batch result for unknown experience",
				slog.String("id", batch.ExperienceID))

			continue
		}

		failed := 0

		for _, res := range batch.Results {
			switch {
			case res.Entry != nil:
				if !replaceEntry(parent, res.Entry.ClientID, fromWireEntry(res.Entry, parent.ID)) {
					u.logger.Warn("saved entry does not match any offline child",
						slog.String("experience_id", batch.ExperienceID),
						slog.String("client_id", res.Entry.ClientID),
					)

					continue
				}

				result.SavedEntries++

			case res.Error != nil:
				attachEntryFailure(parent, res.Error)
				failed++
				result.FailedEntries++
			}
		}

		if err := u.resolver.Experiences().Put(ctx, parent); err != nil {
			return err
		}

		if failed == 0 {
			if err := u.resolver.Ledger().Clear(ctx, parent.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// replaceEntry swaps the offline child whose id matches clientID for the
// saved entry, keeping its position. Reports whether a match was found.
func replaceEntry(parent *cache.Experience, clientID string, saved *cache.Entry) bool {
	for i, entry := range parent.Entries {
		if entry.ID.String() == clientID {
			parent.Entries[i] = saved

			return true
		}
	}

	return false
}

func attachEntryFailure(parent *cache.Experience, reject *remote.CreateError) {
	for _, entry := range parent.Entries {
		if entry.ID.String() == reject.ClientID {
			entry.SyncFailure = &cache.SyncFailure{Errors: reject.Errors}

			return
		}
	}
}

// fromWireExperience converts a server experience to its cache shape. The
// child ordering the user saw before reconciliation is preserved: server
// entries are matched back by client id into the submitted order, with any
// unmatched server entries appended.
func fromWireExperience(w *remote.Experience, old *cache.Experience) *cache.Experience {
	exp := &cache.Experience{
		ID:          noteid.New(w.ID),
		Title:       w.Title,
		Description: w.Description,
		InsertedAt:  w.InsertedAt,
		UpdatedAt:   w.UpdatedAt,
	}

	byClientID := make(map[string]*remote.Entry, len(w.Entries))
	for i := range w.Entries {
		byClientID[w.Entries[i].ClientID] = &w.Entries[i]
	}

	used := make(map[string]bool, len(w.Entries))

	for _, entry := range old.Entries {
		if saved, ok := byClientID[entry.ID.String()]; ok {
			exp.Entries = append(exp.Entries, fromWireEntry(saved, exp.ID))
			used[saved.ClientID] = true
		}
	}

	for i := range w.Entries {
		if !used[w.Entries[i].ClientID] {
			exp.Entries = append(exp.Entries, fromWireEntry(&w.Entries[i], exp.ID))
		}
	}

	return exp
}

func fromWireEntry(w *remote.Entry, parentID noteid.ID) *cache.Entry {
	return &cache.Entry{
		ID:           noteid.New(w.ID),
		ExperienceID: parentID,
		Data:         fromWireData(w.Data),
		InsertedAt:   w.InsertedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

// toWireData and fromWireData bridge the cache and wire field-value types,
// which are structurally identical but deliberately separate.
func toWireData(data []cache.DataObject) []remote.DataObject {
	if data == nil {
		return nil
	}

	out := make([]remote.DataObject, len(data))
	for i, d := range data {
		out[i] = remote.DataObject(d)
	}

	return out
}

func fromWireData(data []remote.DataObject) []cache.DataObject {
	if data == nil {
		return nil
	}

	out := make([]cache.DataObject, len(data))
	for i, d := range data {
		out[i] = cache.DataObject(d)
	}

	return out
}
