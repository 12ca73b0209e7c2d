package sync

import (
	"context"
	"fmt"

	"fieldnote/internal/cache"
	"fieldnote/internal/noteid"
	"fieldnote/internal/remote"
	"fieldnote/internal/resolver"
)

// StorePrefetched writes server payloads into the local cache so they stay
// readable offline. The server copy wins wholesale for prefetched content;
// these are permanent-id rows, never pending local work.
func StorePrefetched(ctx context.Context, r *resolver.Resolver, exps []remote.Experience) error {
	experiences := r.Experiences()

	ids := make([]noteid.ID, len(exps))

	for i := range exps {
		ids[i] = noteid.New(exps[i].ID)
		if ids[i].IsOffline() {
			return fmt.Errorf("sync: prefetched experience carries offline id %s", ids[i])
		}
	}

	if err := experiences.RecordPrefetchResult(ctx, ids); err != nil {
		return err
	}

	for i := range exps {
		w := &exps[i]
		id := ids[i]

		exp := &cache.Experience{
			ID:          id,
			Title:       w.Title,
			Description: w.Description,
			InsertedAt:  w.InsertedAt,
			UpdatedAt:   w.UpdatedAt,
		}

		for j := range w.Entries {
			exp.Entries = append(exp.Entries, fromWireEntry(&w.Entries[j], id))
		}

		if err := experiences.Put(ctx, exp); err != nil {
			return err
		}

		if err := experiences.AppendToIndex(ctx, id); err != nil {
			return err
		}
	}

	// The query row is one-shot: once the fragments hold the payloads it
	// must not serve reads across runs.
	if _, err := experiences.EvictPrefetchResults(ctx); err != nil {
		return err
	}

	return nil
}
