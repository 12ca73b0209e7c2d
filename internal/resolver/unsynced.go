package resolver

import (
	"context"
	"log/slog"
)

// UnsyncedSet is the derived view of everything awaiting upload. It is
// never stored: each derivation walks the cached experiences, so the
// set can never drift from the fragments it summarizes.
type UnsyncedSet struct {
	// Offline holds experiences that exist only locally, index order.
	Offline []UnsyncedExperience
	// PartOffline holds permanent experiences carrying offline entries,
	// index order.
	PartOffline []UnsyncedExperience
}

// UnsyncedExperience pairs an experience with its offline entry count.
type UnsyncedExperience struct {
	ID           string
	Title        string
	EntriesTotal int
	// EntriesOffline counts children still carrying offline ids. For a
	// wholly offline experience this equals EntriesTotal.
	EntriesOffline int
}

// Count returns the number of unsynced items: one per offline experience
// plus one per offline entry under a permanent parent. This is the figure
// surfaced to the user as "N unsaved".
func (s UnsyncedSet) Count() int {
	n := len(s.Offline)
	for _, e := range s.PartOffline {
		n += e.EntriesOffline
	}

	return n
}

// Empty reports whether nothing awaits upload.
func (s UnsyncedSet) Empty() bool {
	return len(s.Offline) == 0 && len(s.PartOffline) == 0
}

// Unsynced derives the current unsynced set. Membership is decided purely
// by identifier inspection: an offline experience id marks the whole
// experience, an offline entry id under a permanent parent marks that
// parent as partly offline. Experiences listed in the online-edits ledger
// but carrying no offline entries are included as partly offline with a
// zero entry count, so an edit-only change still surfaces.
//
// The walk covers the index plus any fragment the index misses, so an
// experience whose index append failed still counts.
func (r *Resolver) Unsynced(ctx context.Context) (UnsyncedSet, error) {
	ids, err := r.experiences.IndexIDs(ctx)
	if err != nil {
		return UnsyncedSet{}, err
	}

	// Fragments can outlive their index row; append the orphans after the
	// indexed ids, in fragment write order.
	all, err := r.experiences.ListExperienceIDs(ctx)
	if err != nil {
		return UnsyncedSet{}, err
	}

	indexed := make(map[string]bool, len(ids))
	for _, id := range ids {
		indexed[id.String()] = true
	}

	for _, id := range all {
		if !indexed[id.String()] {
			ids = append(ids, id)
		}
	}

	ledgered, err := r.ledger.IDs(ctx)
	if err != nil {
		return UnsyncedSet{}, err
	}

	inLedger := make(map[string]bool, len(ledgered))
	for _, id := range ledgered {
		inLedger[id.String()] = true
	}

	var set UnsyncedSet

	for _, id := range ids {
		exp, err := r.experiences.Get(ctx, id)
		if err != nil {
			return UnsyncedSet{}, err
		}

		if exp == nil {
			// Index entry whose fragment is gone; skip rather than fail
			// the whole derivation.
			r.logger.Warn("index references missing experience fragment",
				slog.String("id", id.String()))

			continue
		}

		offline := len(exp.OfflineEntries())

		summary := UnsyncedExperience{
			ID:             id.String(),
			Title:          exp.Title,
			EntriesTotal:   len(exp.Entries),
			EntriesOffline: offline,
		}

		switch {
		case id.IsOffline():
			set.Offline = append(set.Offline, summary)
		case offline > 0 || inLedger[id.String()]:
			set.PartOffline = append(set.PartOffline, summary)
		}
	}

	return set, nil
}
