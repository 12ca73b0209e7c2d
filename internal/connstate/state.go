// Package connstate tracks connectivity, the unsaved-item count, and the
// prefetch sub-state behind a pure reducer. The reducer never performs I/O
// and never fails; everything with a side effect lives in the Effects
// runner, which observes reduced states and dispatches follow-up actions.
package connstate

import "fieldnote/internal/noteid"

// PrefetchState is the prefetch sub-state. Exactly three variants exist
// and transitions only move forward (never → fetch-now → done), except for
// the idempotent reset back to PrefetchNever.
type PrefetchState interface {
	isPrefetchState()
}

// PrefetchNever means no prefetch has been requested or an earlier request
// was reset.
type PrefetchNever struct{}

// PrefetchFetchNow carries the experience ids a prefetch should load.
type PrefetchFetchNow struct {
	IDs []noteid.ID
}

// PrefetchDone means a prefetch completed; further requests are ignored
// until a reset.
type PrefetchDone struct{}

func (PrefetchNever) isPrefetchState()    {}
func (PrefetchFetchNow) isPrefetchState() {}
func (PrefetchDone) isPrefetchState()     {}

// State is the full machine state. Reduce treats it as an immutable
// snapshot: every transition returns a new value, never mutates the
// receiver's slices or maps in place.
type State struct {
	// HasConnection mirrors the most recent connectivity signal.
	HasConnection bool
	// UnsavedCount is meaningful only when HasUnsavedCount is set; the
	// pair models "count or not yet known".
	UnsavedCount    int
	HasUnsavedCount bool
	// RenderReady flips to true once the cache store's startup restore
	// finishes and stays true.
	RenderReady bool
	// HasUser reports whether an authenticated user is present. Without
	// one, prefetch requests reset and the disconnect-zeroes-count rule
	// is skipped.
	HasUser bool

	Prefetch PrefetchState

	// pendingPrefetchIDs remembers a prefetch request that arrived while
	// disconnected, so a later reconnect can promote it to fetch-now.
	pendingPrefetchIDs []noteid.ID
}

// NewState returns the initial state: disconnected, count unknown,
// prefetch never fetched.
func NewState() State {
	return State{Prefetch: PrefetchNever{}}
}

// Action is a dispatched event. Unrecognized actions reduce to the
// unchanged state.
type Action interface {
	isAction()
}

// ConnectionChanged reports a connectivity transition, optionally with a
// fresh unsaved count computed alongside it.
type ConnectionChanged struct {
	Connected       bool
	UnsavedCount    int
	HasUnsavedCount bool
}

// CachePersisted is dispatched once, when the cache store finishes its
// startup restore.
type CachePersisted struct {
	Connected       bool
	UnsavedCount    int
	HasUnsavedCount bool
}

// ExperiencesToPrefetch requests a prefetch of the given ids. A nil or
// empty set is an idempotent reset to PrefetchNever.
type ExperiencesToPrefetch struct {
	IDs []noteid.ID
}

// DoneFetchingExperiences marks the in-flight prefetch complete.
type DoneFetchingExperiences struct{}

// SetUnsavedCount overrides the unsaved count after an asynchronous
// recount.
type SetUnsavedCount struct {
	Count int
}

// UserChanged reports login or logout.
type UserChanged struct {
	HasUser bool
}

func (ConnectionChanged) isAction()       {}
func (CachePersisted) isAction()          {}
func (ExperiencesToPrefetch) isAction()   {}
func (DoneFetchingExperiences) isAction() {}
func (SetUnsavedCount) isAction()         {}
func (UserChanged) isAction()             {}

// Reduce applies an action to a state snapshot and returns the next
// state. It is pure: no I/O, no panics, and each action touches only the
// fields it owns, so late-arriving follow-ups (a stale recount landing
// after a newer connectivity change) cannot clobber unrelated fields.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case ConnectionChanged:
		s.HasConnection = a.Connected

		if a.HasUnsavedCount {
			s.UnsavedCount = a.UnsavedCount
			s.HasUnsavedCount = true
		}

		if !a.Connected && s.HasUser {
			// Nothing is "waiting for a connection" while disconnected.
			s.UnsavedCount = 0
			s.HasUnsavedCount = true
		}

		if a.Connected {
			if _, never := s.Prefetch.(PrefetchNever); never && len(s.pendingPrefetchIDs) > 0 {
				s.Prefetch = PrefetchFetchNow{IDs: s.pendingPrefetchIDs}
				s.pendingPrefetchIDs = nil
			}
		}

		return s

	case CachePersisted:
		s.RenderReady = true

		if s.HasConnection {
			s.HasConnection = a.Connected

			if a.HasUnsavedCount {
				s.UnsavedCount = a.UnsavedCount
				s.HasUnsavedCount = true
			}
		}

		return s

	case ExperiencesToPrefetch:
		if !s.HasUser || len(a.IDs) == 0 {
			// Reset even when it discards an in-flight fetch-now.
			s.Prefetch = PrefetchNever{}
			s.pendingPrefetchIDs = nil

			return s
		}

		ids := make([]noteid.ID, len(a.IDs))
		copy(ids, a.IDs)

		if !s.HasConnection {
			// Prefetching never begins offline; remember the request for
			// the next reconnect.
			s.Prefetch = PrefetchNever{}
			s.pendingPrefetchIDs = ids

			return s
		}

		s.Prefetch = PrefetchFetchNow{IDs: ids}

		return s

	case DoneFetchingExperiences:
		s.Prefetch = PrefetchDone{}

		return s

	case SetUnsavedCount:
		s.UnsavedCount = a.Count
		s.HasUnsavedCount = true

		return s

	case UserChanged:
		s.HasUser = a.HasUser

		return s

	default:
		return s
	}
}
