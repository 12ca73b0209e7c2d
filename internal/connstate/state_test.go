package connstate

import (
	"testing"

	"fieldnote/internal/noteid"
)

func ids(raws ...string) []noteid.ID {
	out := make([]noteid.ID, len(raws))
	for i, r := range raws {
		out[i] = noteid.New(r)
	}

	return out
}

func TestReduceConnectionChanged(t *testing.T) {
	s := NewState()
	s = Reduce(s, UserChanged{HasUser: true})

	s = Reduce(s, ConnectionChanged{Connected: true, UnsavedCount: 4, HasUnsavedCount: true})
	if !s.HasConnection {
		t.Error("not connected after connect")
	}
	if s.UnsavedCount != 4 || !s.HasUnsavedCount {
		t.Errorf("count = %d/%v, want 4/true", s.UnsavedCount, s.HasUnsavedCount)
	}

	// Disconnecting with a user zeroes the count.
	s = Reduce(s, ConnectionChanged{Connected: false})
	if s.HasConnection {
		t.Error("still connected after disconnect")
	}
	if s.UnsavedCount != 0 || !s.HasUnsavedCount {
		t.Errorf("count = %d/%v, want 0/true", s.UnsavedCount, s.HasUnsavedCount)
	}
}

func TestReduceDisconnectWithoutUserKeepsCount(t *testing.T) {
	s := NewState()
	s = Reduce(s, ConnectionChanged{Connected: true, UnsavedCount: 2, HasUnsavedCount: true})

	s = Reduce(s, ConnectionChanged{Connected: false})
	if s.UnsavedCount != 2 {
		t.Errorf("count = %d, want untouched 2", s.UnsavedCount)
	}
}

func TestReduceCachePersisted(t *testing.T) {
	s := NewState()

	// Disconnected: only renderReady flips.
	s = Reduce(s, CachePersisted{Connected: true, UnsavedCount: 9, HasUnsavedCount: true})
	if !s.RenderReady {
		t.Error("renderReady not set")
	}
	if s.HasConnection || s.HasUnsavedCount {
		t.Errorf("disconnected persist changed connection state: %+v", s)
	}

	// Connected: connection and count update too.
	s.HasConnection = true
	s = Reduce(s, CachePersisted{Connected: true, UnsavedCount: 9, HasUnsavedCount: true})
	if s.UnsavedCount != 9 || !s.HasUnsavedCount {
		t.Errorf("count = %d/%v, want 9/true", s.UnsavedCount, s.HasUnsavedCount)
	}
}

func TestReducePrefetchRequiresUserAndIDs(t *testing.T) {
	for _, tc := range []struct {
		name string
		prep func(State) State
		ids  []noteid.ID
	}{
		{"no user", func(s State) State { return s }, ids("exp-1")},
		{"nil ids", func(s State) State { return Reduce(s, UserChanged{HasUser: true}) }, nil},
		{"empty ids", func(s State) State { return Reduce(s, UserChanged{HasUser: true}) }, []noteid.ID{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.prep(NewState())
			s.HasConnection = true

			// Reset must hold from every current sub-state.
			for _, start := range []PrefetchState{
				PrefetchNever{},
				PrefetchFetchNow{IDs: ids("exp-9")},
				PrefetchDone{},
			} {
				s.Prefetch = start

				got := Reduce(s, ExperiencesToPrefetch{IDs: tc.ids})
				if _, ok := got.Prefetch.(PrefetchNever); !ok {
					t.Errorf("from %T: prefetch = %T, want PrefetchNever", start, got.Prefetch)
				}
			}
		})
	}
}

func TestReducePrefetchWhileConnected(t *testing.T) {
	s := NewState()
	s = Reduce(s, UserChanged{HasUser: true})
	s = Reduce(s, ConnectionChanged{Connected: true})

	s = Reduce(s, ExperiencesToPrefetch{IDs: ids("exp-1", "exp-2")})

	fetch, ok := s.Prefetch.(PrefetchFetchNow)
	if !ok {
		t.Fatalf("prefetch = %T, want PrefetchFetchNow", s.Prefetch)
	}
	if len(fetch.IDs) != 2 {
		t.Errorf("ids = %v, want 2", fetch.IDs)
	}

	s = Reduce(s, DoneFetchingExperiences{})
	if _, ok := s.Prefetch.(PrefetchDone); !ok {
		t.Errorf("prefetch = %T, want PrefetchDone", s.Prefetch)
	}
}

func TestReducePrefetchWhileOfflinePromotedOnReconnect(t *testing.T) {
	s := NewState()
	s = Reduce(s, UserChanged{HasUser: true})

	s = Reduce(s, ExperiencesToPrefetch{IDs: ids("exp-1")})
	if _, ok := s.Prefetch.(PrefetchNever); !ok {
		t.Fatalf("prefetch = %T, want PrefetchNever while offline", s.Prefetch)
	}

	s = Reduce(s, ConnectionChanged{Connected: true})

	fetch, ok := s.Prefetch.(PrefetchFetchNow)
	if !ok {
		t.Fatalf("prefetch = %T, want PrefetchFetchNow after reconnect", s.Prefetch)
	}
	if len(fetch.IDs) != 1 || !fetch.IDs[0].Equal(noteid.New("exp-1")) {
		t.Errorf("ids = %v", fetch.IDs)
	}

	// A second reconnect must not replay the promotion.
	s = Reduce(s, DoneFetchingExperiences{})
	s = Reduce(s, ConnectionChanged{Connected: false})
	s = Reduce(s, ConnectionChanged{Connected: true})
	if _, ok := s.Prefetch.(PrefetchDone); !ok {
		t.Errorf("prefetch = %T, want PrefetchDone to persist", s.Prefetch)
	}
}

func TestReduceStaleRecountOnlyTouchesCount(t *testing.T) {
	s := NewState()
	s = Reduce(s, UserChanged{HasUser: true})
	s = Reduce(s, ConnectionChanged{Connected: true})

	// A recount that started before a connectivity change lands late.
	s = Reduce(s, ConnectionChanged{Connected: false})
	s = Reduce(s, SetUnsavedCount{Count: 7})

	if s.HasConnection {
		t.Error("stale recount flipped connectivity")
	}
	if s.UnsavedCount != 7 {
		t.Errorf("count = %d, want 7", s.UnsavedCount)
	}
}

type bogusAction struct{}

func (bogusAction) isAction() {}

func TestReduceUnknownActionIsNoop(t *testing.T) {
	s := NewState()
	s = Reduce(s, ConnectionChanged{Connected: true})

	got := Reduce(s, bogusAction{})
	if got.HasConnection != s.HasConnection || got.RenderReady != s.RenderReady {
		t.Errorf("unknown action changed state: %+v vs %+v", got, s)
	}
}

func TestReduceDoesNotAliasCallerIDs(t *testing.T) {
	s := NewState()
	s = Reduce(s, UserChanged{HasUser: true})
	s = Reduce(s, ConnectionChanged{Connected: true})

	in := ids("exp-1", "exp-2")
	s = Reduce(s, ExperiencesToPrefetch{IDs: in})

	in[0] = noteid.New("exp-mutated")

	fetch := s.Prefetch.(PrefetchFetchNow)
	if !fetch.IDs[0].Equal(noteid.New("exp-1")) {
		t.Error("reducer aliased the caller's slice")
	}
}
