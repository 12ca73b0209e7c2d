package connstate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"fieldnote/internal/broadcast"
	"fieldnote/internal/noteid"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal(msg)
}

func TestEffectsRecountOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := broadcast.New(testLogger(t))
	defer bus.Close()

	m := NewMachine(testLogger(t))

	count := func(context.Context) (int, error) { return 3, nil }
	e := NewEffects(m, bus, count, nil, 0, testLogger(t))
	go e.Run(ctx)

	waitFor(t, func() bool { return bus.ActiveSubscribers() == 1 }, "listener never subscribed")

	bus.Publish(broadcast.ConnectionChanged{HasConnection: true})

	waitFor(t, func() bool {
		st := m.Current()
		return st.HasConnection && st.HasUnsavedCount && st.UnsavedCount == 3
	}, "connect never reached the machine with a recount")
}

func TestEffectsRecountFailureLeavesCount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := broadcast.New(testLogger(t))
	defer bus.Close()

	m := NewMachine(testLogger(t))
	m.Dispatch(SetUnsavedCount{Count: 5})

	count := func(context.Context) (int, error) { return 0, errors.New("cache busy") }
	e := NewEffects(m, bus, count, nil, 0, testLogger(t))
	go e.Run(ctx)

	waitFor(t, func() bool { return bus.ActiveSubscribers() == 1 }, "listener never subscribed")

	bus.Publish(broadcast.ConnectionChanged{HasConnection: true})

	waitFor(t, func() bool { return m.Current().HasConnection }, "connect never reached the machine")

	if got := m.Current().UnsavedCount; got != 5 {
		t.Errorf("count = %d, want previous 5", got)
	}
}

func TestEffectsUploadDoneTriggersRecount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := broadcast.New(testLogger(t))
	defer bus.Close()

	m := NewMachine(testLogger(t))
	m.Dispatch(SetUnsavedCount{Count: 8})

	count := func(context.Context) (int, error) { return 0, nil }
	e := NewEffects(m, bus, count, nil, 0, testLogger(t))
	go e.Run(ctx)

	waitFor(t, func() bool { return bus.ActiveSubscribers() == 1 }, "listener never subscribed")

	bus.Publish(broadcast.Custom{Kind: broadcast.KindUploadDone})

	waitFor(t, func() bool { return m.Current().UnsavedCount == 0 }, "upload-done never recounted")
}

func TestEffectsDebouncedPrefetchRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := broadcast.New(testLogger(t))
	defer bus.Close()

	m := NewMachine(testLogger(t))
	m.Dispatch(UserChanged{HasUser: true})
	m.Dispatch(ConnectionChanged{Connected: true})

	var calls atomic.Int32
	prefetch := func(_ context.Context, ids []noteid.ID) error {
		calls.Add(1)
		if len(ids) != 2 {
			t.Errorf("prefetch got %d ids, want 2", len(ids))
		}

		return nil
	}

	e := NewEffects(m, bus, nil, prefetch, 10*time.Millisecond, testLogger(t))
	go e.Run(ctx)

	e.Dispatch(ctx, ExperiencesToPrefetch{IDs: ids("exp-1", "exp-2")})

	waitFor(t, func() bool {
		_, done := m.Current().Prefetch.(PrefetchDone)
		return done
	}, "prefetch never completed")

	if got := calls.Load(); got != 1 {
		t.Errorf("prefetch calls = %d, want 1", got)
	}
}

func TestEffectsPrefetchFetchesReplacedIDs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := broadcast.New(testLogger(t))
	defer bus.Close()

	m := NewMachine(testLogger(t))
	m.Dispatch(UserChanged{HasUser: true})
	m.Dispatch(ConnectionChanged{Connected: true})

	got := make(chan []noteid.ID, 1)
	prefetch := func(_ context.Context, fetched []noteid.ID) error {
		got <- fetched
		return nil
	}

	e := NewEffects(m, bus, nil, prefetch, 30*time.Millisecond, testLogger(t))

	// The second request lands while the first one's timer is still
	// pending; the fetch must use the replacement set.
	e.Dispatch(ctx, ExperiencesToPrefetch{IDs: ids("exp-1")})
	e.Dispatch(ctx, ExperiencesToPrefetch{IDs: ids("exp-2", "exp-3")})

	select {
	case fetched := <-got:
		if len(fetched) != 2 || fetched[0].String() != "exp-2" || fetched[1].String() != "exp-3" {
			t.Errorf("prefetch ids = %v, want [exp-2 exp-3]", fetched)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prefetch never ran")
	}
}

func TestEffectsResetCancelsScheduledPrefetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := broadcast.New(testLogger(t))
	defer bus.Close()

	m := NewMachine(testLogger(t))
	m.Dispatch(UserChanged{HasUser: true})
	m.Dispatch(ConnectionChanged{Connected: true})

	var calls atomic.Int32
	prefetch := func(context.Context, []noteid.ID) error {
		calls.Add(1)
		return nil
	}

	e := NewEffects(m, bus, nil, prefetch, 30*time.Millisecond, testLogger(t))

	e.Dispatch(ctx, ExperiencesToPrefetch{IDs: ids("exp-1")})
	e.Dispatch(ctx, ExperiencesToPrefetch{IDs: nil})

	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("prefetch calls = %d, want 0 after reset", got)
	}
}

func TestEffectsStopCancelsScheduledPrefetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	bus := broadcast.New(testLogger(t))
	defer bus.Close()

	m := NewMachine(testLogger(t))
	m.Dispatch(UserChanged{HasUser: true})
	m.Dispatch(ConnectionChanged{Connected: true})

	var calls atomic.Int32
	prefetch := func(context.Context, []noteid.ID) error {
		calls.Add(1)
		return nil
	}

	e := NewEffects(m, bus, nil, prefetch, 30*time.Millisecond, testLogger(t))

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	e.Dispatch(ctx, ExperiencesToPrefetch{IDs: ids("exp-1")})

	// Tear down before the debounce elapses.
	cancel()
	<-done

	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("prefetch calls = %d, want 0 after teardown", got)
	}
}
