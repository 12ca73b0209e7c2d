package connstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldnote/internal/broadcast"
	"fieldnote/internal/noteid"
)

// prefetchDebounce is how long a fetch-now request sits before the remote
// prefetch actually runs, coalescing rapid successive requests.
const prefetchDebounce = 500 * time.Millisecond

// Effects is the side-effect layer around the reducer. It subscribes to
// the broadcaster, recounts unsynced items on connectivity transitions,
// and runs the debounced prefetch whenever a dispatch lands the machine
// in fetch-now. The reducer stays pure; this is the only place timers and
// remote calls live.
type Effects struct {
	machine *Machine
	bus     *broadcast.Broadcaster
	logger  *slog.Logger

	// countUnsynced derives the current unsynced-item count. A failure
	// leaves the previous count in place.
	countUnsynced func(ctx context.Context) (int, error)
	// prefetch loads the given experiences from the remote service into
	// the cache.
	prefetch func(ctx context.Context, ids []noteid.ID) error

	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewEffects wires the effect layer. countUnsynced and prefetch are the
// two side effects the machine triggers; either may be nil, disabling
// that effect. A zero debounce selects the default.
func NewEffects(
	machine *Machine,
	bus *broadcast.Broadcaster,
	countUnsynced func(ctx context.Context) (int, error),
	prefetch func(ctx context.Context, ids []noteid.ID) error,
	debounce time.Duration,
	logger *slog.Logger,
) *Effects {
	if logger == nil {
		logger = slog.Default()
	}

	if debounce <= 0 {
		debounce = prefetchDebounce
	}

	return &Effects{
		machine:       machine,
		bus:           bus,
		logger:        logger,
		countUnsynced: countUnsynced,
		prefetch:      prefetch,
		debounce:      debounce,
	}
}

// Dispatch feeds an action through the machine and reconciles the
// prefetch timer with the resulting state.
func (e *Effects) Dispatch(ctx context.Context, action Action) State {
	st := e.machine.Dispatch(action)
	e.syncPrefetchTimer(ctx, st)

	return st
}

// Run subscribes to the broadcaster and translates its events into
// actions until ctx is canceled. It blocks; run it in its own goroutine.
// On return every scheduled timer is canceled and no further prefetch
// can fire.
func (e *Effects) Run(ctx context.Context) {
	defer e.stop()

	broadcast.Listen(ctx, e.bus, e.logger, func(ev broadcast.Event) {
		switch ev := ev.(type) {
		case broadcast.ConnectionChanged:
			e.onConnectionChanged(ctx, ev.HasConnection)

		case broadcast.Custom:
			switch ev.Kind {
			case broadcast.KindUploadDone:
				e.recount(ctx)
			case broadcast.KindUserChanged:
				hasUser, _ := ev.Payload.(bool)
				e.Dispatch(ctx, UserChanged{HasUser: hasUser})
			}
		}
	})

	<-ctx.Done()
}

func (e *Effects) onConnectionChanged(ctx context.Context, connected bool) {
	action := ConnectionChanged{Connected: connected}

	if connected && e.countUnsynced != nil {
		count, err := e.countUnsynced(ctx)
		if err != nil {
			e.logger.Warn("unsynced recount failed, keeping previous count",
				slog.String("error", err.Error()))
		} else {
			action.UnsavedCount = count
			action.HasUnsavedCount = true
		}
	}

	e.Dispatch(ctx, action)
}

func (e *Effects) recount(ctx context.Context) {
	if e.countUnsynced == nil {
		return
	}

	count, err := e.countUnsynced(ctx)
	if err != nil {
		e.logger.Warn("unsynced recount failed, keeping previous count",
			slog.String("error", err.Error()))

		return
	}

	e.Dispatch(ctx, SetUnsavedCount{Count: count})
}

// syncPrefetchTimer makes the scheduled timer agree with the prefetch
// sub-state: fetch-now schedules one, a reset cancels it.
func (e *Effects) syncPrefetchTimer(ctx context.Context, st State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch st.Prefetch.(type) {
	case PrefetchFetchNow:
		if e.stopped || e.timer != nil || e.prefetch == nil {
			return
		}

		e.timer = time.AfterFunc(e.debounce, func() {
			e.firePrefetch(ctx)
		})

	case PrefetchNever:
		e.cancelTimerLocked()
	}
}

func (e *Effects) firePrefetch(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()

		return
	}
	e.timer = nil
	e.mu.Unlock()

	// The sub-state may have been reset or replaced while the timer was
	// pending; fetch whatever the machine asks for now.
	p, ok := e.machine.Current().Prefetch.(PrefetchFetchNow)
	if !ok {
		return
	}
	ids := p.IDs

	if err := e.prefetch(ctx, ids); err != nil {
		e.logger.Warn("prefetch failed",
			slog.Int("ids", len(ids)),
			slog.String("error", err.Error()))

		return
	}

	e.Dispatch(ctx, DoneFetchingExperiences{})
}

func (e *Effects) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	e.cancelTimerLocked()
}

func (e *Effects) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
