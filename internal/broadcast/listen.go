package broadcast

import (
	"context"
	"log/slog"
)

// Listen subscribes fn to the broadcaster and drains events on a goroutine
// until ctx is done or the broadcaster closes. A panic inside fn is
// recovered and logged; delivery to this and all other listeners continues.
// The subscription is always cancelled on return, so callers that tie ctx
// to component lifetime cannot leak it.
func Listen(ctx context.Context, b *Broadcaster, logger *slog.Logger, fn func(Event)) {
	if logger == nil {
		logger = slog.Default()
	}

	sub := b.Subscribe()

	go func() {
		defer sub.Cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub.C():
				if !ok {
					return
				}

				deliver(logger, fn, event)
			}
		}
	}()
}

// deliver invokes fn with panic recovery so one faulty listener cannot take
// down the process or starve its own subscription loop.
func deliver(logger *slog.Logger, fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("broadcast: listener panicked", slog.Any("panic", r))
		}
	}()

	fn(event)
}
