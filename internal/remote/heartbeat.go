package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"fieldnote/internal/broadcast"
)

// Heartbeat timing constants.
const (
	heartbeatInterval    = 15 * time.Second
	heartbeatPingTimeout = 5 * time.Second
	reconnectInitBackoff = 2 * time.Second
	reconnectMaxBackoff  = 2 * time.Minute
	reconnectBackoffMult = 2
)

// pinger is the slice of the websocket connection the heartbeat needs.
// Tests substitute a fake.
type pinger interface {
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// dialFunc opens a heartbeat connection. The default dials the configured
// websocket endpoint.
type dialFunc func(ctx context.Context) (pinger, error)

// Heartbeat is the connectivity signal source: it keeps a websocket open to
// the server and publishes ConnectionChanged events into the broadcaster on
// every transition. The engine does not interpret the transport beyond the
// boolean; a lost ping means disconnected, a successful dial or ping means
// connected.
//
// While the manual connectivity override is active the heartbeat suppresses
// publication entirely, so an automatic signal can never overwrite a
// deliberately forced status. Once the override clears, the next dial result
// or successful ping republishes the observed state.
type Heartbeat struct {
	b      *broadcast.Broadcaster
	logger *slog.Logger

	dial      dialFunc
	sleepFunc func(ctx context.Context, d time.Duration) error

	// manualActive reports whether the persisted manual override is set.
	manualActive func() bool

	// connected tracks the last observed state; havePublished is cleared
	// while the override suppresses publication, so the first unsuppressed
	// publish re-emits the observed value.
	connected     bool
	havePublished bool
}

// NewHeartbeat creates a heartbeat that dials wsURL. manualActive is
// consulted before every publication; nil means "never manual".
func NewHeartbeat(wsURL string, b *broadcast.Broadcaster, manualActive func() bool, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}

	if manualActive == nil {
		manualActive = func() bool { return false }
	}

	return &Heartbeat{
		b:      b,
		logger: logger,
		dial: func(ctx context.Context) (pinger, error) {
			conn, _, err := websocket.Dial(ctx, wsURL, nil)
			if err != nil {
				return nil, err
			}

			return conn, nil
		},
		sleepFunc:    timeSleep,
		manualActive: manualActive,
	}
}

// Run drives the heartbeat until ctx is done. It reconnects with bounded
// exponential backoff and publishes a transition event whenever the
// observed connectivity flips.
func (h *Heartbeat) Run(ctx context.Context) {
	backoff := reconnectInitBackoff

	for ctx.Err() == nil {
		conn, err := h.dial(ctx)
		if err != nil {
			h.publish(false)
			h.logger.Debug("heartbeat dial failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)

			if h.sleepFunc(ctx, backoff) != nil {
				return
			}

			backoff *= reconnectBackoffMult
			if backoff > reconnectMaxBackoff {
				backoff = reconnectMaxBackoff
			}

			continue
		}

		backoff = reconnectInitBackoff

		h.publish(true)
		h.pingLoop(ctx, conn)
		h.publish(false)
	}
}

// pingLoop pings the connection at the heartbeat interval until a ping
// fails or ctx is done. The connection is always closed on return.
func (h *Heartbeat) pingLoop(ctx context.Context, conn pinger) {
	defer conn.Close(websocket.StatusNormalClosure, "heartbeat stopped")

	for {
		if h.sleepFunc(ctx, heartbeatInterval) != nil {
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, heartbeatPingTimeout)
		err := conn.Ping(pingCtx)
		cancel()

		if err != nil {
			h.logger.Debug("heartbeat ping failed", slog.String("error", err.Error()))
			return
		}

		// Reassert connected on every successful ping. The transition
		// filter swallows the repeats; the call matters once a manual
		// override clears, resyncing listeners to the observed state.
		h.publish(true)
	}
}

// publish emits a ConnectionChanged event when the state flips. While the
// manual override is active nothing is emitted, but the observed value is
// still recorded with havePublished cleared, so the next unsuppressed call
// always publishes.
func (h *Heartbeat) publish(connected bool) {
	if h.manualActive() {
		h.connected = connected
		h.havePublished = false

		h.logger.Debug("heartbeat suppressed by manual override",
			slog.Bool("observed", connected))
		return
	}

	if h.havePublished && h.connected == connected {
		return
	}

	h.connected = connected
	h.havePublished = true

	h.logger.Info("connectivity transition", slog.Bool("connected", connected))
	h.b.Publish(broadcast.ConnectionChanged{HasConnection: connected})
}
