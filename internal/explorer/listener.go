package explorer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nevzatmmc/dicevault/internal/config"
)

// FrameHandler receives every raw frame from the mempool.space websocket.
// It must not block; slow consumers stall the read loop and trip the read
// deadline.
type FrameHandler func(frame []byte)

// ──────────────────────────────────────────────────────────────────────────────
// Subscription frames
// ──────────────────────────────────────────────────────────────────────────────

// wantFrame subscribes to the explorer's push feeds.
//
//	{"action":"want","data":["blocks","mempool-blocks","stats"]}
type wantFrame struct {
	Action string   `json:"action"`
	Data   []string `json:"data"`
}

// trackFrame asks the explorer to push transactions touching one address.
//
//	{"track-address":"tb1q..."}
type trackFrame struct {
	TrackAddress string `json:"track-address"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Listener
// ──────────────────────────────────────────────────────────────────────────────

// Listener maintains a mempool.space websocket connection with automatic
// reconnection. On every (re)connect it re-subscribes the feed and re-tracks
// every address the tracked provider returns, so a dropped connection never
// loses address subscriptions.
type Listener struct {
	url     string
	cfg     *config.WSConfig
	tracked func() []string
	handler FrameHandler
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewListener builds a Listener. tracked is consulted on every connect for
// the full set of addresses to watch; handler receives each inbound frame.
func NewListener(url string, cfg *config.WSConfig, tracked func() []string, handler FrameHandler, logger *slog.Logger) *Listener {
	return &Listener{
		url:     url,
		cfg:     cfg,
		tracked: tracked,
		handler: handler,
		logger:  logger,
	}
}

// Run connects and consumes frames until ctx is cancelled. Reconnects use
// exponential backoff, doubling from ReconnectDelay up to MaxReconnectDelay,
// and the delay resets after every successful connect.
func (l *Listener) Run(ctx context.Context) {
	delay := l.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.logger.Warn("explorer ws dial failed", "url", l.url, "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, l.cfg.MaxReconnectDelay)
			continue
		}

		delay = l.cfg.ReconnectDelay
		l.setConn(conn)
		l.logger.Info("explorer ws connected", "url", l.url)

		if err := l.subscribe(); err != nil {
			l.logger.Warn("explorer ws subscribe failed", "error", err)
		} else {
			err = l.readLoop(ctx, conn)
			if ctx.Err() == nil {
				l.logger.Warn("explorer ws disconnected", "error", err, "retry_in", delay)
			}
		}

		l.setConn(nil)
		conn.Close()

		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, l.cfg.MaxReconnectDelay)
	}
}

// Track subscribes one address on the live connection. Safe to call while
// disconnected: the address is picked up from the tracked provider on the
// next connect.
func (l *Listener) Track(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return
	}
	if err := l.writeJSON(trackFrame{TrackAddress: address}); err != nil {
		l.logger.Warn("explorer ws track-address failed", "address", address, "error", err)
	}
}

// subscribe sends the want frame plus one track-address frame per monitored
// address.
func (l *Listener) subscribe() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeJSON(wantFrame{Action: "want", Data: []string{"blocks", "mempool-blocks", "stats"}}); err != nil {
		return err
	}

	addrs := l.tracked()
	for _, addr := range addrs {
		if err := l.writeJSON(trackFrame{TrackAddress: addr}); err != nil {
			return err
		}
	}
	l.logger.Info("explorer ws tracking addresses", "count", len(addrs))
	return nil
}

// readLoop consumes frames until the connection breaks or ctx is cancelled.
// A ping is sent every PingInterval; a missing pong trips the read deadline.
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) error {
	pongWait := l.cfg.PingInterval + l.cfg.PingTimeout

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go l.pingLoop(ctx, conn, done)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		l.handler(frame)
	}
}

// pingLoop keeps the connection alive until done closes or ctx is cancelled.
func (l *Listener) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(l.cfg.PingTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// writeJSON writes one frame. Callers must hold l.mu.
func (l *Listener) writeJSON(v any) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return l.conn.WriteJSON(v)
}

func (l *Listener) setConn(conn *websocket.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
}

// nextDelay doubles the backoff up to the configured ceiling.
func nextDelay(d, ceiling time.Duration) time.Duration {
	d *= 2
	if d > ceiling {
		return ceiling
	}
	return d
}

// sleep waits for d or ctx cancellation; reports false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
