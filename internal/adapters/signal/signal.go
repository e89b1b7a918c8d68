package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/CodeSync/internal/app/orch"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Options struct {
	ReadLimit      int64
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	RateLimit      int
	RateInterval   time.Duration
	AllowedOrigins []string
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Metrics *metrics.Metrics

	opts     Options
	limiter  *RateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options, m *metrics.Metrics) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Metrics: m,
		opts:    opts,
		limiter: NewRateLimiter(opts.RateLimit, opts.RateInterval),
		upgrader: websocket.Upgrader{
			CheckOrigin: OriginChecker(opts.AllowedOrigins),
		},
	}
}

// WsSignalConn is one websocket endpoint. Outbound frames go through a
// bounded queue drained by writePump; TrySend never blocks.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu        sync.RWMutex
	closed    bool
	closeConn sync.Once
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Drain stops accepting frames; writePump flushes what is queued and then
// closes the socket.
func (c *WsSignalConn) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Close drops anything queued and closes the socket, which ends readPump.
func (c *WsSignalConn) Close() {
	c.Drain()
	c.closeConn.Do(func() { _ = c.conn.Close() })
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Str("client", c.GetString("client_token")).Logger()

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	logger.Info().Str("identity", c.GetString("identity")).Msg("new WS connection")

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	ctl.Metrics.ConnectionOpened()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		ctl.writePump(ctx, conn)
	}()
	go func() {
		if left := ctl.readPump(ctx, sid, conn); !left {
			cancel()
		}
	}()
}

// OriginChecker allows requests without an Origin header (non-browser
// clients) and those whose origin is listed. "*" allows every origin.
func OriginChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if n, ok := normalizeOrigin(o); ok {
			set[n] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		n, ok := normalizeOrigin(origin)
		if !ok {
			return false
		}
		_, ok = set[n]
		return ok
	}
}
