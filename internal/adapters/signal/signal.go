package signal

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type Options struct {
	ReadLimit      int64
	WriteWait      time.Duration
	PingPeriod     time.Duration
	PongTimeout    time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 25 * time.Second
	}
	if o.PongTimeout <= o.PingPeriod {
		o.PongTimeout = o.PingPeriod * 9 / 5
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Handlers   Handlers
	Dispatcher *Dispatcher
	Opts       Options

	upgrader websocket.Upgrader
}

func NewSignalWSController(h Handlers, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Handlers:   h,
		Dispatcher: NewDispatcher(h),
		Opts:       opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}
}

// WsSignalConn is the core.SignalConnection over a gorilla socket. Frames
// are queued and written by writePump; TrySend never blocks.
type WsSignalConn struct {
	conn      *websocket.Conn
	send      chan core.Frame
	writeWait time.Duration

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int, writeWait time.Duration) *WsSignalConn {
	return &WsSignalConn{
		conn:      ws,
		send:      make(chan core.Frame, buffer),
		writeWait: writeWait,
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// ping sends a protocol-level ping; WriteControl may run alongside writePump.
func (c *WsSignalConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// HandleSignal upgrades the request and serves the connection until it
// closes or ctx is done.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", token).Str("remote", c.Request.RemoteAddr).Msg("new WS connection")

	conn := newWsSignalConn(ws, ctl.Opts.SendBuffer, ctl.Opts.WriteWait)
	cc := core.NewConnContext(conn, token)
	hb := NewHeartbeat(ctl.Opts.PingPeriod, ctl.Opts.PongTimeout, conn.ping, conn.Close)
	cc.SetHeartbeat(hb)
	hb.Start()

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cc, conn, hb)
}

// originChecker allows every origin when the list is empty or contains "*".
// Requests without an Origin header come from non-browser clients.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
