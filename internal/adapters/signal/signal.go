// Package signal is the websocket event channel: room mutations go through the
// coordinator, transport controls are relayed straight to the gateway.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/musicroom/internal/adapters/broadcast"
	"github.com/dkeye/musicroom/internal/app"
	"github.com/dkeye/musicroom/internal/core"
	"github.com/dkeye/musicroom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var errConnClosed = errors.New("connection closed")

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	RateLimit    int
	RateInterval time.Duration
}

type SignalWSController struct {
	Rooms   *app.Coordinator
	Hub     *broadcast.Hub
	Gateway core.Gateway
	Limiter *RoomRateLimiter

	opts Options
}

func NewSignalWSController(rooms *app.Coordinator, hub *broadcast.Hub, gw core.Gateway, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = time.Second
	}
	return &SignalWSController{
		Rooms:   rooms,
		Hub:     hub,
		Gateway: gw,
		Limiter: NewRoomRateLimiter(opts.RateLimit, opts.RateInterval),
		opts:    opts,
	}
}

// WsSignalConn implements broadcast.Conn over a websocket.
type WsSignalConn struct {
	id   domain.ConnID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- f:
	default:
		return broadcast.ErrBackpressure
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request. Every socket gets its own connection id;
// that id is what the disconnect sweep removes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := domain.ConnID(uuid.NewString())

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	conn := &WsSignalConn{
		id:   sid,
		conn: ws,
		send: make(chan []byte, ctl.opts.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sid, conn)
		ctl.onDisconnect(sid)
	}()
}

func (ctl *SignalWSController) onDisconnect(sid domain.ConnID) {
	ctl.Hub.UnsubscribeAll(sid)
	ctl.Limiter.Forget(sid)
	rooms, err := ctl.Rooms.Sweep(context.Background(), sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("disconnect sweep")
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Int("rooms", len(rooms)).Msg("disconnected")
}
