package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/app"
	"github.com/dkeye/vcall/internal/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// defaultPingPeriod keeps idle connections alive through intermediaries
// when no interval is configured.
const defaultPingPeriod = 25 * time.Second

// Controller terminates signaling websockets and dispatches their
// operations onto the room registry.
type Controller struct {
	registry   *app.Registry
	dir        core.Directory
	limiter    *RoomRateLimiter
	validate   *validator.Validate
	pingPeriod time.Duration
}

func NewController(registry *app.Registry, dir core.Directory, limiter *RoomRateLimiter, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return &Controller{
		registry:   registry,
		dir:        dir,
		limiter:    limiter,
		validate:   validator.New(),
		pingPeriod: pingPeriod,
	}
}

// HandleSignal upgrades the request and runs the connection's pumps until
// either side goes away. Disconnect is treated like exitRoom without the
// acknowledgment.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("sid", sid).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := newWsConn(ws)
	sess := newSession(sid, conn)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sess)
		ctl.disconnect(sess)
	}()
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sess *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", sess.sid).Msg("readPump closing")
		sess.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := sess.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", sess.sid).Msg("readPump read ended")
				return
			}
			ctl.dispatch(ctx, sess, data)
		}
	}
}

// disconnect cleans up the peer and the session's rate-limit bookkeeping.
func (ctl *Controller) disconnect(sess *session) {
	ctl.leave(sess)
	ctl.limiter.Forget(sess.sid)
	log.Info().Str("module", "signal").Str("sid", sess.sid).Msg("session disconnected")
}

// leave removes the session's peer from its room and drops the room once
// it empties. Safe to call in any state.
func (ctl *Controller) leave(sess *session) {
	room, peerID, ok := sess.takeRoom()
	if !ok {
		return
	}
	empty, err := room.RemovePeer(peerID)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", sess.sid).Msg("remove peer")
	}
	if empty {
		ctl.registry.RemoveIfEmpty(room.ID())
	}
}
