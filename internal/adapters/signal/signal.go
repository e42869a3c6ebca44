// Package signal owns the websocket notification channel. The socket
// is push-only: the server delivers room events down it, and the read
// side exists to observe pongs and disconnects.
package signal

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/app"
	"github.com/drossen/confer/internal/config"
	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/notify"
)

const writeWait = 5 * time.Second

type NotifyController struct {
	session  *app.Session
	notifier *notify.Router
	cfg      *config.Config
}

func NewNotifyController(session *app.Session, notifier *notify.Router, cfg *config.Config) *NotifyController {
	return &NotifyController{session: session, notifier: notifier, cfg: cfg}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *wsConn) TrySend(b []byte) error {
	select {
	case <-c.done:
		return notify.ErrBackpressure
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return notify.ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleNotify upgrades the request and binds the socket as the peer's
// notification channel. A second socket for the same peer replaces the
// first. When the socket dies the peer is treated as disconnected and
// its room state is cleaned up.
func (ctl *NotifyController) HandleNotify(ctx context.Context, c *gin.Context) {
	userID := domain.UserID(c.Query("userId"))
	if err := userID.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The channel is only handed to the client that joined as this user:
	// the cookie session must carry the same user id and the same client
	// token the join request was made with.
	sess := sessions.Default(c)
	sessUser, _ := sess.Get("userId").(string)
	sessToken, _ := sess.Get("clientToken").(string)
	if sessUser != string(userID) || sessToken == "" || sessToken != c.GetString("client_token") {
		log.Debug().Str("module", "adapters.signal").Str("user", string(userID)).Msg("notify channel refused: no joined session")
		c.JSON(http.StatusForbidden, gin.H{"error": "no joined session for user"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.signal").Str("user", string(userID)).Msg("notify channel open")

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, ctl.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	ctl.notifier.Bind(userID, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(userID, conn)
}

func (ctl *NotifyController) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case b := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug().Err(err).Str("module", "adapters.signal").Msg("writePump write")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump discards incoming frames; its job is pong bookkeeping and
// noticing the close. On exit the binding is dropped and the peer's
// room membership torn down.
func (ctl *NotifyController) readPump(userID domain.UserID, c *wsConn) {
	defer func() {
		c.Close()
		// A replaced connection's read loop exits after a newer channel
		// was bound; only the active channel's death means the peer left.
		if ctl.notifier.Unbind(userID, c) {
			ctl.session.Disconnect(userID)
		}
		log.Info().Str("module", "adapters.signal").Str("user", string(userID)).Msg("notify channel closed")
	}()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	pongWait := ctl.cfg.PingPeriod + writeWait
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, r)
	}
}
