// Package realtime pushes ledger and identity inserts to dashboards over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"foodforge/internal/auth"
	"foodforge/internal/identity"
	"foodforge/internal/notify"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 4 * 1024
)

// KindSync tells a client to re-query its view from the API.
const KindSync = "sync"

// Frame is one message written to a client.
type Frame struct {
	Kind   string          `json:"kind"`
	Record json.RawMessage `json:"record,omitempty"`
}

// Gateway upgrades authenticated requests and streams change events.
type Gateway struct {
	notifier notify.Notifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewGateway creates a gateway. origins lists the allowed Origin headers; "*" allows any.
func NewGateway(notifier notify.Notifier, logger *zap.Logger, origins []string) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Gateway{
		notifier: notifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Handle serves GET /v1/realtime. It must run behind auth.RequireSession.
func (g *Gateway) Handle(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "AuthRequired"})
		return
	}

	tables := []string{notify.TableScans}
	ownOnly := true
	if claims.Role == string(identity.RoleAdmin) {
		tables = append(tables, notify.TableProfiles)
		ownOnly = false
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sub, err := g.notifier.Subscribe(ctx, tables...)
	if err != nil {
		g.logger.Error("realtime subscribe failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}
	defer sub.Close()

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := g.logger.With(zap.String("subject", claims.Subject), zap.String("role", claims.Role))
	log.Debug("realtime client connected")

	go readPump(conn, cancel)

	filter := func(notify.Event) bool { return true }
	if ownOnly {
		filter = ownRows(claims.Subject)
	}
	if err := writePump(ctx, conn, sub, filter); err != nil {
		log.Debug("realtime client gone", zap.Error(err))
	}
}

// readPump discards client messages and keeps the read deadline fresh. It
// cancels the connection context when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *notify.Subscription, keep func(notify.Event) bool) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeFrame(conn, Frame{Kind: KindSync}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return ctx.Err()
		case evt, ok := <-sub.C():
			if !ok {
				// Subscription ended underneath us; the client reconnects and re-syncs.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "feed closed"), time.Now().Add(writeWait))
				return nil
			}
			if !keep(evt) {
				continue
			}
			if err := writeFrame(conn, Frame{Kind: kindOf(evt), Record: evt.Record}); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

func kindOf(evt notify.Event) string {
	if evt.Type == notify.TypeInsert {
		return evt.Table + ".insert"
	}
	return evt.Table
}

// ownRows keeps only scan rows belonging to userID.
func ownRows(userID string) func(notify.Event) bool {
	return func(evt notify.Event) bool {
		if evt.Table != notify.TableScans {
			return false
		}
		var row struct {
			UserID string `json:"user_id"`
		}
		if err := evt.Decode(&row); err != nil {
			return false
		}
		return row.UserID == userID
	}
}
