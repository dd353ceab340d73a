package collab

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnConfig tunes the WebSocket keepalive and limits.
type ConnConfig struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 8 << 10
	}
	return c
}

// Serve joins the connection to the semester's session and pumps messages until either
// side closes. It blocks and always leaves the session before returning.
func Serve(hub *Hub, semesterID string, identity Identity, conn *websocket.Conn, cfg ConnConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	p := hub.NewParticipant(identity)
	session := hub.Join(semesterID, p)
	defer hub.Leave(semesterID, p)

	go writePump(conn, p, cfg)
	readPump(conn, session, p, cfg, logger.With(zap.String("semester_id", semesterID), zap.String("user_id", identity.UserID)))
}

func readPump(conn *websocket.Conn, session *Session, p *Participant, cfg ConnConfig, logger *zap.Logger) {
	conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		if messageType != websocket.TextMessage {
			continue
		}
		event, err := Decode(data)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				logger.Warn("dropping unknown event", zap.Error(err))
			} else {
				logger.Warn("dropping malformed event", zap.Error(err))
			}
			continue
		}
		session.Dispatch(p, event)
	}
}

func writePump(conn *websocket.Conn, p *Participant, cfg ConnConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
