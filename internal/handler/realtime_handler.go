package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/collab"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// RealtimeHandler attaches clients to a semester's collaborative session.
type RealtimeHandler struct {
	hub      *collab.Hub
	upgrader websocket.Upgrader
	conn     collab.ConnConfig
	logger   *zap.Logger
}

// NewRealtimeHandler constructs the handler. An empty origin list accepts any origin.
func NewRealtimeHandler(hub *collab.Hub, conn collab.ConnConfig, allowedOrigins []string, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{
		hub:    hub,
		conn:   conn,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *RealtimeHandler) identity(c *gin.Context) (collab.Identity, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return collab.Identity{}, false
	}
	return collab.Identity{UserID: claims.UserID, Name: claims.DisplayName()}, true
}

// Connect godoc
// @Summary Join a semester's collaborative timetable session
// @Description Upgrades to a WebSocket. The access token may be passed as the access_token query parameter.
// @Tags Realtime
// @Param semester_id path string true "Semester ID"
// @Param access_token query string false "Access token"
// @Success 101
// @Router /realtime/timetable/{semester_id}/ws [get]
func (h *RealtimeHandler) Connect(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	semesterID := c.Param("semester_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Sugar().Warnw("websocket upgrade failed", "semester_id", semesterID, "error", err)
		return
	}
	collab.Serve(h.hub, semesterID, identity, conn, h.conn, h.logger)
}

// Events godoc
// @Summary Follow a semester's collaborative session as server-sent events
// @Description Read-only stream of the same events the WebSocket delivers.
// @Tags Realtime
// @Produce text/event-stream
// @Param semester_id path string true "Semester ID"
// @Success 200
// @Router /realtime/timetable/{semester_id}/events [get]
func (h *RealtimeHandler) Events(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	semesterID := c.Param("semester_id")
	participant := h.hub.NewParticipant(identity)
	h.hub.Join(semesterID, participant)
	defer h.hub.Leave(semesterID, participant)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-participant.Outbound():
			if !ok {
				return false
			}
			c.SSEvent("message", string(msg))
			return true
		}
	})
}
