package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/collab"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newRealtimeServer(t *testing.T, hub *collab.Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewRealtimeHandler(hub, collab.ConnConfig{PongWait: 2 * time.Second}, nil, nil)

	router := gin.New()
	identify := func(c *gin.Context) {
		if user := c.Query("user"); user != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: user, FullName: c.Query("name")})
		}
		c.Next()
	}
	router.GET("/realtime/timetable/:semester_id/ws", identify, handler.Connect)
	router.GET("/realtime/timetable/:semester_id/events", identify, handler.Events)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestRealtimeHandlerWebSocketJoin(t *testing.T) {
	hub := collab.NewHub(collab.HubConfig{}, nil, nil)
	server := newRealtimeServer(t, hub)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime/timetable/sem-1/ws?user=u-1&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := collab.Decode(data)
	require.NoError(t, err)
	state, ok := event.(collab.StateSync)
	require.True(t, ok)
	require.Len(t, state.Users, 1)
	assert.Equal(t, "Alice", state.Users[0].Name)
	assert.Equal(t, 1, hub.Sessions())
}

func TestRealtimeHandlerRejectsAnonymous(t *testing.T) {
	hub := collab.NewHub(collab.HubConfig{}, nil, nil)
	server := newRealtimeServer(t, hub)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime/timetable/sem-1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, hub.Sessions())
}

func TestRealtimeHandlerEventsStream(t *testing.T) {
	hub := collab.NewHub(collab.HubConfig{}, nil, nil)
	server := newRealtimeServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/realtime/timetable/sem-1/events?user=u-2&name=Bob", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	event, err := collab.Decode([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, collab.TypeStateSync, event.Type())

	require.NoError(t, hub.PublishRefresh(ctx, "sem-1", "u-9"))
	data = ""
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	event, err = collab.Decode([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, collab.TypeTableRefresh, event.Type())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://school.example"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://school.example")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
	assert.True(t, originChecker(nil)(req))
}
