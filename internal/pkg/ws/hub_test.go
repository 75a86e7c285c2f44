package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/pkg/pubsub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// startServer 每个连接分配 userFor 返回的用户 ID，并在连接断开后注销
func startServer(t *testing.T, hub *Hub, userFor func() int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := &Client{UserID: userFor(), Conn: conn}
		hub.Register(client)

		go func() {
			defer hub.Unregister(client)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_Empty(t *testing.T) {
	hub := NewHub(zap.NewNop())

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline(123))
	assert.NoError(t, hub.SendToUser(123, &Message{Type: "test"}))
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	server := startServer(t, hub, func() int64 { return 100 })
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.IsOnline(100) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.ConnectionCount())

	conn.Close()
	require.Eventually(t, func() bool { return !hub.IsOnline(100) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_SendToUser_AllConnections(t *testing.T) {
	hub := NewHub(zap.NewNop())
	server := startServer(t, hub, func() int64 { return 200 })
	defer server.Close()

	conn1 := dial(t, server)
	defer conn1.Close()
	conn2 := dial(t, server)
	defer conn2.Close()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)

	err := hub.SendToUser(200, &Message{Type: "notification", Data: map[string]string{"content": "Hello"}})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, received, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(received), "notification")
		assert.Contains(t, string(received), "Hello")
	}
}

func TestHub_MultipleUsers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	var next int64
	server := startServer(t, hub, func() int64 { return atomic.AddInt64(&next, 1) })
	defer server.Close()

	for i := 0; i < 3; i++ {
		conn := dial(t, server)
		defer conn.Close()
	}

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 3 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline(1))
	assert.True(t, hub.IsOnline(2))
	assert.True(t, hub.IsOnline(3))
	assert.False(t, hub.IsOnline(4))
}

func TestHub_ForwardReminder(t *testing.T) {
	hub := NewHub(zap.NewNop())
	server := startServer(t, hub, func() int64 { return 42 })
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.IsOnline(42) }, time.Second, 10*time.Millisecond)

	hub.ForwardReminder(&pubsub.ReminderEvent{
		Type:           "subscription_reminder",
		Event:          pubsub.EventNotified,
		UserID:         42,
		SubscriptionID: 7,
		RunID:          "run-1",
		DaysBefore:     5,
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, received, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string               `json:"type"`
		Data pubsub.ReminderEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(received, &msg))
	assert.Equal(t, "subscription_reminder", msg.Type)
	assert.Equal(t, pubsub.EventNotified, msg.Data.Event)
	assert.Equal(t, int64(7), msg.Data.SubscriptionID)
	assert.Equal(t, 5, msg.Data.DaysBefore)
}
