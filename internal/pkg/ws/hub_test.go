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

	"github.com/qs3c/pixelchat_server/internal/model/dto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newTestServer 每个连接按 userIDs 顺序分配用户 ID，连接保持到 hold 结束
func newTestServer(t *testing.T, hub *Hub, hold time.Duration, userIDs ...int64) *httptest.Server {
	t.Helper()

	var next int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		idx := int(atomic.AddInt32(&next, 1)) - 1
		client := &Client{UserID: userIDs[idx%len(userIDs)], Conn: conn}
		hub.Register(client)

		time.Sleep(hold)

		hub.Unregister(client)
		conn.Close()
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_Empty(t *testing.T) {
	hub := NewHub()

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline(123))
	// Offline user is not an error
	assert.NoError(t, hub.SendToUser(123, &Message{Type: "test"}))
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	server := newTestServer(t, hub, 150*time.Millisecond, 100)

	dial(t, server)

	require.Eventually(t, func() bool { return hub.IsOnline(100) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.ConnectionCount())

	require.Eventually(t, func() bool { return !hub.IsOnline(100) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_MultipleTabsSameUser(t *testing.T) {
	hub := NewHub()
	server := newTestServer(t, hub, 500*time.Millisecond, 300)

	conn1 := dial(t, server)
	conn2 := dial(t, server)

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline(300))

	require.NoError(t, hub.SendToUser(300, &Message{Type: "ping", Data: "hello"}))

	for _, c := range []*websocket.Conn{conn1, conn2} {
		c.SetReadDeadline(time.Now().Add(time.Second))
		_, received, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(received), "hello")
	}
}

func TestHub_DeliverNotice(t *testing.T) {
	hub := NewHub()
	server := newTestServer(t, hub, 500*time.Millisecond, 7, 8)

	conn7 := dial(t, server)
	require.Eventually(t, func() bool { return hub.IsOnline(7) }, time.Second, 10*time.Millisecond)
	conn8 := dial(t, server)
	require.Eventually(t, func() bool { return hub.IsOnline(8) }, time.Second, 10*time.Millisecond)

	hub.DeliverNotice(&dto.BillingNotice{
		Type:      dto.NoticePaymentFailed,
		EventID:   "evt_1",
		UserID:    7,
		InvoiceID: "in_7",
	})

	conn7.SetReadDeadline(time.Now().Add(time.Second))
	_, received, err := conn7.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string            `json:"type"`
		Data dto.BillingNotice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(received, &msg))
	assert.Equal(t, MessageTypeBillingNotice, msg.Type)
	assert.Equal(t, "in_7", msg.Data.InvoiceID)

	// Other users receive nothing
	conn8.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn8.ReadMessage()
	assert.Error(t, err)
}

func TestHub_DeliverNotice_OfflineUser(t *testing.T) {
	hub := NewHub()

	assert.NotPanics(t, func() {
		hub.DeliverNotice(&dto.BillingNotice{UserID: 99})
		hub.DeliverNotice(&dto.BillingNotice{})
	})
}
