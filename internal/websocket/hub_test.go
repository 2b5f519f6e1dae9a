package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, srv
}

// dial connects a client, optionally as userID, and waits until the hub
// has registered it.
func dial(t *testing.T, hub *Hub, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if userID != "" {
		url += "?userId=" + userID
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Message
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHub_TracksConnections(t *testing.T) {
	hub, srv := newTestHub(t)
	assert.Equal(t, 0, hub.ClientCount())

	conn := dial(t, hub, srv, "")
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_FrameCarriesEventAndPayload(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, hub, srv, "")

	payload := `{"task":{"id":"task-123"},"recipients":[]}`
	hub.Broadcast("notification.task.updated", json.RawMessage(payload))

	frame := readFrame(t, conn)
	assert.Equal(t, "notification.task.updated", frame.Event)
	assert.JSONEq(t, payload, string(frame.Payload))
	assert.False(t, frame.Timestamp.IsZero())
}

func TestHub_UnaddressedEventsReachEveryClient(t *testing.T) {
	hub, srv := newTestHub(t)
	conns := []*websocket.Conn{dial(t, hub, srv, "alice"), dial(t, hub, srv, "")}

	hub.Broadcast("comment.created", json.RawMessage(`{"comment":{"id":"c-multi"}}`))

	for i, conn := range conns {
		frame := readFrame(t, conn)
		assert.Contains(t, string(frame.Payload), "c-multi", "client %d", i)
	}
}

func TestHub_AddressedEventsReachOnlyRecipients(t *testing.T) {
	hub, srv := newTestHub(t)
	alice := dial(t, hub, srv, "alice")
	bob := dial(t, hub, srv, "bob")
	board := dial(t, hub, srv, "")

	hub.Broadcast("notification.task.created", json.RawMessage(`{"task":{"id":"for-alice"},"recipients":["alice"]}`))
	hub.Broadcast("task.updated", json.RawMessage(`{"task":{"id":"for-all"}}`))

	assert.Contains(t, string(readFrame(t, alice).Payload), "for-alice")
	assert.Contains(t, string(readFrame(t, alice).Payload), "for-all")

	// bob skips the event addressed to alice.
	assert.Contains(t, string(readFrame(t, bob).Payload), "for-all")

	assert.Contains(t, string(readFrame(t, board).Payload), "for-alice")
	assert.Contains(t, string(readFrame(t, board).Payload), "for-all")
}

func TestHub_InvalidPayloadIsDropped(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, hub, srv, "")

	hub.Broadcast("task.updated", json.RawMessage(`{not json`))
	hub.Broadcast("task.updated", json.RawMessage(`{"task":{"id":"ok"}}`))

	assert.Contains(t, string(readFrame(t, conn).Payload), `"ok"`)
}
