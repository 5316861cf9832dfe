package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/fuomag9/notionsocial/internal/auth"
	"github.com/fuomag9/notionsocial/internal/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(testSecret, []string{"http://localhost:3000"}, logging.NewSilent())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.Sign(userID, testSecret, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubPublishesToUser(t *testing.T) {
	hub, url := startHub(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	require.Eventually(t, func() bool {
		return hub.ClientCount("alice") == 1 && hub.ClientCount("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish("alice", "connection.updated", map[string]string{"provider": "notion"})
	hub.Publish("bob", "database.connected", map[string]string{"id": "db-1"})

	msg := readMessage(t, alice)
	assert.Equal(t, "connection.updated", msg.Type)
	assert.JSONEq(t, `{"provider":"notion"}`, string(msg.Payload))

	msg = readMessage(t, bob)
	assert.Equal(t, "database.connected", msg.Type)
}

func TestHubAnswersPing(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping","payload":{}}`)))

	assert.Equal(t, "pong", readMessage(t, conn).Type)
}

func TestHubRejectsUnauthenticated(t *testing.T) {
	_, url := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url, "alice")

	require.Eventually(t, func() bool { return hub.ClientCount("alice") == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return hub.ClientCount("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t, []string{"app.example.com", "localhost:3000", "*.example.org"},
		originHosts([]string{"https://app.example.com", "http://localhost:3000", "*.example.org"}))
}
