package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	*fixture
	srv *httptest.Server
}

func newWSFixture(t *testing.T, origins ...string) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	s := NewServer(f.reg, f.dir, ServerOptions{
		Client:         ClientOptions{SendQueueSize: 8, WriteTimeout: time.Second, PongWait: 5 * time.Second},
		AllowedOrigins: origins,
	})
	r := gin.New()
	s.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsFixture{fixture: f, srv: srv}
}

func (w *wsFixture) dial(t *testing.T, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(w.srv.URL, "http") + "/ws/" + clientID
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func sendRegister(t *testing.T, c *websocket.Conn, username string) {
	t.Helper()
	require.NoError(t, c.WriteJSON(map[string]any{"type": TypeRegister, "username": username, "clientId": "ignored", "timestamp": 1700000000000}))
}

func TestWS_RegisterThenDeliver(t *testing.T) {
	w := newWSFixture(t)
	w.register(t, "alice")
	c := w.dial(t, "A1")

	require.Eventually(t, func() bool { return w.reg.IsLive("A1") }, 2*time.Second, 10*time.Millisecond)
	sendRegister(t, c, "alice")
	require.Eventually(t, func() bool {
		id, ok := w.reg.ClientID("alice")
		return ok && id == "A1"
	}, 2*time.Second, 10*time.Millisecond)

	receipt, err := w.disp.Deliver(context.Background(), "alice", "turn left")
	require.NoError(t, err)
	assert.Equal(t, StatusMessageSent, receipt.Status)

	m := readFrame(t, c)
	assert.Equal(t, TypeVoiceInstruction, m["type"])
	assert.Equal(t, "turn left", m["content"])
	assert.NotEmpty(t, m["timestamp"])
}

func TestWS_RegisterUnknownUsernameGetsSystemFrame(t *testing.T) {
	w := newWSFixture(t)
	c := w.dial(t, "A1")
	sendRegister(t, c, "nobody")

	m := readFrame(t, c)
	assert.Equal(t, TypeSystem, m["type"])
	assert.Contains(t, m["content"], "nobody")
	_, ok := w.reg.ClientID("nobody")
	assert.False(t, ok)
	assert.True(t, w.reg.IsLive("A1"), "rejected register keeps the connection open")
}

func TestWS_HeartbeatEchoAndUnknownTypesIgnored(t *testing.T) {
	w := newWSFixture(t)
	c := w.dial(t, "A1")
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, c.WriteJSON(map[string]any{"type": "typing"}))
	require.NoError(t, c.WriteJSON(map[string]any{"type": TypeHeartbeat, "timestamp": 1}))

	m := readFrame(t, c)
	assert.Equal(t, TypeHeartbeat, m["type"])
	assert.NotZero(t, m["timestamp"])
}

func TestWS_CloseClearsDirectory(t *testing.T) {
	w := newWSFixture(t)
	w.register(t, "alice")
	c := w.dial(t, "A1")
	sendRegister(t, c, "alice")
	require.Eventually(t, func() bool {
		_, ok := w.persisted(t, "alice")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = c.Close()

	require.Eventually(t, func() bool { return !w.reg.IsLive("A1") }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := w.persisted(t, "alice")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWS_SupersedingConnectionReceivesDelivery(t *testing.T) {
	w := newWSFixture(t)
	w.register(t, "alice")
	first := w.dial(t, "A1")
	sendRegister(t, first, "alice")
	require.Eventually(t, func() bool {
		_, ok := w.reg.ClientID("alice")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	second := w.dial(t, "A1")
	// the first socket is closed by the server
	_ = first.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		_, err := w.disp.Deliver(context.Background(), "alice", "hi")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	m := readFrame(t, second)
	assert.Equal(t, "hi", m["content"])
	assert.True(t, w.reg.IsLive("A1"))
}

func TestWS_OriginCheck(t *testing.T) {
	w := newWSFixture(t, "http://localhost:3000")
	url := "ws" + strings.TrimPrefix(w.srv.URL, "http") + "/ws/A1"

	hdr := http.Header{}
	hdr.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	hdr.Set("Origin", "http://localhost:3000")
	c, _, err := websocket.DefaultDialer.Dial(url, hdr)
	require.NoError(t, err)
	_ = c.Close()
}
