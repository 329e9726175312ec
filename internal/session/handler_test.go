package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsherman999/sentryhub/internal/hub"
)

func newTestServer(t *testing.T, opts Options) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.New(zerolog.Nop())
	srv := httptest.NewServer(NewHandler(h, opts, []string{"*"}, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHandlerLifecycle(t *testing.T) {
	h, srv := newTestServer(t, Options{})
	ws := dial(t, srv)

	assert.Equal(t, hub.TypeConnected, readEnvelope(t, ws)["type"])
	assert.Eventually(t, func() bool { return h.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, hub.TypePong, readEnvelope(t, ws)["type"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","streamId":"cam1"}`)))
	assert.Eventually(t, func() bool { return h.Topics().Count("cam1") == 1 }, time.Second, 5*time.Millisecond)

	payload := []byte("jpeg-bytes")
	assert.Equal(t, 1, h.BroadcastToTopic("cam1", payload, ""))
	frame := readEnvelope(t, ws)
	assert.Equal(t, hub.TypeFrame, frame["type"])
	assert.Equal(t, "cam1", frame["streamId"])
	assert.Equal(t, "image/jpeg", frame["contentType"])
	decoded, err := base64.StdEncoding.DecodeString(frame["data"].(string))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	assert.Equal(t, hub.TypeError, readEnvelope(t, ws)["type"])

	// still open after the error
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, hub.TypePong, readEnvelope(t, ws)["type"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"unsubscribe"}`)))
	assert.Eventually(t, func() bool { return h.Topics().Count("cam1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandlerCleansUpOnClose(t *testing.T) {
	h, srv := newTestServer(t, Options{})
	ws := dial(t, srv)
	readEnvelope(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","streamId":"cam1"}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","streamId":"cam2"}`)))
	assert.Eventually(t, func() bool { return h.Stats().TotalSubscribers == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		s := h.Stats()
		return s.OpenConnections == 0 && s.TotalSubscribers == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHandlerIgnoresBinaryFrames(t *testing.T) {
	h, srv := newTestServer(t, Options{})
	ws := dial(t, srv)
	readEnvelope(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, hub.TypePong, readEnvelope(t, ws)["type"])
	assert.Equal(t, 1, h.Registry().Len())
}

func TestAlertReachesEveryConnection(t *testing.T) {
	h, srv := newTestServer(t, Options{})
	a, b := dial(t, srv), dial(t, srv)
	readEnvelope(t, a)
	readEnvelope(t, b)
	assert.Eventually(t, func() bool { return h.Registry().Len() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, h.BroadcastToAll([]byte(`{"type":"alert","entityType":"Person"}`)))
	assert.Equal(t, hub.TypeAlert, readEnvelope(t, a)["type"])
	assert.Equal(t, hub.TypeAlert, readEnvelope(t, b)["type"])
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://viewer.example"})

	r := httptest.NewRequest(http.MethodGet, "/ws/stream", nil)
	assert.True(t, check(r), "no origin header")

	r.Header.Set("Origin", "https://viewer.example")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 64, o.SendBuffer)
	assert.Equal(t, 60*time.Second, o.PongWait)
	assert.Less(t, o.pingPeriod(), o.PongWait)
}
