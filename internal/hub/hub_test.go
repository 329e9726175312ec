package hub

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id   string
	fail bool

	mu   sync.Mutex
	msgs [][]byte
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

func newTestHub() *Hub { return New(zerolog.Nop()) }

func TestBroadcastToUnknownTopicDeliversNothing(t *testing.T) {
	h := newTestHub()
	c := newFakeConn("a")
	h.Connect(c)

	assert.Empty(t, h.Topics().SubscribersOf("never"))
	assert.Equal(t, 0, h.BroadcastToTopic("never", []byte("x"), ""))
	assert.Empty(t, c.received())
}

func TestSubscribeTwiceIsIdempotent(t *testing.T) {
	h := newTestHub()
	c := newFakeConn("a")
	h.Subscribe("cam1", c)
	h.Subscribe("cam1", c)

	assert.Len(t, h.Topics().SubscribersOf("cam1"), 1)
	assert.Equal(t, 1, h.BroadcastToTopic("cam1", []byte("x"), ""))
	assert.Len(t, c.received(), 1)
}

func TestUnsubscribeLeavesEveryTopic(t *testing.T) {
	h := newTestHub()
	c := newFakeConn("a")
	other := newFakeConn("b")
	for _, topic := range []string{"cam1", "cam2", "default"} {
		h.Subscribe(topic, c)
	}
	h.Subscribe("cam1", other)

	h.Unsubscribe(c)

	for _, topic := range []string{"cam1", "cam2", "default"} {
		h.BroadcastToTopic(topic, []byte("x"), "")
	}
	assert.Empty(t, c.received())
	assert.Len(t, other.received(), 1)
	assert.Equal(t, 0, h.Topics().Count("cam2"))
}

func TestBroadcastIsolatesFailedSubscriber(t *testing.T) {
	h := newTestHub()
	first, second, third := newFakeConn("1"), newFakeConn("2"), newFakeConn("3")
	second.fail = true
	for _, c := range []*fakeConn{first, second, third} {
		h.Connect(c)
		h.Subscribe("cam1", c)
	}

	delivered := h.BroadcastToTopic("cam1", []byte("frame"), "")

	assert.Equal(t, 2, delivered)
	assert.Len(t, first.received(), 1)
	assert.Len(t, third.received(), 1)
	assert.Equal(t, 2, h.Topics().Count("cam1"))
	// pruned from the topic only, still tracked
	assert.Equal(t, 3, h.Registry().Len())
}

func TestFrameEnvelopeRoundTrip(t *testing.T) {
	h := newTestHub()
	c := newFakeConn("a")
	h.Subscribe("cam1", c)

	payload := []byte{0xff, 0xd8, 0x00, 0x01, 0xfe}
	require.Equal(t, 1, h.BroadcastToTopic("cam1", payload, ""))

	var msg FrameMessage
	require.NoError(t, json.Unmarshal(c.received()[0], &msg))
	assert.Equal(t, TypeFrame, msg.Type)
	assert.Equal(t, "cam1", msg.StreamID)
	assert.Equal(t, DefaultContentType, msg.ContentType)

	decoded, err := base64.StdEncoding.DecodeString(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestFrameEnvelopeKeepsContentType(t *testing.T) {
	h := newTestHub()
	c := newFakeConn("a")
	h.Subscribe("", c)

	h.BroadcastToTopic("default", []byte("png"), "image/png")

	var msg FrameMessage
	require.NoError(t, json.Unmarshal(c.received()[0], &msg))
	assert.Equal(t, "image/png", msg.ContentType)
	assert.Equal(t, DefaultTopic, msg.StreamID)
}

func TestBroadcastToAllDisconnectsFailures(t *testing.T) {
	h := newTestHub()
	ok, bad := newFakeConn("ok"), newFakeConn("bad")
	bad.fail = true
	h.Connect(ok)
	h.Connect(bad)
	h.Subscribe("cam1", bad)

	delivered := h.BroadcastToAll([]byte(`{"type":"alert"}`))

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, h.Registry().Len())
	assert.Equal(t, 0, h.Topics().Count("cam1"))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub()
	c := newFakeConn("a")
	h.Connect(c)
	h.Subscribe("cam1", c)

	h.Disconnect(c)
	h.Disconnect(c)

	stats := h.Stats()
	assert.Equal(t, 0, stats.OpenConnections)
	assert.Equal(t, 0, stats.TotalSubscribers)
	assert.Empty(t, stats.Topics)
}

func TestStats(t *testing.T) {
	h := newTestHub()
	a, b := newFakeConn("a"), newFakeConn("b")
	h.Connect(a)
	h.Connect(b)
	h.Subscribe("cam1", a)
	h.Subscribe("cam1", b)
	h.Subscribe("cam2", a)

	stats := h.Stats()
	assert.Equal(t, 2, stats.OpenConnections)
	assert.Equal(t, 3, stats.TotalSubscribers)
	assert.Equal(t, map[string]int{"cam1": 2, "cam2": 1}, stats.Topics)
}

func TestConcurrentSubscribeBroadcastDisconnect(t *testing.T) {
	h := newTestHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", i))
			h.Connect(c)
			h.Subscribe("cam1", c)
			h.BroadcastToTopic("cam1", []byte("x"), "")
			h.BroadcastToAll([]byte("y"))
			h.Disconnect(c)
		}(i)
	}
	wg.Wait()

	stats := h.Stats()
	assert.Equal(t, 0, stats.OpenConnections)
	assert.Equal(t, 0, stats.TotalSubscribers)
}
