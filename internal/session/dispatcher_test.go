package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsherman999/sentryhub/internal/hub"
)

type fakeConn struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *fakeConn) ID() string { return "fake" }

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) last(t *testing.T) hub.StatusMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.msgs)
	var msg hub.StatusMessage
	require.NoError(t, json.Unmarshal(c.msgs[len(c.msgs)-1], &msg))
	return msg
}

type fakeSubs struct {
	subscribed   []string
	unsubscribed int
}

func (s *fakeSubs) Subscribe(topic string, _ hub.Conn) { s.subscribed = append(s.subscribed, topic) }
func (s *fakeSubs) Unsubscribe(hub.Conn)               { s.unsubscribed++ }

func TestDispatcherSubscribe(t *testing.T) {
	subs := &fakeSubs{}
	d := NewDispatcher(subs, zerolog.Nop())
	conn := &fakeConn{}

	d.Handle(conn, []byte(`{"type":"subscribe","streamId":"cam1"}`))
	d.Handle(conn, []byte(`{"type":"subscribe"}`))
	d.Handle(conn, []byte(`{"type":"subscribe","streamId":""}`))

	assert.Equal(t, []string{"cam1", "default", "default"}, subs.subscribed)
	assert.Empty(t, conn.msgs)
}

func TestDispatcherUnsubscribe(t *testing.T) {
	subs := &fakeSubs{}
	d := NewDispatcher(subs, zerolog.Nop())

	d.Handle(&fakeConn{}, []byte(`{"type":"unsubscribe"}`))
	assert.Equal(t, 1, subs.unsubscribed)
}

func TestDispatcherPing(t *testing.T) {
	d := NewDispatcher(&fakeSubs{}, zerolog.Nop())
	conn := &fakeConn{}

	d.Handle(conn, []byte(`{"type":"ping"}`))
	assert.Equal(t, hub.TypePong, conn.last(t).Type)
}

func TestDispatcherMalformed(t *testing.T) {
	d := NewDispatcher(&fakeSubs{}, zerolog.Nop())

	for _, raw := range []string{`not json`, `{}`, `{"streamId":"cam1"}`, `[1,2]`} {
		conn := &fakeConn{}
		d.Handle(conn, []byte(raw))
		msg := conn.last(t)
		assert.Equal(t, hub.TypeError, msg.Type, raw)
		assert.NotEmpty(t, msg.Message, raw)
	}
}

func TestDispatcherUnknownTypeIsIgnored(t *testing.T) {
	subs := &fakeSubs{}
	d := NewDispatcher(subs, zerolog.Nop())
	conn := &fakeConn{}

	d.Handle(conn, []byte(`{"type":"dance"}`))
	assert.Empty(t, conn.msgs)
	assert.Empty(t, subs.subscribed)
}
