package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicsDefaultsEmptyName(t *testing.T) {
	tp := NewTopics()
	c := newFakeConn("a")

	assert.True(t, tp.Subscribe("", c))
	assert.False(t, tp.Subscribe(DefaultTopic, c))
	assert.Equal(t, 1, tp.Count(DefaultTopic))
}

func TestTopicsUnsubscribeReportsTopics(t *testing.T) {
	tp := NewTopics()
	c := newFakeConn("a")
	tp.Subscribe("cam2", c)
	tp.Subscribe("cam1", c)

	assert.Equal(t, []string{"cam1", "cam2"}, tp.Unsubscribe(c))
	assert.Empty(t, tp.Unsubscribe(c))
	assert.Empty(t, tp.Counts())
}

func TestTopicsRemoveSingleRelation(t *testing.T) {
	tp := NewTopics()
	c := newFakeConn("a")
	tp.Subscribe("cam1", c)
	tp.Subscribe("cam2", c)

	assert.True(t, tp.Remove("cam1", c))
	assert.False(t, tp.Remove("cam1", c))
	assert.False(t, tp.Remove("missing", c))
	assert.Equal(t, 1, tp.Count("cam2"))
	assert.Equal(t, 1, tp.Total())
}

func TestTopicsSnapshotIsDetached(t *testing.T) {
	tp := NewTopics()
	a, b := newFakeConn("a"), newFakeConn("b")
	tp.Subscribe("cam1", a)

	snap := tp.SubscribersOf("cam1")
	tp.Subscribe("cam1", b)

	assert.Len(t, snap, 1)
	assert.Len(t, tp.SubscribersOf("cam1"), 2)
}

func TestRegistryTrackUntrack(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("a")

	assert.True(t, r.Track(c))
	assert.False(t, r.Track(c))
	assert.Len(t, r.All(), 1)

	assert.True(t, r.Untrack(c))
	assert.False(t, r.Untrack(c))
	assert.Equal(t, 0, r.Len())
}
