package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestMemorySaveAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	for i, typ := range []string{"Person", "Dog", "Person"} {
		ev := &DetectionEvent{EventID: int64(100 + i), EntityType: typ, Confidence: 0.9, Timestamp: t0.Add(time.Duration(i) * time.Second)}
		id, err := m.SaveEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	all, err := m.ListEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(102), all[0].EventID, "newest first")

	people, err := m.ListByType(ctx, "Person", 10)
	require.NoError(t, err)
	assert.Len(t, people, 2)

	limited, err := m.ListEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemorySaveEventIsIdempotentOnEventID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	first := &DetectionEvent{EventID: 7, EntityType: "Dog", Confidence: 0.5, Timestamp: t0}
	id1, err := m.SaveEvent(ctx, first)
	require.NoError(t, err)

	again := &DetectionEvent{EventID: 7, EntityType: "Dog", Confidence: 0.8, Timestamp: t0}
	id2, err := m.SaveEvent(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	all, _ := m.ListEvents(ctx, 0)
	require.Len(t, all, 1)
	assert.InDelta(t, 0.8, all[0].Confidence, 1e-9)
}

func TestMemoryProcessed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	ev := &DetectionEvent{EventID: 1, EntityType: "Person", Timestamp: t0}
	_, _ = m.SaveEvent(ctx, ev)

	un, _ := m.ListUnprocessed(ctx, 0)
	assert.Len(t, un, 1)

	require.NoError(t, m.MarkProcessed(ctx, ev.ID))
	un, _ = m.ListUnprocessed(ctx, 0)
	assert.Empty(t, un)

	got, err := m.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	assert.ErrorIs(t, m.MarkProcessed(ctx, 999), ErrNotFound)
	_, err = m.GetEvent(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFrames(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	for i := 0; i < 3; i++ {
		_, err := m.SaveFrame(ctx, &Frame{FrameNumber: i, ImageType: "image/jpeg", ImageData: []byte{byte(i), 1}})
		require.NoError(t, err)
	}

	frames, err := m.ListFrames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, frames, 2, "oldest dropped")
	assert.Equal(t, 2, frames[0].FrameNumber)
	assert.Nil(t, frames[0].ImageData)
	assert.Equal(t, 2, frames[0].Size)

	f, err := m.GetFrame(ctx, frames[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 1}, f.ImageData)

	_, err = m.GetFrame(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryEventCap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	for i := 0; i < 5; i++ {
		_, _ = m.SaveEvent(ctx, &DetectionEvent{EventID: int64(i + 1), EntityType: "Dog", Timestamp: t0})
	}
	all, _ := m.ListEvents(ctx, 0)
	assert.Len(t, all, 2)
}
