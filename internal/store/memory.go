package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps events and frames in process memory. It is used when no
// database is configured. The oldest rows are dropped past maxRows.
type Memory struct {
	mu        sync.RWMutex
	maxRows   int
	nextEvent int64
	nextFrame int64
	events    []DetectionEvent
	frames    []Frame
}

func NewMemory(maxRows int) *Memory {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &Memory{maxRows: maxRows}
}

func (m *Memory) SaveEvent(_ context.Context, ev *DetectionEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].EventID == ev.EventID {
			existing := &m.events[i]
			existing.EntityType = ev.EntityType
			existing.Confidence = ev.Confidence
			existing.FrameID = ev.FrameID
			existing.Timestamp = ev.Timestamp
			ev.ID, ev.CreatedAt, ev.Processed = existing.ID, existing.CreatedAt, existing.Processed
			return ev.ID, nil
		}
	}

	m.nextEvent++
	ev.ID = m.nextEvent
	ev.CreatedAt = time.Now().UTC()
	ev.Processed = false
	m.events = append(m.events, *ev)
	if len(m.events) > m.maxRows {
		m.events = append([]DetectionEvent(nil), m.events[len(m.events)-m.maxRows:]...)
	}
	return ev.ID, nil
}

func (m *Memory) SaveFrame(_ context.Context, f *Frame) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextFrame++
	f.ID = m.nextFrame
	f.CreatedAt = time.Now().UTC()
	if f.Timestamp.IsZero() {
		f.Timestamp = f.CreatedAt
	}
	f.ImageData = append([]byte(nil), f.ImageData...)
	f.Size = len(f.ImageData)
	m.frames = append(m.frames, *f)
	if len(m.frames) > m.maxRows {
		m.frames = append([]Frame(nil), m.frames[len(m.frames)-m.maxRows:]...)
	}
	return f.ID, nil
}

func (m *Memory) ListEvents(_ context.Context, limit int) ([]DetectionEvent, error) {
	return m.selectEvents(limit, true, func(DetectionEvent) bool { return true }), nil
}

func (m *Memory) ListUnprocessed(_ context.Context, limit int) ([]DetectionEvent, error) {
	return m.selectEvents(limit, false, func(ev DetectionEvent) bool { return !ev.Processed }), nil
}

func (m *Memory) ListByType(_ context.Context, entityType string, limit int) ([]DetectionEvent, error) {
	return m.selectEvents(limit, true, func(ev DetectionEvent) bool { return ev.EntityType == entityType }), nil
}

func (m *Memory) GetEvent(_ context.Context, id int64) (*DetectionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ev := range m.events {
		if ev.ID == id {
			out := ev
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) MarkProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Processed = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ListFrames(_ context.Context, limit int) ([]Frame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Frame, 0, len(m.frames))
	for i := len(m.frames) - 1; i >= 0; i-- {
		f := m.frames[i]
		f.ImageData = nil
		out = append(out, f)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetFrame(_ context.Context, id int64) (*Frame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.frames {
		if f.ID == id {
			out := f
			out.ImageData = append([]byte(nil), f.ImageData...)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Ping(context.Context) error { return nil }

// selectEvents returns matching events, newest first when newestFirst is
// set and in insertion order otherwise.
func (m *Memory) selectEvents(limit int, newestFirst bool, keep func(DetectionEvent) bool) []DetectionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DetectionEvent, 0)
	for _, ev := range m.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	if newestFirst {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Timestamp.Equal(out[j].Timestamp) {
				return out[i].ID > out[j].ID
			}
			return out[i].Timestamp.After(out[j].Timestamp)
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
