package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsherman999/sentryhub/internal/db"
)

var ErrNotFound = errors.New("not found")

type DetectionEvent struct {
	ID         int64     `json:"id"`
	EventID    int64     `json:"eventId"`
	EntityType string    `json:"entityType"`
	Confidence float64   `json:"confidence"`
	FrameID    int       `json:"frameId"`
	Timestamp  time.Time `json:"timestamp"`
	Processed  bool      `json:"processed"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Frame struct {
	ID               int64     `json:"id"`
	FrameNumber      int       `json:"frameNumber"`
	ImageType        string    `json:"imageType"`
	ImageData        []byte    `json:"-"`
	Size             int       `json:"size"`
	DetectionEventID *int64    `json:"detectionEventId"`
	Timestamp        time.Time `json:"timestamp"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Store persists events and frames in Postgres.
type Store struct{ db *db.DB }

func New(d *db.DB) *Store { return &Store{db: d} }

const eventColumns = `id, event_id, entity_type, confidence, frame_id, ts, processed, created_at`

// SaveEvent inserts ev, or refreshes the row already holding ev.EventID so
// that an edge device retrying a post does not create duplicates.
func (s *Store) SaveEvent(ctx context.Context, ev *DetectionEvent) (int64, error) {
	err := s.db.Pool.QueryRow(ctx, `
INSERT INTO detection_events(event_id, entity_type, confidence, frame_id, ts, processed)
VALUES ($1,$2,$3,$4,$5,false)
ON CONFLICT (event_id) DO UPDATE SET entity_type=EXCLUDED.entity_type, confidence=EXCLUDED.confidence, frame_id=EXCLUDED.frame_id, ts=EXCLUDED.ts
RETURNING id, created_at;
`, ev.EventID, ev.EntityType, ev.Confidence, ev.FrameID, ev.Timestamp).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert detection_event: %w", err)
	}
	return ev.ID, nil
}

func (s *Store) SaveFrame(ctx context.Context, f *Frame) (int64, error) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	err := s.db.Pool.QueryRow(ctx, `
INSERT INTO frames(frame_number, image_type, image_data, detection_event_id, ts)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, created_at;
`, f.FrameNumber, f.ImageType, f.ImageData, f.DetectionEventID, f.Timestamp).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert frame: %w", err)
	}
	f.Size = len(f.ImageData)
	return f.ID, nil
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]DetectionEvent, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM detection_events ORDER BY ts DESC, id DESC LIMIT $1`, limit)
}

func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]DetectionEvent, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM detection_events WHERE NOT processed ORDER BY id ASC LIMIT $1`, limit)
}

func (s *Store) ListByType(ctx context.Context, entityType string, limit int) ([]DetectionEvent, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM detection_events WHERE entity_type=$2 ORDER BY ts DESC, id DESC LIMIT $1`, limit, entityType)
}

func (s *Store) GetEvent(ctx context.Context, id int64) (*DetectionEvent, error) {
	evs, err := s.queryEvents(ctx, `SELECT `+eventColumns+` FROM detection_events WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, ErrNotFound
	}
	return &evs[0], nil
}

func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	tag, err := s.db.Pool.Exec(ctx, `UPDATE detection_events SET processed=true WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListFrames(ctx context.Context, limit int) ([]Frame, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, frame_number, image_type, octet_length(image_data), detection_event_id, ts, created_at
FROM frames
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Frame
	for rows.Next() {
		var f Frame
		if err := rows.Scan(&f.ID, &f.FrameNumber, &f.ImageType, &f.Size, &f.DetectionEventID, &f.Timestamp, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) GetFrame(ctx context.Context, id int64) (*Frame, error) {
	var f Frame
	err := s.db.Pool.QueryRow(ctx, `
SELECT id, frame_number, image_type, image_data, detection_event_id, ts, created_at
FROM frames WHERE id=$1
`, id).Scan(&f.ID, &f.FrameNumber, &f.ImageType, &f.ImageData, &f.DetectionEventID, &f.Timestamp, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get frame: %w", err)
	}
	f.Size = len(f.ImageData)
	return &f, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) queryEvents(ctx context.Context, q string, args ...any) ([]DetectionEvent, error) {
	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DetectionEvent
	for rows.Next() {
		var ev DetectionEvent
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.EntityType, &ev.Confidence, &ev.FrameID, &ev.Timestamp, &ev.Processed, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
