// Package alert decides when a run of detections is a new event worth
// pushing to every connected client.
//
// The debouncer has two states. QUIET is the initial state. The first
// detection seen while QUIET, or any detection arriving more than the quiet
// threshold after the previous one, fires an alert and moves to ACTIVE.
// Detections inside the threshold only extend the active period. The
// ACTIVE to QUIET transition is driven from outside by CheckQuietTransition;
// the debouncer owns no timer.
package alert

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jsherman999/sentryhub/internal/hub"
)

const DefaultQuietThreshold = 30 * time.Second

// Notifier delivers an encoded envelope to every connected client.
type Notifier interface {
	BroadcastToAll(msg []byte) int
}

// Detection is the debouncer's view of one detection event.
type Detection struct {
	EventID    int64
	EntityType string
	Confidence float64
	FrameID    int
	Timestamp  time.Time
}

// Image is the frame attached to a detection, if any.
type Image struct {
	Data []byte
	Type string
}

// State is the process-wide debounce state. Create one with NewState and
// hand it to New; it is mutated only through the Debouncer.
type State struct {
	mu            sync.Mutex
	lastDetection time.Time
	quiet         bool
}

func NewState() *State {
	return &State{quiet: true}
}

type Snapshot struct {
	InQuietPeriod             bool       `json:"inQuietPeriod"`
	LastDetectionTime         *time.Time `json:"lastDetectionTime"`
	SecondsSinceLastDetection *int64     `json:"secondsSinceLastDetection,omitempty"`
}

type Debouncer struct {
	state     *State
	out       Notifier
	threshold time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Debouncer)

func WithThreshold(d time.Duration) Option {
	return func(db *Debouncer) {
		if d > 0 {
			db.threshold = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(db *Debouncer) {
		if now != nil {
			db.now = now
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(db *Debouncer) {
		db.log = log.With().Str("component", "alert").Logger()
	}
}

func New(state *State, out Notifier, opts ...Option) *Debouncer {
	d := &Debouncer{
		state:     state,
		out:       out,
		threshold: DefaultQuietThreshold,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Debouncer) Threshold() time.Duration { return d.threshold }

// OnDetection records det and reports whether it fired an alert.
//
// lastDetection only moves forward: if the clock reads earlier than the
// recorded time it is kept as is, so a clock step backwards cannot reopen
// an active period or undo a quiet one.
func (d *Debouncer) OnDetection(det Detection, img *Image) bool {
	s := d.state
	s.mu.Lock()
	now := d.now()
	fire := s.quiet || s.lastDetection.IsZero() || now.Sub(s.lastDetection) > d.threshold
	if fire {
		s.quiet = false
	}
	if now.After(s.lastDetection) {
		s.lastDetection = now
	}
	s.mu.Unlock()

	if !fire {
		return false
	}

	msg, err := hub.Encode(d.alertMessage(det, img, now))
	if err != nil {
		d.log.Error().Err(err).Int64("event_id", det.EventID).Msg("encode alert")
		return true
	}
	delivered := d.out.BroadcastToAll(msg)
	d.log.Info().
		Int64("event_id", det.EventID).
		Str("entity", det.EntityType).
		Float64("confidence", det.Confidence).
		Int("delivered", delivered).
		Msg("alert fired")
	return true
}

// CheckQuietTransition moves ACTIVE to QUIET once the threshold has passed
// since the last detection. It reports whether the state changed.
func (d *Debouncer) CheckQuietTransition() bool {
	s := d.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastDetection.IsZero() || s.quiet {
		return false
	}
	since := d.now().Sub(s.lastDetection)
	if since <= d.threshold {
		return false
	}
	s.quiet = true
	d.log.Info().Dur("since_last", since).Msg("entering quiet period")
	return true
}

func (d *Debouncer) Reset() {
	s := d.state
	s.mu.Lock()
	s.quiet = true
	s.lastDetection = time.Time{}
	s.mu.Unlock()
	d.log.Info().Msg("debounce state reset")
}

func (d *Debouncer) Snapshot() Snapshot {
	s := d.state
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{InQuietPeriod: s.quiet}
	if !s.lastDetection.IsZero() {
		last := s.lastDetection
		secs := int64(d.now().Sub(last) / time.Second)
		snap.LastDetectionTime = &last
		snap.SecondsSinceLastDetection = &secs
	}
	return snap
}

func (d *Debouncer) alertMessage(det Detection, img *Image, now time.Time) hub.AlertMessage {
	ts := det.Timestamp
	if ts.IsZero() {
		ts = now
	}
	msg := hub.AlertMessage{
		Type:       hub.TypeAlert,
		EventID:    det.EventID,
		EntityType: det.EntityType,
		Confidence: det.Confidence,
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		Message:    fmt.Sprintf("New %s detected!", det.EntityType),
	}
	if img != nil && len(img.Data) > 0 {
		msg.ImageData = base64.StdEncoding.EncodeToString(img.Data)
		msg.ImageType = img.Type
		if msg.ImageType == "" {
			msg.ImageType = hub.DefaultContentType
		}
	}
	return msg
}
