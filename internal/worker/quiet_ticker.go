package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// QuietChecker is the part of the alert debouncer the ticker drives.
type QuietChecker interface {
	CheckQuietTransition() bool
}

// QuietTicker periodically asks the debouncer whether the active period
// has lapsed. Without it a debouncer stays ACTIVE until the next detection.
type QuietTicker struct {
	checker  QuietChecker
	interval time.Duration
	log      zerolog.Logger
}

func NewQuietTicker(checker QuietChecker, interval time.Duration, log zerolog.Logger) *QuietTicker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &QuietTicker{
		checker:  checker,
		interval: interval,
		log:      log.With().Str("component", "quiet_ticker").Logger(),
	}
}

// Run blocks until ctx is done.
func (w *QuietTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Debug().Dur("interval", w.interval).Msg("started")
	for {
		select {
		case <-ctx.Done():
			w.log.Debug().Msg("stopped")
			return
		case <-ticker.C:
			w.checker.CheckQuietTransition()
		}
	}
}
