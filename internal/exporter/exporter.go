package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jsherman999/sentryhub/internal/store"
)

type EventLister interface {
	ListEvents(ctx context.Context, limit int) ([]store.DetectionEvent, error)
}

type EventsExport struct {
	ExportedAt time.Time              `json:"exportedAt"`
	Count      int                    `json:"count"`
	Events     []store.DetectionEvent `json:"events"`
}

// Export renders events in format ("json" or "csv") and returns the body
// with its content type.
func Export(ctx context.Context, st EventLister, format string, limit int) ([]byte, string, error) {
	switch format {
	case "", "json":
		return ExportEventsJSON(ctx, st, limit)
	case "csv":
		return ExportEventsCSV(ctx, st, limit)
	default:
		return nil, "", fmt.Errorf("unknown format %q (use json|csv)", format)
	}
}

func ExportEventsJSON(ctx context.Context, st EventLister, limit int) ([]byte, string, error) {
	events, err := st.ListEvents(ctx, limit)
	if err != nil {
		return nil, "", err
	}
	if events == nil {
		events = []store.DetectionEvent{}
	}
	b, err := json.MarshalIndent(EventsExport{ExportedAt: time.Now().UTC(), Count: len(events), Events: events}, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return b, "application/json", nil
}

func ExportEventsCSV(ctx context.Context, st EventLister, limit int) ([]byte, string, error) {
	events, err := st.ListEvents(ctx, limit)
	if err != nil {
		return nil, "", err
	}
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"id", "event_id", "entity_type", "confidence", "frame_id", "timestamp", "processed"})
	for _, e := range events {
		_ = w.Write([]string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.EventID, 10),
			e.EntityType,
			strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			strconv.Itoa(e.FrameID),
			e.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatBool(e.Processed),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/csv", nil
}
