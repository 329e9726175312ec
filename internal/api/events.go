package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jsherman999/sentryhub/internal/alert"
	"github.com/jsherman999/sentryhub/internal/exporter"
	"github.com/jsherman999/sentryhub/internal/store"
)

// Entity types the edge detector reports.
var entityTypes = map[string]struct{}{
	"Person": {},
	"Dog":    {},
}

var errValidation = errors.New("validation failed")

type detectionRequest struct {
	EventID    *int64   `json:"eventId"`
	EntityType string   `json:"entityType"`
	Confidence *float64 `json:"confidence"`
	FrameID    *int     `json:"frameId"`
	Timestamp  string   `json:"timestamp"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errValidation, fmt.Sprintf(format, args...))
}

// toEvent validates the request. A missing timestamp becomes now.
func (req detectionRequest) toEvent(now time.Time) (*store.DetectionEvent, error) {
	if req.EventID == nil || *req.EventID == 0 {
		return nil, invalid("eventId is required")
	}
	if _, ok := entityTypes[req.EntityType]; !ok {
		return nil, invalid("entityType must be 'Person' or 'Dog'")
	}
	if req.Confidence == nil {
		return nil, invalid("confidence is required")
	}
	if *req.Confidence < 0 || *req.Confidence > 1 {
		return nil, invalid("confidence must be between 0.0 and 1.0")
	}
	if req.FrameID == nil {
		return nil, invalid("frameId is required")
	}
	if *req.FrameID < 0 {
		return nil, invalid("frameId must be non-negative")
	}

	ts := now.UTC()
	if strings.TrimSpace(req.Timestamp) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(req.Timestamp))
		if err != nil {
			return nil, invalid("timestamp must be ISO-8601")
		}
		ts = parsed.UTC()
	}

	return &store.DetectionEvent{
		EventID:    *req.EventID,
		EntityType: req.EntityType,
		Confidence: *req.Confidence,
		FrameID:    *req.FrameID,
		Timestamp:  ts,
	}, nil
}

func decodeDetection(raw []byte) (*detectionRequest, error) {
	var req detectionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalid("bad json: %v", err)
	}
	return &req, nil
}

type upload struct {
	data        []byte
	contentType string
}

// readDetection accepts a JSON body, or multipart form data with an "event"
// JSON field and an optional "frameImage" file.
func (a *API) readDetection(w http.ResponseWriter, r *http.Request) (*detectionRequest, *upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.API.MaxFrameBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, invalid("read body: %v", err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil, invalid("either a detection event or a frame image must be provided")
		}
		req, err := decodeDetection(raw)
		return req, nil, err
	}

	if err := r.ParseMultipartForm(a.cfg.API.MaxFrameBytes); err != nil {
		return nil, nil, invalid("bad multipart form: %v", err)
	}

	var req *detectionRequest
	if raw := r.FormValue("event"); raw != "" {
		var err error
		if req, err = decodeDetection([]byte(raw)); err != nil {
			return nil, nil, err
		}
	}

	var img *upload
	file, hdr, err := r.FormFile("frameImage")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return nil, nil, invalid("frameImage: %v", err)
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, nil, invalid("frameImage: %v", err)
		}
		if len(data) > 0 {
			img = &upload{data: data, contentType: hdr.Header.Get("Content-Type")}
		}
	}

	if req == nil && img == nil {
		return nil, nil, invalid("either a detection event or a frame image must be provided")
	}
	return req, img, nil
}

// handlePostDetection persists a detection (and its frame, when attached)
// and then feeds it to the alert debouncer.
func (a *API) handlePostDetection(w http.ResponseWriter, r *http.Request) {
	req, img, err := a.readDetection(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{"success": true, "message": "Event received successfully"}

	var ev *store.DetectionEvent
	if req != nil {
		if ev, err = req.toEvent(time.Now()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := a.store.SaveEvent(r.Context(), ev); err != nil {
			a.log.Error().Err(err).Int64("event_id", ev.EventID).Msg("save event")
			writeError(w, http.StatusInternalServerError, "failed to persist event")
			return
		}
		resp["eventId"] = ev.ID
	}

	var frame *store.Frame
	if img != nil {
		frame = &store.Frame{ImageType: img.contentType, ImageData: img.data}
		if frame.ImageType == "" {
			frame.ImageType = "image/jpeg"
		}
		if ev != nil {
			frame.FrameNumber = ev.FrameID
			frame.DetectionEventID = &ev.ID
			frame.Timestamp = ev.Timestamp
		}
		if _, err := a.store.SaveFrame(r.Context(), frame); err != nil {
			a.log.Error().Err(err).Msg("save frame")
			writeError(w, http.StatusInternalServerError, "failed to persist frame")
			return
		}
		resp["frameId"] = frame.ID
	}

	alerted := false
	if ev != nil && a.recent.seenRecently(ev.EventID) {
		a.log.Debug().Int64("event_id", ev.EventID).Msg("repeated event id; not re-alerting")
		ev = nil
	}
	if ev != nil {
		det := alert.Detection{
			EventID:    ev.ID,
			EntityType: ev.EntityType,
			Confidence: ev.Confidence,
			FrameID:    ev.FrameID,
			Timestamp:  ev.Timestamp,
		}
		var attached *alert.Image
		if frame != nil {
			attached = &alert.Image{Data: frame.ImageData, Type: frame.ImageType}
		}
		alerted = a.alert.OnDetection(det, attached)
	}
	resp["alerted"] = alerted

	writeJSON(w, http.StatusCreated, resp)
}

func queryLimit(r *http.Request, def, ceiling int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > ceiling {
		return 0, fmt.Errorf("limit must be between 1 and %d", ceiling)
	}
	return n, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (a *API) writeEvents(w http.ResponseWriter, events []store.DetectionEvent, err error) {
	if err != nil {
		a.log.Error().Err(err).Msg("list events")
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []store.DetectionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 500, 10000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := a.store.ListEvents(r.Context(), limit)
	a.writeEvents(w, events, err)
}

func (a *API) handleListUnprocessed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 500, 10000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := a.store.ListUnprocessed(r.Context(), limit)
	a.writeEvents(w, events, err)
}

func (a *API) handleListByType(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 500, 10000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := a.store.ListByType(r.Context(), chi.URLParam(r, "entityType"), limit)
	a.writeEvents(w, events, err)
}

func (a *API) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad id")
		return
	}
	ev, err := a.store.GetEvent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Int64("id", id).Msg("get event")
		writeError(w, http.StatusInternalServerError, "failed to read event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad id")
		return
	}
	err = a.store.MarkProcessed(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Int64("id", id).Msg("mark processed")
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event marked as processed"})
}

func (a *API) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 10000, 100000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}
	b, ct, err := exporter.Export(r.Context(), a.store, format, limit)
	if err != nil {
		a.log.Error().Err(err).Msg("export events")
		writeError(w, http.StatusInternalServerError, "failed to export events")
		return
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
