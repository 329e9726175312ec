package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jsherman999/sentryhub/internal/hub"
)

// handlePushFrame relays one frame to the stream's subscribers. The frame is
// either a multipart "frame" file or the raw request body.
func (a *API) handlePushFrame(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamId")
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.API.MaxFrameBytes)

	payload, contentType, err := a.readFrame(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "frame too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "frame is empty")
		return
	}

	if q := r.URL.Query().Get("contentType"); q != "" {
		contentType = q
	}
	delivered := a.hub.BroadcastToTopic(streamID, payload, contentType)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"message":        "Frame broadcast",
		"deliveredCount": delivered,
	})
}

// readFrame returns the frame bytes and the content type declared for them,
// which may be empty.
func (a *API) readFrame(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", err
		}
		if strings.HasPrefix(mediaType, "image/") {
			return b, mediaType, nil
		}
		return b, "", nil
	}

	if err := r.ParseMultipartForm(a.cfg.API.MaxFrameBytes); err != nil {
		return nil, "", err
	}
	file, hdr, err := r.FormFile("frame")
	if err != nil {
		return nil, "", errors.New("multipart field 'frame' is required")
	}
	defer file.Close()
	b, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	ct := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		ct = ""
	}
	return b, ct, nil
}

func (a *API) handleStreamHealth(w http.ResponseWriter, r *http.Request) {
	s := a.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "UP",
		"service":          "sentryhub-stream",
		"totalSubscribers": s.TotalSubscribers,
		"openConnections":  s.OpenConnections,
	})
}

func (a *API) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamId")
	s := a.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"streamId":         streamID,
		"subscribers":      s.Topics[streamID],
		"totalSubscribers": s.TotalSubscribers,
	})
}

var _ Broadcaster = (*hub.Hub)(nil)
