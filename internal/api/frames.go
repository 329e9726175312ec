package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jsherman999/sentryhub/internal/store"
)

func (a *API) handleListFrames(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 100, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	frames, err := a.store.ListFrames(r.Context(), limit)
	if err != nil {
		a.log.Error().Err(err).Msg("list frames")
		writeError(w, http.StatusInternalServerError, "failed to read frames")
		return
	}
	if frames == nil {
		frames = []store.Frame{}
	}
	writeJSON(w, http.StatusOK, frames)
}

// handleGetFrame returns frame metadata, or the stored image itself when
// called with ?image=1.
func (a *API) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad id")
		return
	}
	f, err := a.store.GetFrame(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Int64("id", id).Msg("get frame")
		writeError(w, http.StatusInternalServerError, "failed to read frame")
		return
	}

	if raw, _ := strconv.ParseBool(r.URL.Query().Get("image")); raw {
		w.Header().Set("Content-Type", f.ImageType)
		w.Header().Set("Content-Length", strconv.Itoa(len(f.ImageData)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(f.ImageData)
		return
	}
	writeJSON(w, http.StatusOK, f)
}
