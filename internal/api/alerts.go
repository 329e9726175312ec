package api

import (
	"net/http"
)

func (a *API) handleAlertState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.alert.Snapshot())
}

func (a *API) handleAlertReset(w http.ResponseWriter, r *http.Request) {
	a.alert.Reset()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Alert state reset",
		"state":   a.alert.Snapshot(),
	})
}
