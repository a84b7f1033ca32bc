package rest

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// GetLogs handles GET /api/v1/unified/containers/{id}/logs?tail=&container=.
// tail is clamped by the service; container narrows multi-container pods.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	tail, ok := tailParam(w, r)
	if !ok {
		return
	}
	bundle, err := h.logs.Fetch(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("container"), tail)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}

// ScanLogErrors handles GET /api/v1/unified/containers/{id}/logs/errors?tail=.
func (h *Handler) ScanLogErrors(w http.ResponseWriter, r *http.Request) {
	tail, ok := tailParam(w, r)
	if !ok {
		return
	}
	scan, err := h.logs.ScanErrors(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("container"), tail)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, scan)
}

// tailParam parses ?tail=. Absent means 0, which the service resolves to its
// default. A malformed value answers 400 and returns ok=false.
func tailParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("tail")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "tail must be an integer")
		return 0, false
	}
	return n, true
}
