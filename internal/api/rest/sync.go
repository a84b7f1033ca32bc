package rest

import (
	"errors"
	"net/http"

	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// syncSource triggers one source's cycle and waits up to the configured bound.
// 202 carries the job state after the wait; an expired wait answers 409 and
// the cycle keeps running.
func (h *Handler) syncSource(w http.ResponseWriter, r *http.Request, ref source.Ref) {
	job, err := h.sync.WaitSync(r.Context(), ref, h.cfg.SyncWait())
	if err != nil {
		if errors.Is(err, source.ErrSyncInProgress) {
			respondJSON(w, http.StatusConflict, errorEnvelope{Error: APIError{
				Code:    CodeSyncInProgress,
				Message: "sync still running; poll /api/v1/sync/status",
			}})
			return
		}
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// SyncAll handles POST /api/v1/sync: trigger every registered source and
// report the job states after a bounded wait.
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	jobs := h.sync.TriggerAll(r.Context(), h.cfg.SyncWait())
	respondJSON(w, http.StatusAccepted, jobs)
}

// SyncStatus handles GET /api/v1/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sync.Jobs())
}
