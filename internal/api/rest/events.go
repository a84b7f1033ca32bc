package rest

import (
	"net/http"
	"strconv"

	"github.com/fleetglass/fleetglass-backend/internal/pkg/validate"
	"github.com/fleetglass/fleetglass-backend/internal/repository"
)

// ListEvents handles GET /api/v1/events?cluster=&namespace=&type=&limit=, the
// cross-cluster event feed.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.EventFilter{
		ClusterID: q.Get("cluster"),
		Namespace: q.Get("namespace"),
		Type:      q.Get("type"),
	}
	if f.ClusterID != "" && !validate.SourceID(f.ClusterID) {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid cluster id")
		return
	}
	if f.Namespace != "" && !validate.Namespace(f.Namespace) {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid namespace")
		return
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	events, err := h.repo.ListEvents(r.Context(), f)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}
