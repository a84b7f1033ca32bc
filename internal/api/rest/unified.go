package rest

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fleetglass/fleetglass-backend/internal/models"
)

// ListUnifiedContainers handles
// GET /api/v1/unified/containers?source=&status=&q=&scope=&page=&page_size=.
// Served entirely from snapshots; no connector is touched.
func (h *Handler) ListUnifiedContainers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ContainerFilter{
		Source: q.Get("source"),
		Status: q.Get("status"),
		Query:  q.Get("q"),
		Scope:  q.Get("scope"),
	}

	var err error
	if filter.Page, err = queryInt(q.Get("page")); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "page must be a non-negative integer")
		return
	}
	if filter.PageSize, err = queryInt(q.Get("page_size")); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "page_size must be a non-negative integer")
		return
	}

	respondJSON(w, http.StatusOK, h.view.Containers(filter))
}

// GetUnifiedContainer handles GET /api/v1/unified/containers/{id}.
func (h *Handler) GetUnifiedContainer(w http.ResponseWriter, r *http.Request) {
	c, err := h.view.Find(mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// GetUnifiedStats handles GET /api/v1/unified/stats.
func (h *Handler) GetUnifiedStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.view.Stats())
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
