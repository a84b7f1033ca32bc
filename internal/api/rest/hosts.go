package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// ListHosts handles GET /api/v1/hosts.
func (h *Handler) ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.hosts.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, hosts)
}

// AddHost handles POST /api/v1/hosts. An empty endpoint falls back to the
// environment (DOCKER_HOST et al).
func (h *Handler) AddHost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Endpoint string `json:"endpoint"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	host, err := h.hosts.Add(r.Context(), req.Name, req.Endpoint)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, host)
}

// GetHost handles GET /api/v1/hosts/{id}. The detail view carries a live
// engine summary when the host answers; an unreachable engine still returns
// the row.
func (h *Handler) GetHost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	host, err := h.hosts.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	detail := struct {
		*models.DockerHost
		Engine *models.EngineInfo `json:"engine,omitempty"`
	}{DockerHost: host}
	if info, err := h.hosts.Info(r.Context(), id); err == nil {
		detail.Engine = &info
	}
	respondJSON(w, http.StatusOK, detail)
}

// RemoveHost handles DELETE /api/v1/hosts/{id}.
func (h *Handler) RemoveHost(w http.ResponseWriter, r *http.Request) {
	if err := h.hosts.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "host removed"})
}

// SyncHost handles POST /api/v1/hosts/{id}/sync.
func (h *Handler) SyncHost(w http.ResponseWriter, r *http.Request) {
	h.syncSource(w, r, source.Ref{Kind: source.KindDocker, ID: mux.Vars(r)["id"]})
}

// ListHostContainers handles GET /api/v1/hosts/{id}/containers. Reads live
// from the engine, not from the snapshot.
func (h *Handler) ListHostContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := h.hosts.Containers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, containers)
}
