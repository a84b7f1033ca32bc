package rest

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fleetglass/fleetglass-backend/internal/repository"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// ListClusters handles GET /api/v1/clusters.
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.clusters.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, clusters)
}

// AddCluster handles POST /api/v1/clusters. The kubeconfig comes either as a
// file path or inline content.
func (h *Handler) AddCluster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		KubeconfigPath string `json:"kubeconfig_path"`
		Kubeconfig     string `json:"kubeconfig"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	cluster, err := h.clusters.Add(r.Context(), req.Name, req.KubeconfigPath, req.Kubeconfig)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cluster)
}

// GetCluster handles GET /api/v1/clusters/{id}.
func (h *Handler) GetCluster(w http.ResponseWriter, r *http.Request) {
	cluster, err := h.clusters.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cluster)
}

// RemoveCluster handles DELETE /api/v1/clusters/{id}.
func (h *Handler) RemoveCluster(w http.ResponseWriter, r *http.Request) {
	if err := h.clusters.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "cluster removed"})
}

// SyncCluster handles POST /api/v1/clusters/{id}/sync: trigger a cycle and
// wait for it up to the configured bound. A wait that expires answers 409 with
// the still-running job; the cycle itself keeps going.
func (h *Handler) SyncCluster(w http.ResponseWriter, r *http.Request) {
	h.syncSource(w, r, source.Ref{Kind: source.KindKubernetes, ID: mux.Vars(r)["id"]})
}

// ListNamespaces handles GET /api/v1/clusters/{id}/namespaces.
func (h *Handler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	namespaces, err := h.clusters.Namespaces(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, namespaces)
}

// ListPods handles GET /api/v1/clusters/{id}/pods?namespace=. Reads live from
// the cluster, not from the snapshot.
func (h *Handler) ListPods(w http.ResponseWriter, r *http.Request) {
	pods, err := h.clusters.Pods(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("namespace"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pods)
}

// ListClusterEvents handles GET /api/v1/clusters/{id}/events?namespace=&type=&limit=.
func (h *Handler) ListClusterEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.EventFilter{
		Namespace: q.Get("namespace"),
		Type:      q.Get("type"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	events, err := h.clusters.Events(r.Context(), mux.Vars(r)["id"], f)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}
