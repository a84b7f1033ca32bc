// Package rest is the JSON API over the registry, the unified view, the
// scheduler and the action dispatcher. Routes are versioned under /api/v1.
package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetglass/fleetglass-backend/internal/config"
	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/repository"
	"github.com/fleetglass/fleetglass-backend/internal/service"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// ContainerView is the slice of the unified view the API reads.
type ContainerView interface {
	Containers(filter models.ContainerFilter) models.ContainerPage
	Find(unifiedID string) (models.UnifiedContainer, error)
	Stats() models.UnifiedStats
}

// ActionDispatcher runs one lifecycle action against a unified entity.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, unifiedID, action string) (models.ActionResult, error)
}

// SyncControl is the scheduler slice behind the sync endpoints.
type SyncControl interface {
	WaitSync(ctx context.Context, ref source.Ref, wait time.Duration) (models.SyncJob, error)
	TriggerAll(ctx context.Context, wait time.Duration) []models.SyncJob
	Jobs() []models.SyncJob
}

// Handler holds the API dependencies. One instance serves all routes.
type Handler struct {
	clusters   service.ClusterService
	hosts      service.HostService
	logs       service.LogsService
	view       ContainerView
	dispatcher ActionDispatcher
	sync       SyncControl
	repo       repository.Store
	cfg        *config.Config
	logger     *slog.Logger
}

func NewHandler(
	clusters service.ClusterService,
	hosts service.HostService,
	logs service.LogsService,
	view ContainerView,
	dispatcher ActionDispatcher,
	sync SyncControl,
	repo repository.Store,
	cfg *config.Config,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		clusters:   clusters,
		hosts:      hosts,
		logs:       logs,
		view:       view,
		dispatcher: dispatcher,
		sync:       sync,
		repo:       repo,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetupRoutes configures all API routes on the given router.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/healthz", h.Live).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", h.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/clusters", h.ListClusters).Methods(http.MethodGet)
	api.HandleFunc("/clusters", h.AddCluster).Methods(http.MethodPost)
	api.HandleFunc("/clusters/{id}", h.GetCluster).Methods(http.MethodGet)
	api.HandleFunc("/clusters/{id}", h.RemoveCluster).Methods(http.MethodDelete)
	api.HandleFunc("/clusters/{id}/sync", h.SyncCluster).Methods(http.MethodPost)
	api.HandleFunc("/clusters/{id}/namespaces", h.ListNamespaces).Methods(http.MethodGet)
	api.HandleFunc("/clusters/{id}/pods", h.ListPods).Methods(http.MethodGet)
	api.HandleFunc("/clusters/{id}/events", h.ListClusterEvents).Methods(http.MethodGet)

	api.HandleFunc("/hosts", h.ListHosts).Methods(http.MethodGet)
	api.HandleFunc("/hosts", h.AddHost).Methods(http.MethodPost)
	api.HandleFunc("/hosts/{id}", h.GetHost).Methods(http.MethodGet)
	api.HandleFunc("/hosts/{id}", h.RemoveHost).Methods(http.MethodDelete)
	api.HandleFunc("/hosts/{id}/sync", h.SyncHost).Methods(http.MethodPost)
	api.HandleFunc("/hosts/{id}/containers", h.ListHostContainers).Methods(http.MethodGet)

	api.HandleFunc("/unified/containers", h.ListUnifiedContainers).Methods(http.MethodGet)
	api.HandleFunc("/unified/containers/{id}", h.GetUnifiedContainer).Methods(http.MethodGet)
	api.HandleFunc("/unified/containers/{id}/logs", h.GetLogs).Methods(http.MethodGet)
	api.HandleFunc("/unified/containers/{id}/logs/errors", h.ScanLogErrors).Methods(http.MethodGet)
	api.HandleFunc("/unified/containers/{id}/actions", h.DispatchAction).Methods(http.MethodPost)
	api.HandleFunc("/unified/stats", h.GetUnifiedStats).Methods(http.MethodGet)

	api.HandleFunc("/sync", h.SyncAll).Methods(http.MethodPost)
	api.HandleFunc("/sync/status", h.SyncStatus).Methods(http.MethodGet)
	api.HandleFunc("/events", h.ListEvents).Methods(http.MethodGet)

	if h.cfg != nil && h.cfg.AuthAllowTokenMint {
		api.HandleFunc("/auth/token", h.MintToken).Methods(http.MethodPost)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a request body into dst. Unknown fields are rejected so
// typos surface as 400s instead of silently-zero fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
