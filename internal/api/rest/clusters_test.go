package rest

import (
	"errors"
	"net/http"
	"testing"

	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

func TestListClusters(t *testing.T) {
	f := newAPIFixture(t)
	f.clusters.list = []*models.Cluster{
		{ID: "c1", Name: "prod", Status: models.SourceStatusHealthy},
		{ID: "c2", Name: "staging", Status: models.SourceStatusDegraded},
	}

	rec := f.do(t, http.MethodGet, "/api/v1/clusters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[[]models.Cluster](t, rec)
	if len(got) != 2 || got[0].Name != "prod" {
		t.Fatalf("body = %+v", got)
	}
}

func TestAddCluster(t *testing.T) {
	f := newAPIFixture(t)
	f.clusters.added = &models.Cluster{ID: "c1", Name: "prod", Status: models.SourceStatusHealthy}

	rec := f.do(t, http.MethodPost, "/api/v1/clusters",
		`{"name":"prod","kubeconfig":"apiVersion: v1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if f.clusters.gotAdd != [3]string{"prod", "", "apiVersion: v1"} {
		t.Fatalf("service received %v", f.clusters.gotAdd)
	}
	got := decodeBody[models.Cluster](t, rec)
	if got.ID != "c1" {
		t.Fatalf("body = %+v", got)
	}
}

func TestAddClusterBadJSON(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/clusters", `{"name": `)
	wantError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
}

func TestAddClusterUnknownField(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/clusters", `{"nmae":"prod"}`)
	wantError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
}

func TestAddClusterUnreachable(t *testing.T) {
	f := newAPIFixture(t)
	f.clusters.addErr = source.Unreachable(
		source.Ref{Kind: source.KindKubernetes, ID: "prod"}, errors.New("connection refused"))

	rec := f.do(t, http.MethodPost, "/api/v1/clusters", `{"name":"prod","kubeconfig":"x"}`)
	wantError(t, rec, http.StatusBadGateway, CodeConnectorUnreachable)
}

func TestGetClusterNotFound(t *testing.T) {
	f := newAPIFixture(t)
	f.clusters.getErr = &source.NotFoundError{ID: "ghost"}

	rec := f.do(t, http.MethodGet, "/api/v1/clusters/ghost", "")
	wantError(t, rec, http.StatusNotFound, CodeNotFound)
}

func TestRemoveCluster(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodDelete, "/api/v1/clusters/c1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.clusters.removedID != "c1" {
		t.Fatalf("removed id = %q", f.clusters.removedID)
	}
}

func TestSyncClusterAccepted(t *testing.T) {
	f := newAPIFixture(t)
	f.sync.job = models.SyncJob{SourceKind: "kubernetes", SourceID: "c1", State: models.SyncIdle}

	rec := f.do(t, http.MethodPost, "/api/v1/clusters/c1/sync", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if f.sync.gotRef != (source.Ref{Kind: source.KindKubernetes, ID: "c1"}) {
		t.Fatalf("ref = %+v", f.sync.gotRef)
	}
	got := decodeBody[models.SyncJob](t, rec)
	if got.SourceID != "c1" {
		t.Fatalf("job = %+v", got)
	}
}

func TestSyncClusterStillRunning(t *testing.T) {
	f := newAPIFixture(t)
	f.sync.waitErr = source.ErrSyncInProgress

	rec := f.do(t, http.MethodPost, "/api/v1/clusters/c1/sync", "")
	wantError(t, rec, http.StatusConflict, CodeSyncInProgress)
}

func TestSyncClusterUnknown(t *testing.T) {
	f := newAPIFixture(t)
	f.sync.waitErr = &source.NotFoundError{ID: "kubernetes/ghost"}

	rec := f.do(t, http.MethodPost, "/api/v1/clusters/ghost/sync", "")
	wantError(t, rec, http.StatusNotFound, CodeNotFound)
}

func TestListClusterEvents(t *testing.T) {
	f := newAPIFixture(t)
	f.clusters.events = []*models.Event{{ID: "e1", Reason: "Started"}}

	rec := f.do(t, http.MethodGet, "/api/v1/clusters/c1/events?namespace=default&type=Warning&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.clusters.gotFilter.Namespace != "default" || f.clusters.gotFilter.Type != "Warning" || f.clusters.gotFilter.Limit != 10 {
		t.Fatalf("filter = %+v", f.clusters.gotFilter)
	}
}

func TestListClusterEventsBadLimit(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/clusters/c1/events?limit=many", "")
	wantError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
}

func TestListPodsPassesNamespace(t *testing.T) {
	f := newAPIFixture(t)
	f.clusters.pods = []models.Pod{{Name: "web-0"}}

	rec := f.do(t, http.MethodGet, "/api/v1/clusters/c1/pods?namespace=default", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[[]models.Pod](t, rec)
	if len(got) != 1 || got[0].Name != "web-0" {
		t.Fatalf("body = %+v", got)
	}
}
