package rest

import (
	"errors"
	"net/http"
	"testing"

	"github.com/fleetglass/fleetglass-backend/internal/models"
)

func TestAddHost(t *testing.T) {
	f := newAPIFixture(t)
	f.hosts.added = &models.DockerHost{ID: "h1", Name: "edge-1", Endpoint: "tcp://10.0.0.5:2375"}

	rec := f.do(t, http.MethodPost, "/api/v1/hosts", `{"name":"edge-1","endpoint":"tcp://10.0.0.5:2375"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if f.hosts.gotAdd != [2]string{"edge-1", "tcp://10.0.0.5:2375"} {
		t.Fatalf("service received %v", f.hosts.gotAdd)
	}
}

func TestGetHostIncludesEngineInfo(t *testing.T) {
	f := newAPIFixture(t)
	f.hosts.host = &models.DockerHost{ID: "h1", Name: "edge-1", Status: models.SourceStatusHealthy}
	f.hosts.info = models.EngineInfo{ServerVersion: "25.0.2", NCPU: 8}

	rec := f.do(t, http.MethodGet, "/api/v1/hosts/h1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[struct {
		models.DockerHost
		Engine *models.EngineInfo `json:"engine"`
	}](t, rec)
	if got.Name != "edge-1" || got.Engine == nil || got.Engine.ServerVersion != "25.0.2" {
		t.Fatalf("body = %+v", got)
	}
}

func TestGetHostEngineDownStillAnswers(t *testing.T) {
	f := newAPIFixture(t)
	f.hosts.host = &models.DockerHost{ID: "h1", Name: "edge-1", Status: models.SourceStatusUnreachable}
	f.hosts.infoErr = errors.New("engine down")

	rec := f.do(t, http.MethodGet, "/api/v1/hosts/h1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[struct {
		models.DockerHost
		Engine *models.EngineInfo `json:"engine"`
	}](t, rec)
	if got.Engine != nil {
		t.Fatalf("engine should be omitted when unreachable, got %+v", got.Engine)
	}
}

func TestListHostContainers(t *testing.T) {
	f := newAPIFixture(t)
	f.hosts.containers = []models.DockerContainer{{ID: "abc123", Name: "nginx"}}

	rec := f.do(t, http.MethodGet, "/api/v1/hosts/h1/containers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[[]models.DockerContainer](t, rec)
	if len(got) != 1 || got[0].Name != "nginx" {
		t.Fatalf("body = %+v", got)
	}
}
