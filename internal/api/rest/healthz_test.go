package rest

import (
	"errors"
	"net/http"
	"testing"
)

func TestLive(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[map[string]string](t, rec)
	if got["status"] != "ok" {
		t.Fatalf("body = %v", got)
	}
}

func TestReady(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestReadyDatabaseDown(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.pingErr = errors.New("database is locked")

	rec := f.do(t, http.MethodGet, "/healthz/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[map[string]string](t, rec)
	if got["reason"] != "database_unavailable" {
		t.Fatalf("body = %v", got)
	}
}
