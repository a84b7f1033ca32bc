package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/fleetglass/fleetglass-backend/internal/pkg/logger"
)

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clusters", nil))

	got := rec.Header().Get(ResponseRequestIDHeader)
	if got == "" || got != seen {
		t.Fatalf("request id header %q, context %q", got, seen)
	}
}

func TestRequestIDHonored(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clusters", nil)
	req.Header.Set(ResponseRequestIDHeader, "gateway-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "gateway-42" || rec.Header().Get(ResponseRequestIDHeader) != "gateway-42" {
		t.Fatalf("request id not honored: context %q header %q", seen, rec.Header().Get(ResponseRequestIDHeader))
	}
}

func TestStructuredLogUsesRouteTemplate(t *testing.T) {
	var buf bytes.Buffer
	orig := requestLogOut
	requestLogOut = &buf
	defer func() { requestLogOut = orig }()

	r := mux.NewRouter()
	r.Handle("/api/v1/clusters/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{}}`))
	})).Methods(http.MethodGet)
	r.Use(StructuredLog)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clusters/abc-123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var entry logger.LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not JSON: %v (%q)", err, buf.String())
	}
	if entry.Path != "/api/v1/clusters/{id}" {
		t.Fatalf("path = %q, want route template", entry.Path)
	}
	if entry.Status != http.StatusNotFound || entry.Level != "warn" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Bytes == 0 {
		t.Fatal("bytes not recorded")
	}
}

func TestMaxBodySizeLimitsMutations(t *testing.T) {
	h := MaxBodySize(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	big := strings.Repeat("x", 64)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/clusters", strings.NewReader(big)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize POST status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/clusters", strings.NewReader("ok")))
	if rec.Code != http.StatusOK {
		t.Fatalf("small POST status = %d", rec.Code)
	}

	// GET bodies are not limited.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clusters", strings.NewReader(big)))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
}

func TestSecureHeaders(t *testing.T) {
	h := SecureHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, header := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(header) == "" {
			t.Errorf("%s not set", header)
		}
	}
}

func TestTracingPassesThrough(t *testing.T) {
	var called bool
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unified/stats", nil))
	if !called || rec.Code != http.StatusNoContent {
		t.Fatalf("called=%v status=%d", called, rec.Code)
	}
}
