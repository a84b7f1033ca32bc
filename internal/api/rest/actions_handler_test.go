package rest

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/fleetglass/fleetglass-backend/internal/actions"
	"github.com/fleetglass/fleetglass-backend/internal/models"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

func TestDispatchAction(t *testing.T) {
	f := newAPIFixture(t)
	f.dispatcher.result = models.ActionResult{ID: "docker-abc", Action: "stop", Status: "ok"}

	rec := f.do(t, http.MethodPost, "/api/v1/unified/containers/docker-abc/actions", `{"action":"stop"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if f.dispatcher.gotID != "docker-abc" || f.dispatcher.gotAction != "stop" {
		t.Fatalf("dispatched %q %q", f.dispatcher.gotID, f.dispatcher.gotAction)
	}
	got := decodeBody[models.ActionResult](t, rec)
	if got.Status != "ok" {
		t.Fatalf("result = %+v", got)
	}
}

func TestDispatchActionNormalizesName(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/unified/containers/docker-abc/actions", `{"action":" Stop "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.dispatcher.gotAction != "stop" {
		t.Fatalf("action = %q", f.dispatcher.gotAction)
	}
}

func TestDispatchActionInvalidName(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/unified/containers/docker-abc/actions", `{"action":"rm -rf"}`)
	wantError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
	if f.dispatcher.gotAction != "" {
		t.Fatal("dispatcher must not be called for a malformed action name")
	}
}

func TestDispatchActionUnknown(t *testing.T) {
	f := newAPIFixture(t)
	f.dispatcher.err = fmt.Errorf("%w: %q", actions.ErrUnknownAction, "reboot")

	rec := f.do(t, http.MethodPost, "/api/v1/unified/containers/docker-abc/actions", `{"action":"reboot"}`)
	wantError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
}

func TestDispatchActionInvalidTransition(t *testing.T) {
	f := newAPIFixture(t)
	f.dispatcher.err = &source.InvalidTransitionError{Action: "stop", Status: models.ContainerExited}

	rec := f.do(t, http.MethodPost, "/api/v1/unified/containers/docker-abc/actions", `{"action":"stop"}`)
	wantError(t, rec, http.StatusConflict, CodeInvalidTransition)
}

func TestDispatchActionUnsupportedSource(t *testing.T) {
	f := newAPIFixture(t)
	f.dispatcher.err = &source.UnsupportedForSourceError{Op: "action stop", Kind: source.KindKubernetes}

	rec := f.do(t, http.MethodPost, "/api/v1/unified/containers/k8s-uid-1/actions", `{"action":"stop"}`)
	wantError(t, rec, http.StatusBadRequest, CodeUnsupportedForSource)
}
