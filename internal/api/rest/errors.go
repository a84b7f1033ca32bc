package rest

import (
	"errors"
	"net/http"

	"github.com/fleetglass/fleetglass-backend/internal/actions"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/logger"
	"github.com/fleetglass/fleetglass-backend/internal/source"
)

// API error codes. Clients branch on the code, not the HTTP status.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeNotFound             = "NOT_FOUND"
	CodeConnectorUnreachable = "CONNECTOR_UNREACHABLE"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeUnsupportedForSource = "UNSUPPORTED_FOR_SOURCE"
	CodeSyncInProgress       = "SYNC_IN_PROGRESS"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInternalError        = "INTERNAL_ERROR"
)

// APIError is the error body inside the envelope.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, errorEnvelope{Error: APIError{
		Code:      code,
		Message:   message,
		RequestID: logger.FromContext(r.Context()),
	}})
}

// respondServiceError maps the error taxonomy onto HTTP statuses and API
// codes. Order matters: typed errors first, sentinels after, 500 as the
// fallback for anything unclassified.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unreachable *source.UnreachableError
		transition  *source.InvalidTransitionError
		unsupported *source.UnsupportedForSourceError
	)
	switch {
	case errors.As(err, &transition):
		respondError(w, r, http.StatusConflict, CodeInvalidTransition, transition.Error())
	case errors.As(err, &unsupported):
		respondError(w, r, http.StatusBadRequest, CodeUnsupportedForSource, unsupported.Error())
	case errors.As(err, &unreachable):
		respondError(w, r, http.StatusBadGateway, CodeConnectorUnreachable, unreachable.Error())
	case errors.Is(err, source.ErrSyncInProgress):
		respondError(w, r, http.StatusConflict, CodeSyncInProgress, "sync already in progress")
	case errors.Is(err, source.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, source.ErrInvalidInput), errors.Is(err, actions.ErrUnknownAction):
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	default:
		h.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", logger.FromContext(r.Context()), "error", err)
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}
