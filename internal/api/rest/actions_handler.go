package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fleetglass/fleetglass-backend/internal/pkg/validate"
)

// DispatchAction handles POST /api/v1/unified/containers/{id}/actions with
// body {"action": "..."}. Only Docker-backed entities are actionable; the
// dispatcher enforces the transition table.
func (h *Handler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	if !validate.Action(req.Action) {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid action name")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), mux.Vars(r)["id"], req.Action)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
