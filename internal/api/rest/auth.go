package rest

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fleetglass/fleetglass-backend/internal/auth"
)

// MintToken handles POST /api/v1/auth/token. Dev convenience only: the route
// is registered when auth_allow_token_mint is set, and it still requires a
// configured secret.
func (h *Handler) MintToken(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AuthSecret == "" {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "no auth secret configured")
		return
	}

	// An empty body is fine; the principal defaults.
	var req struct {
		Principal string `json:"principal"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Principal == "" {
		req.Principal = "dev"
	}

	token, err := auth.IssueToken(h.cfg.AuthSecret, req.Principal, h.cfg.AuthTokenTTL())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(h.cfg.AuthTokenTTL() / time.Second),
	})
}
