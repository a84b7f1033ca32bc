// Package websocket serves the live metrics stream. Each connection gets its
// own broker subscription; frames flow one way, server to client.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetglass/fleetglass-backend/internal/auth"
	"github.com/fleetglass/fleetglass-backend/internal/config"
	"github.com/fleetglass/fleetglass-backend/internal/stream"
)

// Handler upgrades /ws/metrics requests and bridges them to the broker.
type Handler struct {
	broker   *stream.Broker
	cfg      *config.Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the stream endpoint. CheckOrigin admits requests without
// an Origin header (native clients) and any origin in allowed_origins; "*"
// admits all.
func NewHandler(broker *stream.Broker, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{broker: broker, cfg: cfg, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeWS handles GET /ws/metrics?token=&container=&scope=. The token is
// required only when an auth secret is configured.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal := "anonymous"
	if h.cfg.AuthSecret != "" {
		claims, err := auth.VerifyToken(h.cfg.AuthSecret, extractBearer(r))
		if err != nil {
			rejectUnauthorized(w, "invalid or missing token")
			return
		}
		principal = claims.Principal
	}

	q := r.URL.Query()
	filter := stream.Filter{Container: q.Get("container"), Scope: q.Get("scope")}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its error response.
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sub, err := h.broker.Subscribe(filter)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	log := h.logger.With("subscription", sub.ID(), "principal", principal)
	log.Info("metrics stream connected",
		"remote", r.RemoteAddr, "container", filter.Container, "scope", filter.Scope)

	c := &client{conn: conn, sub: sub, logger: log}
	go c.writePump()
	go c.readPump()
}

// extractBearer pulls the token from the Authorization header or, for browser
// WebSocket clients that cannot set headers, the token query parameter.
func extractBearer(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if tok, ok := strings.CutPrefix(header, "Bearer "); ok {
			return tok
		}
	}
	return r.URL.Query().Get("token")
}

func rejectUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "UNAUTHORIZED", "message": message},
	})
}
