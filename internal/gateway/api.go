// ABOUTME: HTTP API handlers for session lifecycle, pairing, and messaging
// ABOUTME: Maps registry error taxonomy onto HTTP status codes

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/zap-gateway/internal/auth"
	"github.com/2389/zap-gateway/internal/session"
)

// CreateSessionRequest is the JSON request body for POST /api/sessions.
type CreateSessionRequest struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Webhooks    []string `json:"webhooks,omitempty"`
}

// SendMessageRequest is the JSON request body for POST /api/sessions/{id}/messages.
type SendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendMessageResponse is the JSON response for a delivered message.
type SendMessageResponse struct {
	MessageID string    `json:"messageId"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// PairingCodeResponse is the JSON response for GET /api/sessions/{id}/qr.
type PairingCodeResponse struct {
	ID   string `json:"id"`
	Code []byte `json:"code"`
}

// ListSessionsResponse is the JSON response for GET /api/sessions.
type ListSessionsResponse struct {
	Sessions []session.View `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// routes builds the gateway's HTTP handler. API routes go through the JWT
// middleware when a secret is configured; health endpoints never do.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Route("/api", func(api chi.Router) {
		if g.config.Auth.JWTSecret != "" {
			verifier := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
			api.Use(auth.Middleware(verifier))
			g.logger.Info("HTTP auth middleware enabled")
		} else {
			g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
		}

		api.Post("/sessions", g.handleCreateSession)
		api.Get("/sessions", g.handleListSessions)
		api.Get("/sessions/{id}", g.handleGetSession)
		api.Delete("/sessions/{id}", g.handleDeleteSession)
		api.Get("/sessions/{id}/qr", g.handlePairingCode)
		api.Post("/sessions/{id}/messages", g.handleSendMessage)
		api.Get("/events", g.handleEvents)
	})

	return r
}

// handleCreateSession handles POST /api/sessions. Pairing proceeds
// asynchronously; the response is the freshly created session snapshot.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	view, err := g.registry.Create(r.Context(), req.ID, req.Description, req.Webhooks)
	if err != nil {
		g.writeRegistryError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, view)
}

// handleListSessions handles GET /api/sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: g.registry.List()})
}

// handleGetSession handles GET /api/sessions/{id}.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := g.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		g.writeRegistryError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, view)
}

// handleDeleteSession handles DELETE /api/sessions/{id}.
func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := g.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		g.writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePairingCode handles GET /api/sessions/{id}/qr. The code is only
// available while the session awaits pairing.
func (g *Gateway) handlePairingCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	code, err := g.registry.PairingCode(id)
	if err != nil {
		g.writeRegistryError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, PairingCodeResponse{ID: id, Code: code})
}

// handleSendMessage handles POST /api/sessions/{id}/messages.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		g.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" {
		g.writeError(w, http.StatusBadRequest, "to is required")
		return
	}
	if req.Body == "" {
		g.writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	receipt, err := g.registry.SendMessage(r.Context(), chi.URLParam(r, "id"), req.To, req.Body)
	if err != nil {
		g.writeRegistryError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, SendMessageResponse{
		MessageID: receipt.MessageID,
		To:        req.To,
		Timestamp: receipt.Timestamp,
	})
}

// writeRegistryError translates the registry's error taxonomy to HTTP status
// codes. Unmapped errors become 500s with a generic message.
func (g *Gateway) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptySessionID):
		g.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrDuplicateSession):
		g.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		g.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNoPairingCode):
		g.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionNotReady):
		g.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrRecipientNotRegistered):
		g.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrDriverFailure):
		g.writeError(w, http.StatusBadGateway, err.Error())
	default:
		g.logger.Error("unhandled API error", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("encoding response", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, msg string) {
	g.writeJSON(w, status, errorResponse{Error: msg})
}
