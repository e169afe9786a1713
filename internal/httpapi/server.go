// Package httpapi exposes the pitch service over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/apresai/pitchroom/internal/gateway"
	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/session"
)

// KeyValidator checks a bearer token and resolves the calling user. The cli
// package adapts *store.Store's richer result to this shape. A nil validator
// disables auth and every caller shares the anonymous owner.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, bearerToken string) (ownerID string, err error)
}

type server struct {
	log     *slog.Logger
	svc     *session.Service
	auth    KeyValidator
	version string
}

// NewServer builds the HTTP server for the pitch API.
func NewServer(log *slog.Logger, addr string, svc *session.Service, auth KeyValidator, version string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(log, svc, auth, version),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewHandler builds the route table. Split from NewServer for tests.
func NewHandler(log *slog.Logger, svc *session.Service, auth KeyValidator, version string) http.Handler {
	s := &server{log: log, svc: svc, auth: auth, version: version}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/system/status", s.handleStatus)
	mux.HandleFunc("POST /api/pitch/start", s.withAuth(s.handleStart))
	mux.HandleFunc("POST /api/pitch/turn", s.withAuth(s.handleTurn))
	mux.HandleFunc("POST /api/pitch/end", s.withAuth(s.handleEnd))
	mux.HandleFunc("POST /api/pitch/report", s.withAuth(s.handleReport))
	mux.HandleFunc("GET /api/sessions", s.withAuth(s.handleList))
	mux.HandleFunc("GET /api/sessions/{id}", s.withAuth(s.handleGet))
	mux.HandleFunc("POST /api/sessions/{id}/pin", s.withAuth(s.handlePin))
	mux.HandleFunc("POST /api/sessions/{id}/rename", s.withAuth(s.handleRename))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.withAuth(s.handleDelete))
	mux.HandleFunc("GET /api/personas", s.handlePersonas)
	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, owner string)

func (s *server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ""
		if s.auth != nil {
			token := r.Header.Get("Authorization")
			resolved, err := s.auth.ValidateAPIKey(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			owner = resolved
		}
		next(w, r, owner)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   s.version,
		"providers": s.svc.Providers(),
	})
}

func (s *server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"personas": persona.All()})
}

type startRequest struct {
	Provider string          `json:"provider"`
	Persona  string          `json:"persona"`
	Startup  persona.Startup `json:"startup"`
	Locale   string          `json:"locale"`
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request, owner string) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.svc.StartPitch(r.Context(), session.StartRequest{
		Owner:     owner,
		Provider:  req.Provider,
		PersonaID: req.Persona,
		Startup:   req.Startup,
		Locale:    req.Locale,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (s *server) handleTurn(w http.ResponseWriter, r *http.Request, owner string) {
	var req turnRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := s.svc.SubmitTurn(r.Context(), owner, req.SessionID, req.Text)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *server) handleEnd(w http.ResponseWriter, r *http.Request, owner string) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.svc.EndPitch(r.Context(), owner, req.SessionID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ended": true})
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request, owner string) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rep, err := s.svc.GenerateReport(r.Context(), owner, req.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request, owner string) {
	snaps, err := s.svc.ListSessions(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	summaries := make([]sessionSummary, 0, len(snaps))
	for _, snap := range snaps {
		summaries = append(summaries, summarize(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request, owner string) {
	snap, err := s.svc.GetSession(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type pinRequest struct {
	Pinned bool `json:"pinned"`
}

func (s *server) handlePin(w http.ResponseWriter, r *http.Request, owner string) {
	var req pinRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.svc.PinSession(r.Context(), owner, r.PathValue("id"), req.Pinned); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pinned": req.Pinned})
}

type renameRequest struct {
	Title string `json:"title"`
}

func (s *server) handleRename(w http.ResponseWriter, r *http.Request, owner string) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.svc.RenameSession(r.Context(), owner, r.PathValue("id"), req.Title); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"title": req.Title})
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.svc.DeleteSession(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// sessionSummary is the listing shape; the full transcript stays out of list
// responses.
type sessionSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Pinned   bool   `json:"pinned,omitempty"`
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Persona  string `json:"persona"`
	Startup  string `json:"startup,omitempty"`
	Score    int    `json:"score"`
	Turns    int    `json:"turns"`
	Updated  string `json:"updated_at"`
}

func summarize(snap session.Snapshot) sessionSummary {
	return sessionSummary{
		ID:       snap.ID,
		Title:    snap.Title,
		Pinned:   snap.Pinned,
		Status:   string(snap.Status),
		Provider: snap.Provider,
		Persona:  snap.Persona.ID,
		Startup:  snap.Startup.Name,
		Score:    snap.Score,
		Turns:    len(snap.Transcript),
		Updated:  snap.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// writeServiceError maps service errors onto HTTP statuses. Transport
// failures are the upstream's fault (502) and the client may retry the same
// turn; a missing provider config is 503 until the operator fixes it.
func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case session.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "a turn is already in flight for this session")
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, gateway.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, err.Error())
	case gateway.IsConfig(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case gateway.IsTransport(err):
		writeError(w, http.StatusBadGateway, "provider unavailable, retry the same turn")
	default:
		if s.log != nil {
			s.log.ErrorContext(r.Context(), "Unhandled API error", "path", r.URL.Path, "error", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "invalid json: trailing content")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
