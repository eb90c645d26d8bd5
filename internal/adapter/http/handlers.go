// Package http exposes the REST surface of the orchestration core: run
// lifecycle, session inspection, event replay, and the WebSocket stream.
package http

import (
	"log/slog"
	"net/http"

	"github.com/harmonium-ai/harmonium/internal/adapter/ws"
	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
	"github.com/harmonium-ai/harmonium/internal/port/statestore"
	"github.com/harmonium-ai/harmonium/internal/service"
)

// Handlers holds the dependencies of all REST handlers.
type Handlers struct {
	orch      *service.Orchestrator
	state     statestore.Store
	hub       *ws.Hub
	namespace string
	log       *slog.Logger
}

// NewHandlers creates the REST handler set.
func NewHandlers(orch *service.Orchestrator, state statestore.Store, hub *ws.Hub, namespace string, log *slog.Logger) *Handlers {
	return &Handlers{
		orch:      orch,
		state:     state,
		hub:       hub,
		namespace: namespace,
		log:       log,
	}
}

// StartRun starts a run, or resumes a suspended ui_client tool call when the
// request carries a matching result.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[run.Request](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	started, err := h.orch.StartRun(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "no pending tool call matches the result")
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

// GetRun returns the run's current state.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	found, err := h.orch.GetRun(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// CancelRun requests cooperative cancellation.
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Cancel(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRunEvents replays the persisted event stream of a run.
func (h *Handlers) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.orch.Events(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// CreateSession ensures a session exists.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createSessionRequest](w, r)
	if !ok {
		return
	}
	id := session.ID{Namespace: h.namespace, UserID: req.UserID, SessionID: req.SessionID}
	if err := id.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.state.Ensure(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// sessionID builds the session identity from the URL and query.
func (h *Handlers) sessionID(r *http.Request) session.ID {
	return session.ID{
		Namespace: h.namespace,
		UserID:    r.URL.Query().Get("user_id"),
		SessionID: urlParam(r, "id"),
	}
}

// GetSession returns the session's identity and current version.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(r)
	if err := id.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.state.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"version": snap.Version,
	})
}

// GetSessionState returns the session's merged state snapshot.
func (h *Handlers) GetSessionState(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(r)
	if err := id.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.state.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListSessionRuns lists this instance's runs for a session.
func (h *Handlers) ListSessionRuns(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(r)
	if err := id.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.orch.RunsForSession(id))
}

// ServeWS upgrades to the WebSocket event stream.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}

// Healthz reports liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
