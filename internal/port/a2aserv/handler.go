package a2aserv

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/harmonium-ai/harmonium/internal/domain/run"
)

// RunStarter is the orchestrator surface the inbound A2A handler drives.
type RunStarter interface {
	StartRun(ctx context.Context, req run.Request) (*run.Run, error)
	GetRun(runID string) (*run.Run, error)
}

// SkillSource lists the skills this instance advertises on its card.
type SkillSource interface {
	LocalSkills() []string
}

// Handler serves the inbound A2A protocol endpoints.
type Handler struct {
	baseURL string
	version string
	runs    RunStarter
	skills  SkillSource
	log     *slog.Logger

	mu    sync.RWMutex
	tasks map[string]string // task id -> run id
}

// NewHandler creates the inbound A2A handler.
func NewHandler(baseURL, version string, runs RunStarter, skills SkillSource, log *slog.Logger) *Handler {
	return &Handler{
		baseURL: baseURL,
		version: version,
		runs:    runs,
		skills:  skills,
		log:     log,
		tasks:   make(map[string]string),
	}
}

// MountRoutes registers the A2A routes at the root level, not under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.Post("/a2a/tasks", h.handleCreateTask)
	r.Get("/a2a/tasks/{id}", h.handleGetTask)
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	card := AgentCard{
		Name:        "Harmonium",
		Description: "AI agent orchestration and protocol-bridge core",
		URL:         h.baseURL,
		Version:     h.version,
	}
	card.Capabilities.Streaming = true
	for _, id := range h.skills.LocalSkills() {
		card.Skills = append(card.Skills, Skill{
			ID:          id,
			Name:        id,
			InputModes:  []string{"text"},
			OutputModes: []string{"text"},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(card)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	input, _ := req.Input["text"].(string)
	if input == "" {
		writeError(w, http.StatusBadRequest, "input.text is required")
		return
	}

	// Each delegated task runs in its own session, isolated from every
	// other caller's state.
	started, err := h.runs.StartRun(r.Context(), run.Request{
		SessionID: "a2a-" + req.ID,
		UserID:    "a2a",
		Input:     input,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.mu.Lock()
	h.tasks[req.ID] = started.ID
	h.mu.Unlock()

	h.log.Info("a2a task accepted", "task_id", req.ID, "skill", req.Skill, "run_id", started.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(taskResponse(req.ID, started))
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	runID, ok := h.tasks[id]
	h.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	found, err := h.runs.GetRun(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(taskResponse(id, found))
}

// taskResponse maps a run onto the protocol's task states.
func taskResponse(taskID string, r *run.Run) *TaskResponse {
	resp := &TaskResponse{ID: taskID, Output: r.Output, Error: r.Error}
	switch r.Status {
	case run.StatusFinished:
		resp.Status = "completed"
	case run.StatusErrored:
		resp.Status = "failed"
	case run.StatusCancelled:
		resp.Status = "canceled"
	default:
		resp.Status = "running"
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
