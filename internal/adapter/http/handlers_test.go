package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harmonium-ai/harmonium/internal/adapter/memstore"
	"github.com/harmonium-ai/harmonium/internal/adapter/ws"
	"github.com/harmonium-ai/harmonium/internal/config"
	"github.com/harmonium-ai/harmonium/internal/domain/event"
	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
	"github.com/harmonium-ai/harmonium/internal/port/agentdriver"
	"github.com/harmonium-ai/harmonium/internal/service"
)

type echoDriver struct{}

func (echoDriver) RunTurn(ctx context.Context, turn agentdriver.Turn, host agentdriver.Host) (*agentdriver.Outcome, error) {
	if err := host.Say(ctx, "echo: "+turn.Input); err != nil {
		return nil, err
	}
	return &agentdriver.Outcome{Output: turn.Input}, nil
}

func newTestRouter(t *testing.T) (chi.Router, *service.Orchestrator) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := memstore.NewStore()
	events := memstore.NewEventStore()
	hub := ws.NewHub(log, nil)

	trans := service.NewTranslator(events, hub, config.Stream{BufferSize: 32}, log)
	bridge := service.NewBridge(config.Bridge{UIResultTimeout: time.Second, ServerCallTimeout: time.Second}, log)
	orch := service.NewOrchestrator(
		config.Runs{Namespace: "test", ConflictRetries: 3, TurnTimeout: 5 * time.Second},
		state, events, trans, bridge, service.NewRouter(), service.NewPackager(), nil, log,
	)
	orch.SetDriver(echoDriver{})
	hub.SetResolver(bridge)

	r := chi.NewRouter()
	MountRoutes(r, NewHandlers(orch, state, hub, "test", log))
	return r, orch
}

func doJSON(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStartRun(t *testing.T) {
	router, orch := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/runs",
		`{"session_id":"s1","user_id":"u1","input":"hello"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var started run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.ID == "" {
		t.Fatal("missing run id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := orch.Wait(ctx, started.ID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if final.Status != run.StatusFinished {
		t.Errorf("status = %s", final.Status)
	}
}

func TestStartRun_ValidationError(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/runs", `{"input":"hello"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStartRun_UnmatchedToolResult(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/runs",
		`{"session_id":"s1","user_id":"u1","tool_result":{"tool_call_id":"ghost"}}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/runs/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRunLifecycleOverREST(t *testing.T) {
	router, orch := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/runs",
		`{"session_id":"s1","user_id":"u1","input":"hello"}`)
	var started run.Run
	_ = json.Unmarshal(rec.Body.Bytes(), &started)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := orch.Wait(ctx, started.ID); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/runs/"+started.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get run status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/runs/"+started.ID+"/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	var events []event.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if err := event.CheckOrdering(events); err != nil {
		t.Errorf("ordering: %v", err)
	}
	if events[len(events)-1].Type != event.TypeRunFinished {
		t.Errorf("last event = %s", events[len(events)-1].Type)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/runs/"+started.ID+"/cancel", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("cancel status = %d", rec.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions",
		`{"user_id":"u1","session_id":"s1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}
	var created session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID.Namespace != "test" {
		t.Errorf("namespace = %s", created.ID.Namespace)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sessions/s1?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sessions/s1/state?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("state status = %d", rec.Code)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sessions/s1/runs?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("runs status = %d", rec.Code)
	}
}

func TestSessionMissingUserID(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/s1/state", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
