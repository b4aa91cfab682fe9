package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sprintagent/sprintagent/internal/app"
	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/internal/config"
	"github.com/sprintagent/sprintagent/internal/intake"
	"github.com/sprintagent/sprintagent/internal/logbuf"
	"github.com/sprintagent/sprintagent/internal/orchestrator"
	"github.com/sprintagent/sprintagent/internal/prwatch"
	"github.com/sprintagent/sprintagent/internal/runstore"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// mockService implements Service for testing.
type mockService struct {
	processed []app.ProcessRequest
	sources   []string
	reqNames  []string
	reqData   []string
	overrides []config.Overrides
	project   string
	max       int
	updates   []protocol.TicketUpdate
	comments  []string
	runs      map[string]*app.RunDetail
	sweeps    int
}

func (m *mockService) Process(_ context.Context, req app.ProcessRequest, source string) (*orchestrator.Response, error) {
	if strings.TrimSpace(req.Requirement) == "" {
		return nil, apperr.Validationf("app.process", "requirement is empty")
	}
	m.processed = append(m.processed, req)
	m.sources = append(m.sources, source)
	return &orchestrator.Response{RunID: "run-1", Success: true, Message: "ok", JiraKeys: []string{"PROJ-1"}}, nil
}

func (m *mockService) ProcessRequirements(_ context.Context, data []byte, name string, o config.Overrides) (*intake.BatchResult, error) {
	m.reqNames = append(m.reqNames, name)
	m.reqData = append(m.reqData, string(data))
	m.overrides = append(m.overrides, o)
	return &intake.BatchResult{Success: true, Created: 2}, nil
}

func (m *mockService) ListTickets(_ context.Context, project string, maxResults int) (*app.TicketList, error) {
	m.project, m.max = project, maxResults
	return &app.TicketList{Project: project, Total: 1, Tickets: []protocol.TicketInfo{{Key: "PROJ-1"}}}, nil
}

func (m *mockService) Ticket(_ context.Context, key string) (*protocol.TicketDetails, error) {
	if key != "PROJ-1" {
		return nil, apperr.NotFoundf("jira.details", "issue %s not found", key)
	}
	return &protocol.TicketDetails{Key: key, Summary: "Login page"}, nil
}

func (m *mockService) History(_ context.Context, key string) (*protocol.TicketHistoryResponse, error) {
	return &protocol.TicketHistoryResponse{Key: key, CurrentStatus: "To Do"}, nil
}

func (m *mockService) UpdateTicket(_ context.Context, u protocol.TicketUpdate) (bool, error) {
	m.updates = append(m.updates, u)
	return true, nil
}

func (m *mockService) Comment(_ context.Context, key, body string) (*protocol.TicketComment, error) {
	if body == "" {
		return nil, apperr.Validationf("app.comment", "comment body is empty")
	}
	m.comments = append(m.comments, key+":"+body)
	return &protocol.TicketComment{ID: "10", Body: body}, nil
}

func (m *mockService) Runs(_ context.Context, limit int) ([]*runstore.Run, error) {
	out := []*runstore.Run{}
	for _, r := range m.runs {
		out = append(out, r.Run)
	}
	return out, nil
}

func (m *mockService) Run(_ context.Context, id string) (*app.RunDetail, error) {
	r, ok := m.runs[id]
	if !ok {
		return nil, apperr.NotFoundf("runstore.get", "run %s not found", id)
	}
	return r, nil
}

func (m *mockService) SweepPRs(_ context.Context) (prwatch.Result, error) {
	m.sweeps++
	return prwatch.Result{Checked: 3, Changed: 1}, nil
}

func (m *mockService) Health(_ context.Context) *app.HealthReport {
	return &app.HealthReport{Status: "healthy", Message: "All systems operational"}
}

type mockLogs struct {
	last logbuf.Filter
}

func (m *mockLogs) Query(f logbuf.Filter) []logbuf.Entry {
	m.last = f
	return []logbuf.Entry{{Level: "INFO", Message: "run started"}}
}

func newTestServer(svc Service, key string) *Server {
	return NewServer(svc, Config{Host: "127.0.0.1", Port: 0, Key: key, Timeout: time.Minute}, nil, nil, nil)
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "GET", "/api/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	var body app.HealthReport
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "healthy" {
		t.Errorf("body = %+v", body)
	}
}

func TestRoot(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "GET", "/api/", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Endpoints []string `json:"endpoints"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if len(body.Endpoints) == 0 {
		t.Error("expected endpoint listing")
	}
}

func TestProcess(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	w := do(srv, "POST", "/api/process", `{"requirement":"Build a login page","jira_project":"WEB"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(svc.processed) != 1 {
		t.Fatalf("expected 1 processed request, got %d", len(svc.processed))
	}
	if svc.processed[0].JiraProject != "WEB" {
		t.Errorf("project override = %q", svc.processed[0].JiraProject)
	}
	if svc.sources[0] != "api" {
		t.Errorf("source = %q", svc.sources[0])
	}
	var resp orchestrator.Response
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Success || len(resp.JiraKeys) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProcess_EmptyRequirement(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "POST", "/api/process", `{"requirement":"  "}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if !strings.Contains(body["error"], "requirement") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestProcess_InvalidJSON(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "POST", "/api/process", `{not json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRequirements_YAML(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	req := httptest.NewRequest("POST", "/api/requirements?project=WEB", strings.NewReader("title: Login\n"))
	req.Header.Set("Content-Type", "application/x-yaml")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.reqNames[0] != "requirements.yaml" {
		t.Errorf("name = %q", svc.reqNames[0])
	}
	if svc.reqData[0] != "title: Login\n" {
		t.Errorf("data = %q", svc.reqData[0])
	}
	if svc.overrides[0].JiraProject != "WEB" {
		t.Errorf("overrides = %+v", svc.overrides[0])
	}
}

func TestRequirements_DefaultsToJSON(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	do(srv, "POST", "/api/requirements", `{"title":"Login"}`)

	if len(svc.reqNames) != 1 || svc.reqNames[0] != "requirements.json" {
		t.Errorf("names = %v", svc.reqNames)
	}
}

func TestListTickets(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	w := do(srv, "GET", "/api/tickets?project=WEB&max_results=10", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if svc.project != "WEB" || svc.max != 10 {
		t.Errorf("project = %q, max = %d", svc.project, svc.max)
	}
}

func TestListTickets_BadMaxIgnored(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	do(srv, "GET", "/api/tickets?max_results=abc", "")

	if svc.max != 0 {
		t.Errorf("expected max 0, got %d", svc.max)
	}
}

func TestGetTicket(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "GET", "/api/tickets/PROJ-1", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	var d protocol.TicketDetails
	json.NewDecoder(w.Body).Decode(&d)
	if d.Summary != "Login page" {
		t.Errorf("summary = %q", d.Summary)
	}
}

func TestGetTicket_NotFound(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "GET", "/api/tickets/PROJ-404", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestTicketHistory(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "GET", "/api/tickets/PROJ-1/history", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var h protocol.TicketHistoryResponse
	json.NewDecoder(w.Body).Decode(&h)
	if h.Key != "PROJ-1" || h.CurrentStatus != "To Do" {
		t.Errorf("history = %+v", h)
	}
}

func TestUpdateTicket_KeyFromPath(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	w := do(srv, "PATCH", "/api/tickets/PROJ-1", `{"key":"OTHER-9","status":"Done"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(svc.updates) != 1 || svc.updates[0].Key != "PROJ-1" || svc.updates[0].Status != "Done" {
		t.Errorf("updates = %+v", svc.updates)
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["updated"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestComment(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	w := do(srv, "POST", "/api/tickets/PROJ-1/comments", `{"body":"looks good"}`)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if len(svc.comments) != 1 || svc.comments[0] != "PROJ-1:looks good" {
		t.Errorf("comments = %v", svc.comments)
	}
}

func TestComment_Empty(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "POST", "/api/tickets/PROJ-1/comments", `{"body":""}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRuns(t *testing.T) {
	svc := &mockService{runs: map[string]*app.RunDetail{
		"run-1": {Run: &runstore.Run{ID: "run-1", Success: true}},
	}}
	srv := newTestServer(svc, "")

	w := do(srv, "GET", "/api/runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var runs []runstore.Run
	json.NewDecoder(w.Body).Decode(&runs)
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	w = do(srv, "GET", "/api/runs/run-1", "")
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}

	w = do(srv, "GET", "/api/runs/run-9", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", w.Code)
	}
}

func TestRunLogs(t *testing.T) {
	svc := &mockService{runs: map[string]*app.RunDetail{
		"run-1": {Run: &runstore.Run{ID: "run-1"}},
	}}
	logs := &mockLogs{}
	srv := NewServer(svc, Config{}, nil, logs, nil)

	w := do(srv, "GET", "/api/runs/run-1/logs?level=warn", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if logs.last.Attrs["run_id"] != "run-1" {
		t.Errorf("filter attrs = %v", logs.last.Attrs)
	}
	if logs.last.MinLevel.String() != "WARN" {
		t.Errorf("min level = %v", logs.last.MinLevel)
	}
}

func TestLogs_NoBuffer(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "GET", "/api/logs", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %s", got)
	}
}

func TestSweep(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, "")
	w := do(srv, "POST", "/api/prs/sweep", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.sweeps != 1 {
		t.Errorf("expected 1 sweep, got %d", svc.sweeps)
	}
}

func TestWebhookMounted(t *testing.T) {
	var got string
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.PathValue("name")
		w.WriteHeader(http.StatusAccepted)
	})
	srv := NewServer(&mockService{}, Config{Key: "secret-key"}, nil, nil, hook)

	// webhooks are signed per endpoint, not with the API key
	w := do(srv, "POST", "/api/webhook/github", `{"content":"x"}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
	if got != "github" {
		t.Errorf("name = %q", got)
	}
}

func TestAuth_Required(t *testing.T) {
	srv := newTestServer(&mockService{}, "secret-key")

	// No auth header
	req := httptest.NewRequest("GET", "/api/tickets", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", w.Code)
	}

	// Wrong key
	req = httptest.NewRequest("GET", "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}

	// Correct key
	req = httptest.NewRequest("GET", "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", w.Code)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	srv := newTestServer(&mockService{}, "secret-key")
	w := do(srv, "GET", "/api/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("health should not require auth, status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(&mockService{}, "")
	w := do(srv, "OPTIONS", "/api/tickets", "")

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("CORS methods = %q", got)
	}
}
