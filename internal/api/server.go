// Package api serves sprintagent over REST.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

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

// LogQuerier abstracts log entry querying.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// Service is what the API server needs from the application.
type Service interface {
	Process(ctx context.Context, req app.ProcessRequest, source string) (*orchestrator.Response, error)
	ProcessRequirements(ctx context.Context, data []byte, name string, o config.Overrides) (*intake.BatchResult, error)
	ListTickets(ctx context.Context, project string, maxResults int) (*app.TicketList, error)
	Ticket(ctx context.Context, key string) (*protocol.TicketDetails, error)
	History(ctx context.Context, key string) (*protocol.TicketHistoryResponse, error)
	UpdateTicket(ctx context.Context, u protocol.TicketUpdate) (bool, error)
	Comment(ctx context.Context, key, body string) (*protocol.TicketComment, error)
	Runs(ctx context.Context, limit int) ([]*runstore.Run, error)
	Run(ctx context.Context, id string) (*app.RunDetail, error)
	SweepPRs(ctx context.Context) (prwatch.Result, error)
	Health(ctx context.Context) *app.HealthReport
}

// Config holds API server configuration.
type Config struct {
	Host    string
	Port    int
	Key     string        // API key for Bearer auth
	Timeout time.Duration // per-request deadline; 0 disables it
}

// Server is the sprintagent REST API server.
type Server struct {
	svc    Service
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// maxBody caps request bodies.
const maxBody = 1 << 20

// NewServer creates a new API server. logs and webhook may be nil.
func NewServer(svc Service, cfg Config, logger *slog.Logger, logs LogQuerier, webhook http.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger.With("component", "api"),
		logs:   logs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/process", s.requireAuth(s.handleProcess))
	mux.HandleFunc("POST /api/requirements", s.requireAuth(s.handleRequirements))
	mux.HandleFunc("GET /api/tickets", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("GET /api/tickets/{key}", s.requireAuth(s.handleGetTicket))
	mux.HandleFunc("GET /api/tickets/{key}/history", s.requireAuth(s.handleHistory))
	mux.HandleFunc("PATCH /api/tickets/{key}", s.requireAuth(s.handleUpdateTicket))
	mux.HandleFunc("POST /api/tickets/{key}/comments", s.requireAuth(s.handleComment))
	mux.HandleFunc("GET /api/runs", s.requireAuth(s.handleListRuns))
	mux.HandleFunc("GET /api/runs/{id}", s.requireAuth(s.handleGetRun))
	mux.HandleFunc("GET /api/runs/{id}/logs", s.requireAuth(s.handleRunLogs))
	mux.HandleFunc("POST /api/prs/sweep", s.requireAuth(s.handleSweep))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	if webhook != nil {
		// webhooks authenticate with their own per-endpoint secrets
		mux.Handle("POST /api/webhook/{name}", webhook)
	}

	var h http.Handler = mux
	if cfg.Timeout > 0 {
		h = middleware.Timeout(cfg.Timeout)(h)
	}
	h = s.corsMiddleware(h)
	h = s.logRequests(h)
	h = middleware.Recoverer(h)
	h = middleware.RealIP(h)
	h = middleware.RequestID(h)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Hub-Signature-256")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Sprint Agent API Server",
		"version":     "1.0.0",
		"description": "Multi-agent system for development workflow management",
		"endpoints": []string{
			"POST /api/process - Process natural language requirements",
			"POST /api/requirements - File tickets from a requirements document",
			"GET /api/tickets - List project tickets",
			"GET /api/tickets/{key} - Ticket details",
			"GET /api/tickets/{key}/history - Ticket change history",
			"PATCH /api/tickets/{key} - Update a ticket",
			"POST /api/tickets/{key}/comments - Comment on a ticket",
			"GET /api/runs - Recent runs",
			"GET /api/runs/{id} - One run and its tickets",
			"GET /api/runs/{id}/logs - Log lines of one run",
			"POST /api/prs/sweep - Check pull requests of recorded tickets",
			"POST /api/webhook/{name} - Signed webhook intake",
			"GET /api/logs - Recent server logs",
			"GET /api/health - Check system health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Health(r.Context()))
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req app.ProcessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.svc.Process(r.Context(), req, "api")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	name := "requirements.json"
	if f := strings.ToLower(r.URL.Query().Get("format")); f == "yaml" || f == "yml" ||
		strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		name = "requirements.yaml"
	}
	o := config.Overrides{
		JiraProject: r.URL.Query().Get("project"),
		GitHubRepo:  r.URL.Query().Get("github_repo"),
	}
	res, err := s.svc.ProcessRequirements(r.Context(), data, name, o)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project := q.Get("project")
	if project == "" {
		project = q.Get("project_key")
	}
	list, err := s.svc.ListTickets(r.Context(), project, queryInt(r, "max_results", 0))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Ticket(r.Context(), r.PathValue("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.svc.History(r.Context(), r.PathValue("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var u protocol.TicketUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	u.Key = r.PathValue("key")
	ok, err := s.svc.UpdateTicket(r.Context(), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": u.Key, "updated": ok})
}

type commentRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.Comment(r.Context(), r.PathValue("key"), req.Body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.Runs(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.svc.Run(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	f := logFilter(r)
	f.Attrs = map[string]string{"run_id": id}
	writeJSON(w, http.StatusOK, s.queryLogs(f))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.SweepPRs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	f := logFilter(r)
	if c := r.URL.Query().Get("component"); c != "" {
		f.Attrs = map[string]string{"component": c}
	}
	writeJSON(w, http.StatusOK, s.queryLogs(f))
}

func (s *Server) queryLogs(f logbuf.Filter) []logbuf.Entry {
	if s.logs == nil {
		return []logbuf.Entry{}
	}
	entries := s.logs.Query(f)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	return entries
}

// logFilter reads limit, level, since (unix millis) and q.
func logFilter(r *http.Request) logbuf.Filter {
	q := r.URL.Query()
	f := logbuf.Filter{
		Limit:    queryInt(r, "limit", 200),
		MinLevel: slog.LevelDebug,
		Contains: q.Get("q"),
	}
	if lvl := q.Get("level"); lvl != "" {
		f.MinLevel = logbuf.ParseLevel(lvl)
	}
	if v := q.Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Since = time.UnixMilli(ms)
		}
	}
	return f
}

// --- Helpers ---

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
