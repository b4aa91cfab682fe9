// Package webhook accepts requests from external systems (CI, issue
// forms, other bots) over signed HTTP posts.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/internal/config"
)

// EndpointConfig authenticates one endpoint. Secret enables HMAC-SHA256
// signatures (X-Hub-Signature-256); otherwise BearerToken is checked.
type EndpointConfig = config.WebhookEndpoint

// Config holds webhook configuration.
type Config struct {
	// Endpoints maps endpoint names to their auth settings.
	Endpoints map[string]EndpointConfig `json:"endpoints"`
}

// Payload is the expected JSON body for webhook requests.
type Payload struct {
	SenderID   string `json:"sender_id"`
	ChatID     string `json:"chat_id"`
	Content    string `json:"content"`
	Project    string `json:"jira_project,omitempty"`
	GitHubRepo string `json:"github_repo,omitempty"`
}

// Request is an authenticated webhook call.
type Request struct {
	Endpoint string
	Payload
}

// RunFunc processes a request. Its result is written back as JSON.
type RunFunc func(ctx context.Context, req Request) (any, error)

// Handler provides HTTP handlers for webhook endpoints.
type Handler struct {
	config Config
	run    RunFunc
	logger *slog.Logger
}

// New creates a new webhook handler.
func New(cfg Config, run RunFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config: cfg,
		run:    run,
		logger: logger.With("component", "webhook"),
	}
}

// ServeHTTP handles webhook requests at /api/webhook/{name}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := r.PathValue("name")
	if name == "" {
		name = extractName(r.URL.Path)
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing endpoint name in path")
		return
	}

	endpoint, ok := h.config.Endpoints[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown webhook endpoint: %s", name))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if !authenticate(r, endpoint, body) {
		h.logger.Warn("webhook rejected", "endpoint", name, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if payload.SenderID == "" {
		payload.SenderID = name
	}
	if payload.ChatID == "" {
		payload.ChatID = name
	}

	result, err := h.run(r.Context(), Request{Endpoint: name, Payload: payload})
	if err != nil {
		h.logger.Error("webhook handler error", "endpoint", name, "error", err)
		writeError(w, apperr.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func authenticate(r *http.Request, endpoint EndpointConfig, body []byte) bool {
	if endpoint.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Signature-256")
		}
		return verifyHMAC(body, endpoint.Secret, sig)
	}
	if endpoint.BearerToken != "" {
		return r.Header.Get("Authorization") == "Bearer "+endpoint.BearerToken
	}
	// no auth configured
	return true
}

// verifyHMAC checks a "sha256=<hex>" HMAC-SHA256 signature.
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// extractName gets the last path segment from /api/webhook/{name}.
func extractName(path string) string {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	return parts[len(parts)-1]
}

// ComputeSignature generates the signature a sender must attach.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
