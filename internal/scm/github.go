// Package scm looks up pull requests on GitHub.
package scm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Client wraps the GitHub REST API. It holds no per-repo state and is safe
// for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a GitHub client.
func New(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 20 * time.Second},
		baseURL: "https://api.github.com",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pullResponse struct {
	Number   int     `json:"number"`
	Title    string  `json:"title"`
	State    string  `json:"state"`
	Merged   bool    `json:"merged"`
	MergedAt *string `json:"merged_at"`
	HTMLURL  string  `json:"html_url"`
}

// PullRequest fetches one pull request. repo is "owner/repo" or a GitHub
// URL; token may be empty for public repositories.
func (c *Client) PullRequest(ctx context.Context, token, repo string, number int) (*protocol.PRStatus, error) {
	const op = "github.pull"
	repo = NormalizeRepo(repo)
	if strings.Count(repo, "/") != 1 || strings.HasPrefix(repo, "/") || strings.HasSuffix(repo, "/") {
		return nil, apperr.Validationf(op, "repository must be owner/repo, got %q", repo)
	}
	if number <= 0 {
		return nil, apperr.Validationf(op, "invalid pull request number %d", number)
	}

	reqURL := fmt.Sprintf("%s/repos/%s/pulls/%d", c.baseURL, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transport, op, fmt.Errorf("github: http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("github pull status=%d repo=%s body=%s", resp.StatusCode, repo, preview(string(b), 300))
		if resp.StatusCode == http.StatusNotFound {
			return nil, apperr.Wrap(apperr.NotFound, op, err)
		}
		return nil, apperr.Wrap(apperr.Transport, op, err)
	}

	var out pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.Parse, op, fmt.Errorf("github: decode: %w", err))
	}
	if out.Number == 0 {
		return nil, apperr.Wrap(apperr.Parse, op, errors.New("github: response has no number"))
	}
	return &protocol.PRStatus{
		Number: out.Number,
		Title:  out.Title,
		State:  out.State,
		Merged: out.Merged || (out.MergedAt != nil && *out.MergedAt != ""),
		URL:    out.HTMLURL,
	}, nil
}

// NormalizeRepo strips any "https://github.com/", "http://github.com/" or
// "github.com/" prefix and a trailing ".git".
func NormalizeRepo(r string) string {
	r = strings.TrimSpace(r)
	r = strings.TrimPrefix(r, "https://github.com/")
	r = strings.TrimPrefix(r, "http://github.com/")
	r = strings.TrimPrefix(r, "github.com/")
	r = strings.TrimSuffix(r, "/")
	r = strings.TrimSuffix(r, ".git")
	return strings.TrimSpace(r)
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
