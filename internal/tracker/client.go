// Package tracker is the Jira client used to create, read and update
// tickets. Custom fields are located through a Resolver so the same code
// works against instances with different field ids.
package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sprintagent/sprintagent/internal/apperr"
)

const apiPrefix = "/rest/api/2"

// Client talks to one Jira instance with one set of credentials.
type Client struct {
	baseURL string
	user    string
	token   string
	http    *http.Client
	fields  *Resolver
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces time.Now, used for status durations.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the Jira server at baseURL using Basic auth.
func New(baseURL, user, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "jira")
	c.fields = NewResolver(c, c.logger)
	return c
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Resolver exposes the client's field resolver.
func (c *Client) Resolver() *Resolver { return c.fields }

// BrowseURL returns the web URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + url.PathEscape(key)
}

// HTTPError is a non-2xx reply from Jira.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("jira status=%d body=%s", e.Status, preview(e.Body, 600))
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// classify attaches an application kind to a transport-level error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if StatusOf(err) == http.StatusNotFound {
		return apperr.Wrap(apperr.NotFound, op, err)
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Wrap(apperr.Transport, op, err)
}

// do sends a JSON request and decodes a JSON reply into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.baseURL == "" {
		return errors.New("missing Jira base URL")
	}
	if c.user == "" || c.token == "" {
		return errors.New("missing Jira credentials")
	}

	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cred := base64.StdEncoding.EncodeToString([]byte(c.user + ":" + c.token))
	req.Header.Set("Authorization", "Basic "+cred)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: string(rb)}
	}
	if out == nil || len(bytes.TrimSpace(rb)) == 0 {
		return nil
	}
	if err := json.Unmarshal(rb, out); err != nil {
		return apperr.Wrapf(apperr.Parse, "jira", err, "decode %s %s", method, path)
	}
	return nil
}

func issuePath(key string, suffix ...string) string {
	p := "/issue/" + url.PathEscape(key)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// preview truncates long strings for error messages.
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
