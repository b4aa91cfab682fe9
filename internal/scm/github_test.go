package scm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sprintagent/sprintagent/internal/apperr"
)

func newGitHub(t *testing.T) (*Client, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop/pulls/{n}", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r)
		w.Header().Set("Content-Type", "application/json")
		switch r.PathValue("n") {
		case "12":
			w.Write([]byte(`{"number":12,"title":"Add cart","state":"closed","merged":false,"merged_at":"2025-01-03T10:00:00Z","html_url":"https://github.com/acme/shop/pull/12"}`))
		case "13":
			w.Write([]byte(`{"number":13,"title":"WIP","state":"open","merged":false,"merged_at":null,"html_url":"https://github.com/acme/shop/pull/13"}`))
		case "14":
			w.Write([]byte(`{"number":14,"title":"Done","state":"closed","merged":true,"html_url":"https://github.com/acme/shop/pull/14"}`))
		case "500":
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`upstream`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL + "/")), &seen
}

func TestPullRequestMergedAt(t *testing.T) {
	c, seen := newGitHub(t)

	pr, err := c.PullRequest(context.Background(), "ghp_x", "https://github.com/acme/shop", 12)
	if err != nil {
		t.Fatalf("PullRequest: %v", err)
	}
	if !pr.Merged || pr.State != "closed" || pr.Title != "Add cart" {
		t.Errorf("unexpected status %+v", pr)
	}
	req := (*seen)[0]
	if got := req.Header.Get("Authorization"); got != "Bearer ghp_x" {
		t.Errorf("expected bearer token, got %q", got)
	}
	if req.Header.Get("X-GitHub-Api-Version") == "" {
		t.Error("expected API version header")
	}
}

func TestPullRequestStates(t *testing.T) {
	c, seen := newGitHub(t)
	ctx := context.Background()

	open, err := c.PullRequest(ctx, "", "acme/shop", 13)
	if err != nil {
		t.Fatalf("PullRequest: %v", err)
	}
	if open.Merged {
		t.Error("open PR with null merged_at should not be merged")
	}
	if (*seen)[0].Header.Get("Authorization") != "" {
		t.Error("no token should mean no Authorization header")
	}

	merged, err := c.PullRequest(ctx, "", "github.com/acme/shop.git", 14)
	if err != nil {
		t.Fatalf("PullRequest: %v", err)
	}
	if !merged.Merged {
		t.Error("expected merged")
	}
}

func TestPullRequestErrors(t *testing.T) {
	c, _ := newGitHub(t)
	ctx := context.Background()

	if _, err := c.PullRequest(ctx, "", "acme/shop", 99); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := c.PullRequest(ctx, "", "acme/shop", 500); !apperr.IsKind(err, apperr.Transport) {
		t.Errorf("expected transport error, got %v", err)
	}
	if _, err := c.PullRequest(ctx, "", "shop", 1); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for bad repo, got %v", err)
	}
	if _, err := c.PullRequest(ctx, "", "acme/shop", 0); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for bad number, got %v", err)
	}
}

func TestNormalizeRepo(t *testing.T) {
	tests := map[string]string{
		"acme/shop":                      "acme/shop",
		" https://github.com/acme/shop/": "acme/shop",
		"http://github.com/acme/shop":    "acme/shop",
		"github.com/acme/shop.git":       "acme/shop",
	}
	for in, want := range tests {
		if got := NormalizeRepo(in); got != want {
			t.Errorf("NormalizeRepo(%q): expected %q, got %q", in, want, got)
		}
	}
}
