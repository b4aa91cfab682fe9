package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type conflictErr struct{}

func (conflictErr) Error() string   { return "conflict" }
func (conflictErr) HTTPStatus() int { return http.StatusConflict }

func TestErrorMessage(t *testing.T) {
	err := Wrapf(Creation, "jira.create", errors.New("status=400"), "create %s", "Task")
	if got := err.Error(); got != "jira.create: create Task: status=400" {
		t.Errorf("unexpected message: %q", got)
	}

	bare := Wrap(Transport, "jira.get", errors.New("timeout"))
	if got := bare.Error(); got != "jira.get: timeout" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestKindThroughWrapping(t *testing.T) {
	base := NotFoundf("jira.get", "issue %s", "PROJ-1")
	wrapped := fmt.Errorf("update: %w", base)

	if KindOf(wrapped) != NotFound {
		t.Fatalf("expected not_found, got %q", KindOf(wrapped))
	}
	if !errors.Is(wrapped, &Error{Kind: NotFound}) {
		t.Error("expected errors.Is to match on kind")
	}
	if errors.Is(wrapped, &Error{Kind: Transport}) {
		t.Error("expected errors.Is not to match a different kind")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty kind for plain error")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{Configurationf("config", "missing"), http.StatusBadRequest},
		{Validationf("ticket", "bad"), http.StatusBadRequest},
		{NotFoundf("jira", "gone"), http.StatusNotFound},
		{Wrap(Transport, "jira", errors.New("x")), http.StatusBadGateway},
		{Wrap(Creation, "jira", errors.New("x")), http.StatusBadGateway},
		{Wrap(Parse, "llm", errors.New("x")), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", conflictErr{}), http.StatusConflict},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
