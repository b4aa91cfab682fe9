// Package providertest provides a scripted Provider for tests.
package providertest

import (
	"context"
	"errors"
	"sync"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Reply is one scripted response. Err takes precedence over Content.
type Reply struct {
	Content string
	Err     error
}

// Scripted returns its replies in order and records every request.
// Once the script is exhausted it returns ErrExhausted.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	requests []protocol.ChatRequest
}

// ErrExhausted is returned after the last scripted reply.
var ErrExhausted = errors.New("providertest: no more scripted replies")

// New returns a provider that replies with each content string in turn.
func New(contents ...string) *Scripted {
	s := &Scripted{}
	for _, c := range contents {
		s.replies = append(s.replies, Reply{Content: c})
	}
	return s
}

// NewReplies returns a provider scripted with explicit replies.
func NewReplies(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Chat(_ context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, ErrExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return &protocol.ChatResponse{Content: r.Content}, nil
}

// Requests returns a copy of the recorded requests.
func (s *Scripted) Requests() []protocol.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ChatRequest(nil), s.requests...)
}

// Calls returns the number of Chat calls made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
