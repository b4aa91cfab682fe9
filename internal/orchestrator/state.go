package orchestrator

import (
	"fmt"

	"github.com/sprintagent/sprintagent/internal/config"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// AgentState is the working state of one run. It belongs to that run
// alone.
type AgentState struct {
	RunID        string
	Input        string
	Intermediate Result
	Queue        []Decision
	Logs         []string
	Results      map[AgentName]Result
	Credentials  config.Credentials

	// Created records every ticket creation attempt.
	Created []protocol.CreatedTicket
	// Lookups holds tickets read by the Jira agent.
	Lookups []protocol.TicketInfo
}

// NewState creates the initial state for a run.
func NewState(runID, input string, creds config.Credentials) *AgentState {
	return &AgentState{
		RunID:        runID,
		Input:        input,
		Intermediate: RawText(input),
		Results:      make(map[AgentName]Result),
		Credentials:  creds,
	}
}

func (s *AgentState) logf(format string, args ...any) string {
	line := fmt.Sprintf(format, args...)
	s.Logs = append(s.Logs, line)
	return line
}

// next pops the next decision, returning End when the queue is empty.
func (s *AgentState) next() AgentName {
	if len(s.Queue) == 0 {
		return End
	}
	d := s.Queue[0]
	s.Queue = s.Queue[1:]
	return d.Agent()
}

func (s *AgentState) tasks() []string {
	if r, ok := s.Results[RequirementAgent].(TaskList); ok {
		return r
	}
	return nil
}

func (s *AgentState) keys() []string {
	if r, ok := s.Results[JiraAgent].(TicketKeyList); ok {
		return r
	}
	return nil
}

func (s *AgentState) statuses() []protocol.PRCheck {
	if r, ok := s.Results[GitAgent].(StatusList); ok {
		return r
	}
	return nil
}
