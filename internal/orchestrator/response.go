package orchestrator

import (
	"strings"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Summary counts what a run produced.
type Summary struct {
	TasksGenerated    int `json:"tasks_generated"`
	TicketsCreated    int `json:"tickets_created"`
	Errors            int `json:"errors"`
	PRStatusesChecked int `json:"pr_statuses_checked"`
}

// Response is the outcome of a run.
type Response struct {
	RunID      string                   `json:"run_id"`
	Success    bool                     `json:"success"`
	Message    string                   `json:"message"`
	Tasks      []string                 `json:"tasks"`
	JiraKeys   []string                 `json:"jira_keys"`
	PRStatuses []protocol.PRCheck       `json:"pr_statuses"`
	Tickets    []protocol.TicketInfo    `json:"tickets,omitempty"`
	Created    []protocol.CreatedTicket `json:"created,omitempty"`
	Logs       []string                 `json:"agent_logs"`
	Summary    Summary                  `json:"summary"`
}

const messageLines = 3

// Response builds the run outcome from the state. A run succeeds when at
// least one ticket was created.
func (s *AgentState) Response() *Response {
	r := &Response{
		RunID:      s.RunID,
		Tasks:      nonNil(s.tasks()),
		JiraKeys:   nonNil(s.keys()),
		PRStatuses: s.statuses(),
		Tickets:    s.Lookups,
		Created:    s.Created,
		Logs:       nonNil(s.Logs),
	}
	if r.PRStatuses == nil {
		r.PRStatuses = []protocol.PRCheck{}
	}

	r.Summary.TasksGenerated = len(r.Tasks)
	r.Summary.PRStatusesChecked = len(r.PRStatuses)
	for _, k := range r.JiraKeys {
		if strings.HasPrefix(k, ErrorKeyPrefix) {
			r.Summary.Errors++
		}
	}
	// looked-up keys are not creations
	for _, c := range s.Created {
		if c.Key != "" {
			r.Summary.TicketsCreated++
		}
	}
	r.Success = r.Summary.TicketsCreated > 0

	if len(s.Logs) > 0 {
		from := max(0, len(s.Logs)-messageLines)
		r.Message = strings.Join(s.Logs[from:], "; ")
	} else {
		r.Message = "Request processed"
	}
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
