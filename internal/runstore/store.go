// Package runstore keeps an audit trail of orchestration runs and the
// tickets they created, along with the last known pull request state of
// each ticket.
package runstore

import (
	"context"
	"time"
)

// Run is one processed request.
type Run struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Input      string    `json:"input"`
	ProjectKey string    `json:"project_key"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Tasks      []string  `json:"tasks"`
	Keys       []string  `json:"jira_keys"`
	Logs       []string  `json:"agent_logs"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// TicketRecord is a ticket created by a run.
type TicketRecord struct {
	Key        string     `json:"key"`
	RunID      string     `json:"run_id"`
	Summary    string     `json:"summary"`
	ProjectKey string     `json:"project_key"`
	JiraServer string     `json:"jira_server"`
	GitHubRepo string     `json:"github_repo"`
	PRNumber   int        `json:"pr_number,omitempty"`
	PRState    string     `json:"pr_state,omitempty"`
	PRMerged   bool       `json:"pr_merged"`
	CheckedAt  *time.Time `json:"checked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PRUpdate is the result of checking a ticket's pull request.
type PRUpdate struct {
	Number    int
	State     string
	Merged    bool
	CheckedAt time.Time
}

// Store is the persistence interface for runs and tickets.
type Store interface {
	// SaveRun creates or replaces a run.
	SaveRun(ctx context.Context, r *Run) error
	// GetRun returns a run by id.
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns the most recent runs first. limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	// RecordTicket stores a created ticket. Recording a key again updates
	// its run and summary but keeps the pull request state.
	RecordTicket(ctx context.Context, t TicketRecord) error
	// RunTickets returns the tickets created by a run.
	RunTickets(ctx context.Context, runID string) ([]TicketRecord, error)
	// PendingTickets returns tickets whose pull request is neither merged
	// nor closed, oldest check first.
	PendingTickets(ctx context.Context, limit int) ([]TicketRecord, error)
	// UpdatePR stores the latest pull request state of a ticket.
	UpdatePR(ctx context.Context, key string, u PRUpdate) error
	// TouchChecked records a check attempt that found no pull request,
	// moving the ticket behind the others in PendingTickets.
	TouchChecked(ctx context.Context, key string, at time.Time) error
	// Ping checks the database connection.
	Ping(ctx context.Context) error
	// Close releases the database.
	Close() error
}
