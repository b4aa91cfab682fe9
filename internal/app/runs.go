package app

import (
	"context"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/internal/prwatch"
	"github.com/sprintagent/sprintagent/internal/runstore"
)

// PRSweepJob is the scheduler name of the pull request sweep.
const PRSweepJob = "pr-sweep"

// RunDetail is a stored run with the tickets it created.
type RunDetail struct {
	*runstore.Run
	Tickets []runstore.TicketRecord `json:"tickets"`
}

// Runs lists recent runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]*runstore.Run, error) {
	if s.store == nil {
		return nil, errNoStore("app.runs")
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*runstore.Run{}
	}
	return runs, nil
}

// Run returns one run and its tickets.
func (s *Service) Run(ctx context.Context, id string) (*RunDetail, error) {
	if s.store == nil {
		return nil, errNoStore("app.run")
	}
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	tickets, err := s.store.RunTickets(ctx, id)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []runstore.TicketRecord{}
	}
	return &RunDetail{Run: run, Tickets: tickets}, nil
}

// SweepPRs checks the pull requests of recorded tickets once.
func (s *Service) SweepPRs(ctx context.Context) (prwatch.Result, error) {
	if s.watcher == nil {
		return prwatch.Result{}, errNoStore("app.sweep")
	}
	return s.watcher.Sweep(ctx)
}

// RegisterJobs adds the configured background jobs to the scheduler.
func (s *Service) RegisterJobs() error {
	if s.sched == nil || s.watcher == nil || s.cfg.Scheduler.PRSweep == "" {
		return nil
	}
	return s.sched.AddJob(PRSweepJob, s.cfg.Scheduler.PRSweep, func(ctx context.Context) error {
		_, err := s.SweepPRs(ctx)
		return err
	})
}

func errNoStore(op string) error {
	return apperr.Configurationf(op, "run store is not configured")
}
