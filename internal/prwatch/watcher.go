// Package prwatch follows the pull requests of tickets created by past
// runs and records when they open, merge or close.
package prwatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/sprintagent/sprintagent/internal/notify"
	"github.com/sprintagent/sprintagent/internal/orchestrator"
	"github.com/sprintagent/sprintagent/internal/runstore"
)

// DefaultBatch caps how many tickets one sweep checks.
const DefaultBatch = 50

// Watcher sweeps pending tickets.
type Watcher struct {
	store  runstore.Store
	prs    orchestrator.PRChecker
	pub    notify.Publisher
	token  string
	repo   string
	batch  int
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithBatch sets the number of tickets checked per sweep.
func WithBatch(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithPublisher sets where status changes are announced.
func WithPublisher(p notify.Publisher) Option {
	return func(w *Watcher) { w.pub = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher. token and repo are used for tickets recorded
// without a repository of their own.
func New(store runstore.Store, prs orchestrator.PRChecker, token, repo string, opts ...Option) *Watcher {
	w := &Watcher{
		store:  store,
		prs:    prs,
		pub:    notify.Nop{},
		token:  token,
		repo:   repo,
		batch:  DefaultBatch,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "prwatch")
	return w
}

// Result summarizes one sweep.
type Result struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

// Sweep checks every pending ticket once. Lookup failures are counted and
// logged; only a store read failure aborts the sweep.
func (w *Watcher) Sweep(ctx context.Context) (Result, error) {
	var res Result

	pending, err := w.store.PendingTickets(ctx, w.batch)
	if err != nil {
		return res, err
	}

	for _, t := range pending {
		if ctx.Err() != nil {
			break
		}
		if w.check(ctx, t, &res) {
			res.Changed++
		}
	}

	w.logger.Info("pr sweep done", "pending", len(pending), "checked", res.Checked,
		"changed", res.Changed, "failed", res.Failed)
	return res, nil
}

func (w *Watcher) check(ctx context.Context, t runstore.TicketRecord, res *Result) bool {
	n, err := orchestrator.PRNumberForKey(t.Key)
	if err != nil {
		res.Failed++
		w.logger.Warn("skipping ticket", "key", t.Key, "error", err)
		w.touch(ctx, t.Key)
		return false
	}

	repo := t.GitHubRepo
	if repo == "" {
		repo = w.repo
	}

	status, err := w.prs.PullRequest(ctx, w.token, repo, n)
	if err != nil {
		res.Failed++
		w.logger.Debug("pull request lookup failed", "key", t.Key, "repo", repo, "pr", n, "error", err)
		w.touch(ctx, t.Key)
		return false
	}
	res.Checked++

	update := runstore.PRUpdate{Number: n, State: status.State, Merged: status.Merged, CheckedAt: w.now()}
	if err := w.store.UpdatePR(ctx, t.Key, update); err != nil {
		res.Failed++
		w.logger.Error("store pr state", "key", t.Key, "error", err)
		return false
	}

	if t.PRState == status.State && t.PRMerged == status.Merged {
		return false
	}

	w.logger.Info("pull request changed", "key", t.Key, "pr", n, "from", t.PRState, "to", status.State, "merged", status.Merged)
	err = w.pub.Publish(ctx, notify.Event{
		Type: notify.PRStatusChanged,
		At:   w.now().UTC(),
		Data: map[string]any{
			"key":        t.Key,
			"run_id":     t.RunID,
			"repo":       repo,
			"pr_number":  n,
			"from_state": t.PRState,
			"state":      status.State,
			"merged":     status.Merged,
			"url":        status.URL,
		},
	})
	if err != nil {
		w.logger.Warn("publish failed", "key", t.Key, "error", err)
	}
	return true
}

// touch stamps a failed attempt so the ticket yields its place in the next
// batch.
func (w *Watcher) touch(ctx context.Context, key string) {
	if err := w.store.TouchChecked(ctx, key, w.now()); err != nil {
		w.logger.Error("store check attempt", "key", key, "error", err)
	}
}
