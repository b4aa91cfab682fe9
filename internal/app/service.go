// Package app wires the orchestrator, the ticket tracker, the run store
// and the background jobs into the operations exposed over HTTP and chat.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/sprintagent/sprintagent/internal/config"
	"github.com/sprintagent/sprintagent/internal/decompose"
	"github.com/sprintagent/sprintagent/internal/notify"
	"github.com/sprintagent/sprintagent/internal/orchestrator"
	"github.com/sprintagent/sprintagent/internal/provider"
	"github.com/sprintagent/sprintagent/internal/prwatch"
	"github.com/sprintagent/sprintagent/internal/runstore"
	"github.com/sprintagent/sprintagent/internal/scheduler"
	"github.com/sprintagent/sprintagent/internal/tracker"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// TicketClient is the tracker surface the service uses.
type TicketClient interface {
	Create(ctx context.Context, req protocol.TicketRequest) (string, error)
	Get(ctx context.Context, key string) (*protocol.TicketInfo, error)
	ListProject(ctx context.Context, projectKey string, maxResults int) ([]protocol.TicketInfo, error)
	Details(ctx context.Context, key string) (*protocol.TicketDetails, error)
	History(ctx context.Context, key string) (*protocol.TicketHistoryResponse, error)
	Update(ctx context.Context, u protocol.TicketUpdate) (bool, error)
	AddComment(ctx context.Context, key, body string) (*protocol.TicketComment, error)
}

// ClientFunc returns the tracker client for a credential set.
type ClientFunc func(config.Credentials) TicketClient

// Service implements every sprintagent operation.
type Service struct {
	cfg     *config.Config
	llm     provider.Provider
	planner *decompose.Decomposer
	machine *orchestrator.Machine
	clients ClientFunc
	prs     orchestrator.PRChecker
	store   runstore.Store
	pub     notify.Publisher
	sched   *scheduler.Scheduler
	watcher *prwatch.Watcher
	newID   func() string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClients replaces the default tracker pool.
func WithClients(f ClientFunc) Option {
	return func(s *Service) { s.clients = f }
}

// WithStore enables run history and pull request tracking.
func WithStore(st runstore.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithPublisher sets where run and pull request events go.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithScheduler registers background jobs on sched.
func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(s *Service) { s.sched = sched }
}

// WithIDs overrides run id generation.
func WithIDs(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds a Service. prs looks up pull requests for the git agent and
// the sweep job.
func New(cfg *config.Config, llm provider.Provider, prs orchestrator.PRChecker, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		llm:    llm,
		prs:    prs,
		pub:    notify.Nop{},
		newID:  newRunID,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "app")

	if s.clients == nil {
		pool := tracker.NewPool(tracker.WithLogger(s.logger))
		s.clients = func(c config.Credentials) TicketClient {
			return pool.Get(c.JiraServer, c.JiraUsername, c.JiraAPIToken)
		}
	}

	s.planner = decompose.New(llm,
		decompose.WithModel(cfg.LLM.Model),
		decompose.WithMaxTasks(cfg.Orchestrator.MaxTasks),
		decompose.WithLogger(s.logger),
	)
	s.machine = orchestrator.New(llm, s.planner,
		func(c config.Credentials) orchestrator.Tracker { return s.clients(c) },
		prs,
		orchestrator.WithModel(cfg.LLM.Model),
		orchestrator.WithConsolidation(cfg.Orchestrator.ConsolidateEnabled()),
		orchestrator.WithClock(s.now),
		orchestrator.WithLogger(s.logger),
	)

	if s.store != nil {
		s.watcher = prwatch.New(s.store, prs, cfg.GitHub.Token, cfg.GitHub.Repo,
			prwatch.WithPublisher(s.pub),
			prwatch.WithLogger(s.logger),
		)
	}
	return s
}

// Planner returns the decomposer used for runs.
func (s *Service) Planner() *decompose.Decomposer { return s.planner }

// defaults returns the configured connection settings.
func (s *Service) defaults() (config.Credentials, error) {
	return s.cfg.Credentials(config.Overrides{})
}
