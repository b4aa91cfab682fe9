package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/sprintagent/sprintagent/internal/config"
	"github.com/sprintagent/sprintagent/internal/decompose"
	"github.com/sprintagent/sprintagent/internal/provider"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Planner produces tasks and ticket descriptions.
type Planner interface {
	Decompose(ctx context.Context, text string) []string
	Consolidate(ctx context.Context, tasks []string, background string) []decompose.Ticket
	Describe(ctx context.Context, tasks []string, background string) map[int]string
}

// Tracker is the subset of the ticket client the agents use.
type Tracker interface {
	Create(ctx context.Context, req protocol.TicketRequest) (string, error)
	Get(ctx context.Context, key string) (*protocol.TicketInfo, error)
}

// TrackerFunc returns the tracker for a run's credentials.
type TrackerFunc func(creds config.Credentials) Tracker

// PRChecker looks up pull requests.
type PRChecker interface {
	PullRequest(ctx context.Context, token, repo string, number int) (*protocol.PRStatus, error)
}

// Machine executes runs. It holds only shared, stateless collaborators;
// every run gets its own AgentState.
type Machine struct {
	llm         provider.Provider
	model       string
	planner     Planner
	trackers    TrackerFunc
	prs         PRChecker
	consolidate bool
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithModel overrides the provider's default model for routing.
func WithModel(model string) Option {
	return func(m *Machine) { m.model = model }
}

// WithConsolidation toggles grouping tasks into fewer tickets. When off,
// each task becomes its own ticket with a bulk-generated description.
func WithConsolidation(on bool) Option {
	return func(m *Machine) { m.consolidate = on }
}

// WithClock replaces time.Now for description footers.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New creates a Machine.
func New(llm provider.Provider, planner Planner, trackers TrackerFunc, prs PRChecker, opts ...Option) *Machine {
	m := &Machine{
		llm:         llm,
		planner:     planner,
		trackers:    trackers,
		prs:         prs,
		consolidate: true,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "orchestrator")
	return m
}

// Run processes one request to completion. Agent failures are recorded in
// the run's logs rather than returned.
func (m *Machine) Run(ctx context.Context, runID, input string, creds config.Credentials) *Response {
	st := NewState(runID, input, creds)
	log := m.logger.With("run_id", runID)
	log.Info("run started", "input_len", len(input))

	next := m.route(ctx, st, log)
	for next != End {
		if err := ctx.Err(); err != nil {
			log.Warn(st.logf("%s error: %v", next, err))
			break
		}
		m.step(ctx, st, next, log)
		next = st.next()
	}

	resp := st.Response()
	log.Info("run finished", "success", resp.Success, "message", resp.Message)
	return resp
}

// route is the SprintAgent state: it asks the model for a plan and seeds
// the queue.
func (m *Machine) route(ctx context.Context, st *AgentState, log *slog.Logger) (next AgentName) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(st.logf("%s error: %v", SprintAgent, r), "stack", string(debug.Stack()))
			next = End
		}
	}()

	resp, err := m.llm.Chat(ctx, protocol.ChatRequest{
		Model:       m.model,
		Messages:    []protocol.ChatMessage{protocol.UserMessage(routerPrompt(st.Input))},
		Temperature: protocol.Temp(0.1),
	})
	if err != nil {
		log.Error(st.logf("%s error: %v", SprintAgent, err))
		return End
	}

	plan := ParsePlan(resp.Content)
	log.Info(st.logf("SprintAgent decided execution order: %s", planString(plan)))
	st.Queue = plan
	st.Intermediate = RawText(st.Input)
	return st.next()
}

func (m *Machine) step(ctx context.Context, st *AgentState, name AgentName, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(st.logf("%s error: %v", name, r), "stack", string(debug.Stack()))
		}
	}()

	var err error
	switch name {
	case RequirementAgent:
		err = m.requirementAgent(ctx, st, log)
	case JiraAgent:
		err = m.jiraAgent(ctx, st, log)
	case GitAgent:
		err = m.gitAgent(ctx, st, log)
	default:
		err = fmt.Errorf("unknown agent %q", name)
	}
	if err != nil {
		log.Error(st.logf("%s error: %v", name, err))
	}
}

func routerPrompt(input string) string {
	return fmt.Sprintf(`You are SprintAssistant, an AI orchestrator for development workflow management.

Given the user input:
"%s"

Decide the intent and return the list of agents in the sequence they should be executed to fulfill the query.
Use only these agents: RequirementAgent, JiraAgent, GitAgent.

Examples:
- "Build a user login system" → "RequirementAgent,JiraAgent"
- "Check status of PROJ-123" → "JiraAgent"
- "What's the status of PR 456?" → "GitAgent"
- "Create tickets for mobile app features" → "RequirementAgent,JiraAgent"

Return the list as a comma-separated string like: RequirementAgent,JiraAgent`, input)
}
