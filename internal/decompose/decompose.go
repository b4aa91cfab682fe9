// Package decompose turns free-text requirements into development tasks
// and groups tasks into ticket-sized units with a language model.
package decompose

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/sprintagent/sprintagent/internal/provider"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// DefaultMaxTasks caps the number of tasks kept from one decomposition.
const DefaultMaxTasks = 8

// Decomposer wraps the model calls used to plan work.
type Decomposer struct {
	llm      provider.Provider
	model    string
	maxTasks int
	logger   *slog.Logger
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(d *Decomposer) { d.model = model }
}

// WithMaxTasks sets the task cap. Values below 1 are ignored.
func WithMaxTasks(n int) Option {
	return func(d *Decomposer) {
		if n > 0 {
			d.maxTasks = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decomposer) { d.logger = l }
}

// New creates a Decomposer backed by llm.
func New(llm provider.Provider, opts ...Option) *Decomposer {
	d := &Decomposer{
		llm:      llm,
		maxTasks: DefaultMaxTasks,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "decompose")
	return d
}

// MaxTasks returns the configured task cap.
func (d *Decomposer) MaxTasks() int { return d.maxTasks }

// Decompose asks the model for a numbered task list. It never fails: a
// model error or an empty reply yields no tasks.
func (d *Decomposer) Decompose(ctx context.Context, text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	resp, err := d.llm.Chat(ctx, protocol.ChatRequest{
		Model:       d.model,
		Messages:    []protocol.ChatMessage{protocol.UserMessage(decomposePrompt(text))},
		Temperature: protocol.Temp(0.3),
	})
	if err != nil {
		d.logger.Error("task generation failed", "error", err)
		return nil
	}
	tasks := ParseTasks(resp.Content)
	if len(tasks) == 0 {
		d.logger.Warn("model returned no tasks")
		return nil
	}
	if len(tasks) > d.maxTasks {
		d.logger.Info("truncating task list", "generated", len(tasks), "max", d.maxTasks)
		tasks = tasks[:d.maxTasks]
	}
	return tasks
}

const listMarkers = "0123456789.•-*) \t"

// ParseTasks extracts tasks from a numbered or bulleted list. Leading
// numbering and bullets are removed and lines without a letter dropped.
func ParseTasks(reply string) []string {
	var tasks []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), listMarkers))
		if line == "" || !hasLetter(line) {
			continue
		}
		tasks = append(tasks, line)
	}
	return tasks
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
