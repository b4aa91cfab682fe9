package decompose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// FallbackTickets is the number of tickets created from the first tasks
// when the model's grouping cannot be used.
const FallbackTickets = 3

// Ticket is a group of tasks to be filed as one ticket.
type Ticket struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Priority      protocol.Priority `json:"priority"`
	OriginalTasks []string          `json:"original_tasks"`
}

type wireTicket struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Priority      string            `json:"priority"`
	OriginalTasks []json.RawMessage `json:"original_tasks"`
}

// Consolidate groups tasks into fewer prioritised tickets with one model
// call. When the reply is unusable the first FallbackTickets tasks become
// tickets with the generic description and Medium priority; the remaining
// tasks are not filed.
func (d *Decomposer) Consolidate(ctx context.Context, tasks []string, background string) []Ticket {
	if len(tasks) == 0 {
		return nil
	}
	resp, err := d.llm.Chat(ctx, protocol.ChatRequest{
		Model:       d.model,
		Messages:    []protocol.ChatMessage{protocol.UserMessage(consolidatePrompt(tasks, background))},
		Temperature: protocol.Temp(0.2),
		MaxTokens:   3000,
	})
	if err != nil {
		d.logger.Error("consolidation request failed, using fallback", "error", err)
		return Fallback(tasks)
	}

	tickets, err := d.parseTickets(resp.Content, tasks)
	if err != nil {
		d.logger.Warn("consolidation reply unusable, using fallback", "error", err, "tasks", len(tasks))
		return Fallback(tasks)
	}
	d.logger.Info("consolidated tasks", "tasks", len(tasks), "tickets", len(tickets))
	return tickets
}

// Fallback builds tickets from the first tasks with the generic template.
func Fallback(tasks []string) []Ticket {
	n := min(FallbackTickets, len(tasks))
	out := make([]Ticket, 0, n)
	for _, t := range tasks[:n] {
		out = append(out, Ticket{
			Title:         t,
			Description:   FallbackDescription(t),
			Priority:      protocol.PriorityMedium,
			OriginalTasks: []string{t},
		})
	}
	return out
}

func (d *Decomposer) parseTickets(content string, tasks []string) ([]Ticket, error) {
	raw, err := extractJSONArray(content)
	if err != nil {
		return nil, err
	}
	var items []wireTicket
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("invalid JSON from LLM: %w", err)
	}

	var out []Ticket
	for _, it := range items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		p, ok := protocol.ParsePriority(it.Priority)
		if !ok {
			d.logger.Info("unknown priority from model, using Medium", "priority", it.Priority, "title", title)
			p = protocol.PriorityMedium
		}
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = FallbackDescription(title)
		}
		out = append(out, Ticket{
			Title:         title,
			Description:   desc,
			Priority:      p,
			OriginalTasks: resolveTasks(it.OriginalTasks, tasks),
		})
	}
	if len(out) == 0 {
		return nil, errors.New("no usable tickets in reply")
	}
	return out, nil
}

// resolveTasks maps task numbers back to task text. Strings are kept.
func resolveTasks(refs []json.RawMessage, tasks []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		var n int
		if err := json.Unmarshal(r, &n); err == nil {
			if n >= 1 && n <= len(tasks) {
				out = append(out, tasks[n-1])
			}
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			s = strings.TrimSpace(s)
			if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(tasks) {
				out = append(out, tasks[n-1])
			} else if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// extractJSONArray strips code fences and surrounding prose around the
// outermost JSON array.
func extractJSONArray(content string) (string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON array in reply (content: %q)", preview(content, 120))
	}
	return content[start : end+1], nil
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
