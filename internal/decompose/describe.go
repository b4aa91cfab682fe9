package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Describe writes one description per task with a single model call. The
// result is keyed by 1-based task number and always covers every task.
func (d *Decomposer) Describe(ctx context.Context, tasks []string, background string) map[int]string {
	out := make(map[int]string, len(tasks))
	if len(tasks) == 0 {
		return out
	}
	resp, err := d.llm.Chat(ctx, protocol.ChatRequest{
		Model:       d.model,
		Messages:    []protocol.ChatMessage{protocol.UserMessage(describePrompt(tasks, background))},
		Temperature: protocol.Temp(0.2),
		MaxTokens:   3000,
	})
	if err == nil {
		err = parseDescriptions(resp.Content, len(tasks), out)
	}
	if err != nil {
		d.logger.Warn("bulk descriptions unavailable, using template", "error", err)
		for i, t := range tasks {
			out[i+1] = FallbackDescription(t)
		}
		return out
	}
	for i, t := range tasks {
		if _, ok := out[i+1]; !ok {
			out[i+1] = "Task: " + t
		}
	}
	return out
}

func parseDescriptions(content string, n int, out map[int]string) error {
	raw, err := extractJSONArray(content)
	if err != nil {
		return err
	}
	var items []struct {
		TaskNumber  json.RawMessage `json:"task_number"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return fmt.Errorf("invalid JSON from LLM: %w", err)
	}
	for _, it := range items {
		num, ok := taskNumber(it.TaskNumber)
		if !ok || num < 1 || num > n || strings.TrimSpace(it.Description) == "" {
			continue
		}
		out[num] = it.Description
	}
	return nil
}

func taskNumber(v json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(v, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// FallbackDescription is the generic description used when the model
// cannot provide one.
func FallbackDescription(task string) string {
	return fmt.Sprintf(`**Overview**: %s. This task is essential for the overall project functionality and user experience. It requires careful implementation to ensure scalability and maintainability. The solution should follow best practices and coding standards.

**Background**: This feature is critical for meeting the project requirements and user expectations. It will integrate with existing system components and may affect other parts of the application. Proper implementation will enhance the overall system architecture.

**Implementation Details**: The development should use appropriate design patterns and follow the existing codebase structure. Consider performance implications and potential edge cases during implementation. Ensure proper error handling and logging are implemented throughout the solution.

**Acceptance Criteria**:
- Feature implementation is complete and functional
- All unit tests pass with minimum 80%% code coverage
- Integration tests are written and passing
- Code follows project coding standards and guidelines
- Documentation is updated including API docs if applicable
- Performance requirements are met under expected load
- Security considerations are addressed appropriately

**Definition of Done**:
- Code is reviewed and approved by team lead
- All automated tests are passing
- Feature is deployed to staging environment
- QA testing is completed successfully`, task)
}

// Footer is appended to every generated ticket description.
func Footer(now time.Time) string {
	return "\n\n---\n*Auto-generated by SprintAgent*\n*Created:* " + now.Format("2006-01-02 15:04")
}
