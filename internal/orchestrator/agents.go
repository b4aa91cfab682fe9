package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/sprintagent/sprintagent/internal/decompose"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

var (
	issueKeyRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)
	prRefRe    = regexp.MustCompile(`(?i)(?:PR|pull request|#)\s*#?(\d+)`)
)

// IssueKeys returns the distinct issue keys mentioned in text, in order.
func IssueKeys(text string) []string {
	return unique(issueKeyRe.FindAllString(text, -1))
}

// PRNumbers returns the distinct pull request numbers mentioned in text.
func PRNumbers(text string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range prRefRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func (m *Machine) requirementAgent(ctx context.Context, st *AgentState, log *slog.Logger) error {
	text := st.Input
	if raw, ok := st.Intermediate.(RawText); ok {
		text = string(raw)
	}
	tasks := TaskList(m.planner.Decompose(ctx, text))
	if tasks == nil {
		tasks = TaskList{}
	}
	st.Intermediate = tasks
	st.Results[RequirementAgent] = tasks
	log.Info(st.logf("RequirementAgent generated %d tasks.", len(tasks)))
	return nil
}

func (m *Machine) jiraAgent(ctx context.Context, st *AgentState, log *slog.Logger) error {
	switch in := st.Intermediate.(type) {
	case TaskList:
		if len(in) > 0 {
			return m.createTickets(ctx, st, in, log)
		}
	case RawText:
		if keys := IssueKeys(string(in)); len(keys) > 0 {
			return m.lookupTickets(ctx, st, keys, log)
		}
	}
	st.Intermediate = TicketKeyList{}
	st.Results[JiraAgent] = TicketKeyList{}
	log.Info(st.logf("JiraAgent skipped (no tasks to create)."))
	return nil
}

func (m *Machine) createTickets(ctx context.Context, st *AgentState, tasks []string, log *slog.Logger) error {
	if m.trackers == nil {
		return errors.New("no tracker configured")
	}
	tr := m.trackers(st.Credentials)

	var tickets []decompose.Ticket
	how := "consolidated"
	if m.consolidate {
		tickets = m.planner.Consolidate(ctx, tasks, st.Input)
	} else {
		how = "bulk-generated"
		descs := m.planner.Describe(ctx, tasks, st.Input)
		for i, t := range tasks {
			desc, ok := descs[i+1]
			if !ok {
				desc = "Task: " + t
			}
			tickets = append(tickets, decompose.Ticket{Title: t, Description: desc, OriginalTasks: []string{t}})
		}
	}

	keys := make(TicketKeyList, 0, len(tickets))
	for _, tk := range tickets {
		req := protocol.TicketRequest{
			Summary:     tk.Title,
			Description: tk.Description + decompose.Footer(m.now()),
			ProjectKey:  st.Credentials.ProjectKey,
			IssueType:   protocol.IssueTask,
			Priority:    tk.Priority,
		}
		item := protocol.CreatedTicket{Kind: "task", Summary: tk.Title}
		key, err := tr.Create(ctx, req)
		if err != nil {
			log.Error("ticket creation failed", "summary", tk.Title, "error", err)
			item.Error = err.Error()
			keys = append(keys, ErrorKeyPrefix+err.Error())
		} else {
			item.Key = key
			keys = append(keys, key)
		}
		st.Created = append(st.Created, item)
	}

	st.Intermediate = keys
	st.Results[JiraAgent] = keys
	log.Info(st.logf("JiraAgent created %d tickets with %s descriptions.", len(keys), how))
	return nil
}

func (m *Machine) lookupTickets(ctx context.Context, st *AgentState, keys []string, log *slog.Logger) error {
	if m.trackers == nil {
		return errors.New("no tracker configured")
	}
	tr := m.trackers(st.Credentials)

	found := make(TicketKeyList, 0, len(keys))
	for _, k := range keys {
		info, err := tr.Get(ctx, k)
		if err != nil {
			log.Warn("ticket lookup failed", "key", k, "error", err)
			continue
		}
		found = append(found, info.Key)
		st.Lookups = append(st.Lookups, *info)
	}
	st.Intermediate = found
	st.Results[JiraAgent] = found
	log.Info(st.logf("JiraAgent looked up %d tickets.", len(found)))
	return nil
}

func (m *Machine) gitAgent(ctx context.Context, st *AgentState, log *slog.Logger) error {
	if m.prs == nil {
		return errors.New("no source control client configured")
	}

	var keys []string
	var numbers []int
	switch in := st.Intermediate.(type) {
	case TicketKeyList:
		keys = in
	case RawText:
		keys = IssueKeys(string(in))
		numbers = PRNumbers(issueKeyRe.ReplaceAllString(string(in), ""))
	}

	creds := st.Credentials
	results := make(StatusList, 0, len(keys)+len(numbers))
	for _, k := range keys {
		if strings.HasPrefix(k, ErrorKeyPrefix) {
			results = append(results, protocol.PRCheck{Issue: k, Error: "ticket was not created"})
			continue
		}
		n, err := PRNumberForKey(k)
		if err != nil {
			results = append(results, protocol.PRCheck{Issue: k, Error: err.Error()})
			continue
		}
		check := m.checkPR(ctx, creds.GitHubToken, creds.GitHubRepo, n)
		check.Issue = k
		results = append(results, check)
	}
	for _, n := range numbers {
		results = append(results, m.checkPR(ctx, creds.GitHubToken, creds.GitHubRepo, n))
	}

	st.Intermediate = results
	st.Results[GitAgent] = results
	log.Info(st.logf("GitAgent checked %d PRs.", len(results)))
	return nil
}

func (m *Machine) checkPR(ctx context.Context, token, repo string, n int) protocol.PRCheck {
	status, err := m.prs.PullRequest(ctx, token, repo, n)
	if err != nil {
		return protocol.PRCheck{Number: n, Error: err.Error()}
	}
	return protocol.PRCheck{Number: n, Status: status}
}

// PRNumberForKey returns the integer after the final "-" of a ticket key.
func PRNumberForKey(key string) (int, error) {
	i := strings.LastIndex(key, "-")
	n, err := strconv.Atoi(strings.TrimSpace(key[i+1:]))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("cannot derive a pull request number from %q", key)
	}
	return n, nil
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
