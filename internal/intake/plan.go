package intake

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Breakdown counts the planned tickets by type.
type Breakdown struct {
	Total   int `json:"total_tickets"`
	Epics   int `json:"epic_count"`
	Stories int `json:"story_count"`
	Tasks   int `json:"task_count"`
}

// Plan turns a validated document into ticket requests for projectKey:
// an optional epic, then stories, then tasks.
func Plan(doc *Document, projectKey string, logger *slog.Logger) ([]protocol.TicketRequest, Breakdown) {
	if logger == nil {
		logger = slog.Default()
	}
	priority := protocol.PriorityMedium
	if doc.Priority != "" {
		if p, ok := protocol.ParsePriority(doc.Priority); ok {
			priority = p
		} else {
			logger.Warn("invalid priority, defaulting to Medium", "priority", doc.Priority)
		}
	}
	labels := doc.labels()
	suggested := doc.SuggestedJiraTasks
	if suggested == nil {
		suggested = &SuggestedTasks{}
	}

	var reqs []protocol.TicketRequest
	var b Breakdown
	if epic := strings.TrimSpace(suggested.Epic); epic != "" {
		reqs = append(reqs, protocol.TicketRequest{
			Summary:     "Epic: " + epic,
			Description: doc.epicDescription(),
			ProjectKey:  projectKey,
			IssueType:   protocol.IssueEpic,
			Assignee:    doc.Assignee.Dev,
			Labels:      labels,
		})
		b.Epics = 1
	}
	for _, s := range suggested.Stories {
		reqs = append(reqs, protocol.TicketRequest{
			Summary:     s,
			Description: doc.storyDescription(s),
			ProjectKey:  projectKey,
			IssueType:   protocol.IssueStory,
			Priority:    priority,
			Assignee:    doc.Assignee.Dev,
			Labels:      labels,
		})
		b.Stories++
	}
	for _, t := range suggested.Tasks {
		reqs = append(reqs, protocol.TicketRequest{
			Summary:     t,
			Description: doc.taskDescription(t),
			ProjectKey:  projectKey,
			IssueType:   protocol.IssueTask,
			Priority:    priority,
			Assignee:    doc.Assignee.Dev,
			Labels:      labels,
		})
		b.Tasks++
	}
	b.Total = len(reqs)
	return reqs, b
}

func (d *Document) labels() []string {
	var out []string
	if p := strings.ToLower(strings.TrimSpace(d.Priority)); p != "" {
		out = append(out, "priority-"+p)
	}
	if d.Assignee.Dev != "" {
		out = append(out, "development")
	}
	if d.Assignee.QA != "" {
		out = append(out, "testing")
	}
	for _, c := range d.categories() {
		out = append(out, strings.ToLower(c))
	}
	return out
}

func (d *Document) categories() []string {
	cats := make([]string, 0, len(d.NonFunctionalRequirements))
	for c := range d.NonFunctionalRequirements {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func (d *Document) epicDescription() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	fmt.Fprintf(&b, "## Business Objective\n%s\n\n", d.BusinessObjective)
	if len(d.FunctionalRequirements) > 0 {
		b.WriteString("## Functional Requirements\n")
		bullets(&b, d.FunctionalRequirements)
		b.WriteString("\n")
	}
	if len(d.NonFunctionalRequirements) > 0 {
		b.WriteString("## Non-Functional Requirements\n")
		for _, c := range d.categories() {
			fmt.Fprintf(&b, "- **%s**: %s\n", titleCase(c), d.NonFunctionalRequirements[c])
		}
		b.WriteString("\n")
	}
	if len(d.UserStories) > 0 {
		b.WriteString("## User Stories\n")
		for _, s := range d.UserStories {
			b.WriteString("- " + s.Story)
			if s.Value != "" {
				fmt.Fprintf(&b, " (Value: %s)", s.Value)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (d *Document) storyDescription(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	lower := strings.ToLower(title)

	for _, s := range d.UserStories {
		story := strings.ToLower(s.Story)
		if story == "" || !(strings.Contains(story, lower) || strings.Contains(lower, story)) {
			continue
		}
		fmt.Fprintf(&b, "## User Story\n%s\n\n", s.Story)
		if s.Value != "" {
			fmt.Fprintf(&b, "## Value\n%s\n\n", s.Value)
		}
		break
	}

	if len(d.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance Criteria\n")
		for _, c := range d.AcceptanceCriteria {
			if strings.Contains(strings.ToLower(c), lower) {
				b.WriteString("- " + c + "\n")
			}
		}
		b.WriteString("\n")
	}
	if d.BusinessObjective != "" {
		fmt.Fprintf(&b, "## Business Context\n%s\n\n", d.BusinessObjective)
	}
	return b.String()
}

func (d *Document) taskDescription(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	words := strings.Fields(strings.ToLower(title))
	var related []string
	for _, r := range d.FunctionalRequirements {
		lr := strings.ToLower(r)
		for _, w := range words {
			if strings.Contains(lr, w) {
				related = append(related, r)
				break
			}
		}
	}
	section(&b, "Related Requirements", related)
	if !isNone(d.Constraints) {
		section(&b, "Constraints", d.Constraints)
	}
	section(&b, "Assumptions", d.Assumptions)
	if !isNone(d.Dependencies) {
		section(&b, "Dependencies", d.Dependencies)
	}
	return b.String()
}

func section(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("## " + heading + "\n")
	bullets(b, items)
	b.WriteString("\n")
}

func bullets(b *strings.Builder, items []string) {
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

// isNone reports the analyst's explicit "nothing here" marker.
func isNone(items []string) bool {
	return len(items) == 1 && items[0] == "None"
}

func titleCase(s string) string {
	out := []rune(s)
	start := true
	for i, r := range out {
		if !unicode.IsLetter(r) {
			start = true
			continue
		}
		if start {
			out[i] = unicode.ToUpper(r)
		} else {
			out[i] = unicode.ToLower(r)
		}
		start = false
	}
	return string(out)
}
