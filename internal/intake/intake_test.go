package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

const sampleJSON = `{
  "title": "Customer Login",
  "businessObjective": "Let customers access their orders.",
  "priority": "high",
  "assignee": {"dev": "alice", "qa": "bob"},
  "functionalRequirements": ["Login with email and password", "Reset password by email", "Show order history"],
  "nonFunctionalRequirements": {"security": "Passwords hashed", "Performance": "Login under 1s"},
  "userStories": [
    {"story": "As a customer I want to log in", "value": "See my orders"},
    "As a customer I want to reset my password"
  ],
  "acceptanceCriteria": ["User can log in with valid credentials", "Reset password email arrives"],
  "constraints": ["None"],
  "assumptions": ["Email service exists"],
  "dependencies": ["Auth service"],
  "suggestedJiraTasks": {
    "epic": "Customer authentication",
    "stories": ["log in"],
    "tasks": ["Implement password reset"]
  }
}`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPlanFromDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleJSON), "req.json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reqs, b := Plan(doc, "SHOP", quiet())

	if b != (Breakdown{Total: 3, Epics: 1, Stories: 1, Tasks: 1}) {
		t.Errorf("unexpected breakdown %+v", b)
	}
	epic, story, task := reqs[0], reqs[1], reqs[2]

	if epic.Summary != "Epic: Customer authentication" || epic.IssueType != protocol.IssueEpic {
		t.Errorf("unexpected epic %+v", epic)
	}
	if epic.Priority != "" {
		t.Errorf("epic should carry no priority, got %s", epic.Priority)
	}
	if story.Priority != protocol.PriorityHigh || task.Priority != protocol.PriorityHigh {
		t.Errorf("expected High priority, got %s/%s", story.Priority, task.Priority)
	}
	for _, r := range reqs {
		if r.ProjectKey != "SHOP" || r.Assignee != "alice" {
			t.Errorf("unexpected project/assignee %s/%s", r.ProjectKey, r.Assignee)
		}
	}

	wantLabels := []string{"priority-high", "development", "testing", "performance", "security"}
	if !reflect.DeepEqual(epic.Labels, wantLabels) {
		t.Errorf("expected labels %v, got %v", wantLabels, epic.Labels)
	}

	for _, s := range []string{"# Customer Login", "## Business Objective", "- **Performance**: Login under 1s", "- As a customer I want to log in (Value: See my orders)", "- As a customer I want to reset my password\n"} {
		if !strings.Contains(epic.Description, s) {
			t.Errorf("epic description missing %q:\n%s", s, epic.Description)
		}
	}
	for _, s := range []string{"## User Story\nAs a customer I want to log in", "## Value\nSee my orders", "- User can log in with valid credentials", "## Business Context"} {
		if !strings.Contains(story.Description, s) {
			t.Errorf("story description missing %q:\n%s", s, story.Description)
		}
	}
	if strings.Contains(story.Description, "Reset password email") {
		t.Error("unrelated acceptance criteria should be filtered out")
	}
	for _, s := range []string{"## Related Requirements", "- Reset password by email", "## Assumptions", "## Dependencies\n- Auth service"} {
		if !strings.Contains(task.Description, s) {
			t.Errorf("task description missing %q:\n%s", s, task.Description)
		}
	}
	if strings.Contains(task.Description, "## Constraints") {
		t.Error("a None constraint list should be omitted")
	}
}

func TestPlanInvalidPriorityDefaultsToMedium(t *testing.T) {
	doc := &Document{
		Title: "t", BusinessObjective: "o", Priority: "urgent",
		SuggestedJiraTasks: &SuggestedTasks{Tasks: []string{"do it"}},
	}
	reqs, _ := Plan(doc, "P", quiet())
	if reqs[0].Priority != protocol.PriorityMedium {
		t.Errorf("expected Medium, got %s", reqs[0].Priority)
	}
	if reqs[0].Labels[0] != "priority-urgent" {
		t.Errorf("label should keep the given priority, got %v", reqs[0].Labels)
	}
}

func TestParseYAML(t *testing.T) {
	data := `
title: Billing
businessObjective: Charge customers
userStories:
  - As an admin I want invoices
  - story: As a customer I want receipts
    value: Trust
suggestedJiraTasks:
  tasks: [Build invoice PDF]
`
	doc, err := Parse([]byte(data), "req.yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.UserStories) != 2 || doc.UserStories[0].Story != "As an admin I want invoices" || doc.UserStories[1].Value != "Trust" {
		t.Errorf("unexpected stories %+v", doc.UserStories)
	}
	reqs, b := Plan(doc, "P", quiet())
	if b.Total != 1 || reqs[0].Summary != "Build invoice PDF" {
		t.Errorf("unexpected plan %+v", reqs)
	}
}

func TestParseRejectsIncompleteDocuments(t *testing.T) {
	cases := map[string]string{
		"missing tasks":    `{"title": "t", "businessObjective": "o"}`,
		"missing title":    `{"businessObjective": "o", "suggestedJiraTasks": {}}`,
		"tasks not object": `{"title": "t", "businessObjective": "o", "suggestedJiraTasks": []}`,
		"not json":         `title: t`,
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data), "doc.json"); !apperr.IsKind(err, apperr.Validation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

type fakeCreator struct {
	n int
}

func (f *fakeCreator) Create(ctx context.Context, req protocol.TicketRequest) (string, error) {
	if strings.Contains(req.Summary, "fail") {
		return "", errors.New("jira status=400")
	}
	f.n++
	return "P-" + string(rune('0'+f.n)), nil
}

func TestFileRecordsEachItem(t *testing.T) {
	reqs := []protocol.TicketRequest{
		{Summary: "one", IssueType: protocol.IssueStory},
		{Summary: "fail me"},
		{Summary: "two"},
	}
	res := File(context.Background(), &fakeCreator{}, reqs, Breakdown{Total: 3}, quiet())

	if !res.Success || res.Created != 2 || res.Failed != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.Items[0].Key != "P-1" || res.Items[0].Type != protocol.IssueStory {
		t.Errorf("unexpected first item %+v", res.Items[0])
	}
	if res.Items[1].Error == "" || res.Items[1].Type != protocol.IssueTask {
		t.Errorf("unexpected failed item %+v", res.Items[1])
	}

	none := File(context.Background(), &fakeCreator{}, []protocol.TicketRequest{{Summary: "fail"}}, Breakdown{}, quiet())
	if none.Success {
		t.Error("expected success=false when nothing was created")
	}
}
