package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

func intPtr(v int) *int { return &v }

func TestCreateAndGetRoundTrip(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()
	ctx := context.Background()

	req := protocol.TicketRequest{
		Summary:     "Add login form",
		Description: "Users need to sign in",
		ProjectKey:  "PROJ",
		IssueType:   protocol.IssueStory,
		Priority:    protocol.PriorityHigh,
		Assignee:    "alice",
		Labels:      []string{"auth", "frontend"},
		Components:  []string{"web"},
		StoryPoints: intPtr(5),
		StartDate:   "2025-01-06",
		DueDate:     "2025-01-20",
		EpicLink:    "PROJ-100",
	}
	key, err := c.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key != "PROJ-1" {
		t.Errorf("expected key PROJ-1, got %s", key)
	}

	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != req.Summary || got.Description != req.Description {
		t.Errorf("text fields not preserved: %+v", got)
	}
	if got.Priority != "High" {
		t.Errorf("expected priority High, got %s", got.Priority)
	}
	if got.IssueType != "Story" {
		t.Errorf("expected type Story, got %s", got.IssueType)
	}
	if got.Status != "To Do" {
		t.Errorf("expected status To Do, got %s", got.Status)
	}
	if got.Assignee != "alice" {
		t.Errorf("expected assignee alice, got %s", got.Assignee)
	}
	if got.Reporter != "Sprint Bot" {
		t.Errorf("expected reporter Sprint Bot, got %s", got.Reporter)
	}
	if strings.Join(got.Labels, ",") != "auth,frontend" {
		t.Errorf("unexpected labels %v", got.Labels)
	}
	if len(got.Components) != 1 || got.Components[0] != "web" {
		t.Errorf("unexpected components %v", got.Components)
	}
	if got.StoryPoints == nil || *got.StoryPoints != 5 {
		t.Errorf("expected 5 story points, got %v", got.StoryPoints)
	}
	if got.StartDate != "2025-01-06" {
		t.Errorf("expected start date 2025-01-06, got %s", got.StartDate)
	}
	if got.DueDate != "2025-01-20" {
		t.Errorf("expected due date 2025-01-20, got %s", got.DueDate)
	}
	if got.EpicLink != "PROJ-100" {
		t.Errorf("expected epic link PROJ-100, got %s", got.EpicLink)
	}
	if got.StatusDuration != "1 hours" {
		t.Errorf("expected status duration 1 hours, got %s", got.StatusDuration)
	}
}

func TestCreateUsesDiscoveredFieldIDs(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()

	_, err := c.Create(context.Background(), protocol.TicketRequest{
		Summary: "s", Description: "d", ProjectKey: "PROJ",
		StoryPoints: intPtr(3), StartDate: "2025-02-01", EpicLink: "PROJ-9",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sent := f.creates[0]
	for _, id := range []string{"customfield_10026", "customfield_10015", "customfield_10014"} {
		if _, ok := sent[id]; !ok {
			t.Errorf("expected %s in payload, got %v", id, sent)
		}
	}
	if _, ok := sent["customfield_10016"]; ok {
		t.Error("default story points id should not be used when the catalog has one")
	}
}

func TestCreateEpicOmitsPriority(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()

	_, err := c.Create(context.Background(), protocol.TicketRequest{
		Summary: "Epic: Checkout", Description: "d", ProjectKey: "PROJ",
		IssueType: protocol.IssueEpic, Priority: protocol.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := f.creates[0]["priority"]; ok {
		t.Errorf("epic payload should not carry a priority: %v", f.creates[0])
	}
}

func TestCreateParentOnlyForSubtasks(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()
	ctx := context.Background()

	if _, err := c.Create(ctx, protocol.TicketRequest{
		Summary: "task", Description: "d", ProjectKey: "PROJ", ParentKey: "PROJ-7",
	}); err != nil {
		t.Fatalf("Create task: %v", err)
	}
	if _, ok := f.creates[0]["parent"]; ok {
		t.Error("task payload should not carry a parent")
	}

	if _, err := c.Create(ctx, protocol.TicketRequest{
		Summary: "sub", Description: "d", ProjectKey: "PROJ",
		IssueType: protocol.IssueSubtask, ParentKey: "PROJ-7",
	}); err != nil {
		t.Fatalf("Create subtask: %v", err)
	}
	parent, ok := f.creates[1]["parent"].(map[string]any)
	if !ok || parent["key"] != "PROJ-7" {
		t.Errorf("expected parent PROJ-7, got %v", f.creates[1]["parent"])
	}
}

func TestCreateSubtaskAliasWithoutParentSendsNothing(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()

	for _, typ := range []protocol.IssueType{"subtask", "Sub-task"} {
		_, err := c.Create(context.Background(), protocol.TicketRequest{
			Summary: "sub", Description: "d", ProjectKey: "PROJ", IssueType: typ,
		})
		if !apperr.IsKind(err, apperr.Validation) {
			t.Errorf("%q: expected validation error, got %v", typ, err)
		}
	}
	if len(f.creates) != 0 {
		t.Errorf("expected no create calls, got %d", len(f.creates))
	}
}

func TestCreateInvalidRequestSendsNothing(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()

	_, err := c.Create(context.Background(), protocol.TicketRequest{
		Summary: "sub", Description: "d", ProjectKey: "PROJ", IssueType: protocol.IssueSubtask,
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.creates) != 0 {
		t.Errorf("expected no create calls, got %d", len(f.creates))
	}
}

func TestCreateRejectedIsCreationError(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()

	_, err := c.Create(context.Background(), protocol.TicketRequest{
		Summary: "fail", Description: "d", ProjectKey: "PROJ",
	})
	if !apperr.IsKind(err, apperr.Creation) {
		t.Fatalf("expected creation error, got %v", err)
	}
	if StatusOf(err) != 400 {
		t.Errorf("expected status 400 to be preserved, got %d", StatusOf(err))
	}
	if !strings.Contains(err.Error(), "jira status=400") {
		t.Errorf("expected status in message, got %q", err.Error())
	}
}

func TestCreateComplexRecordsSubtaskFailures(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()

	res, err := c.CreateComplex(context.Background(), protocol.ComplexTicketRequest{
		Parent: protocol.TicketRequest{Summary: "Parent", Description: "d", ProjectKey: "PROJ"},
		Subtasks: []protocol.TicketRequest{
			{Summary: "first", Description: "d"},
			{Summary: "fail", Description: "d"},
			{Summary: "third", Description: "d"},
		},
	})
	if err != nil {
		t.Fatalf("CreateComplex: %v", err)
	}
	if res.ParentKey != "PROJ-1" {
		t.Errorf("expected parent PROJ-1, got %s", res.ParentKey)
	}
	if len(res.Created) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(res.Created))
	}
	if res.Created[1].Key != "PROJ-2" || res.Created[3].Key != "PROJ-3" {
		t.Errorf("unexpected subtask keys: %+v", res.Created)
	}
	if res.Created[2].Error == "" || res.Created[2].Key != "" {
		t.Errorf("expected failed subtask to carry an error: %+v", res.Created[2])
	}
	sub := f.creates[1]
	if p, _ := sub["parent"].(map[string]any); p["key"] != "PROJ-1" {
		t.Errorf("subtask should point at the parent, got %v", sub["parent"])
	}
}

func TestCreateComplexParentFailureAborts(t *testing.T) {
	f := newFakeJira(t)
	c := f.client()

	_, err := c.CreateComplex(context.Background(), protocol.ComplexTicketRequest{
		Parent:   protocol.TicketRequest{Summary: "fail", Description: "d", ProjectKey: "PROJ"},
		Subtasks: []protocol.TicketRequest{{Summary: "child", Description: "d"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.creates) != 1 {
		t.Errorf("expected only the parent attempt, got %d", len(f.creates))
	}
}

func TestMissingCredentials(t *testing.T) {
	c := New("http://jira.invalid", "", "")
	_, err := c.Get(context.Background(), "PROJ-1")
	if err == nil || !strings.Contains(err.Error(), "missing Jira credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
	if !errors.Is(err, &apperr.Error{Kind: apperr.Transport}) {
		t.Errorf("expected transport kind, got %v", apperr.KindOf(err))
	}
}
