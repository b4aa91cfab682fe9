package orchestrator

import (
	"reflect"
	"testing"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		reply string
		want  []Decision
	}{
		{"RequirementAgent,JiraAgent", []Decision{DecideRequirement, DecideJira}},
		{`"RequirementAgent, JiraAgent"`, []Decision{DecideRequirement, DecideJira}},
		{"jiraagent\nGitAgent.", []Decision{DecideJira, DecideGit}},
		{"`GitAgent`", []Decision{DecideGit}},
		{"END", []Decision{DecideEnd}},
		{"Planner", []Decision{DecideEnd}},
		{" , ,", []Decision{}},
		{"", []Decision{}},
	}
	for _, tt := range tests {
		got := ParsePlan(tt.reply)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParsePlan(%q): expected %v, got %v", tt.reply, tt.want, got)
		}
	}
}

func TestDecisionAgent(t *testing.T) {
	if DecideGit.Agent() != GitAgent || DecideEnd.Agent() != End {
		t.Error("unexpected decision mapping")
	}
	if DecideRequirement.String() != "RequirementAgent" {
		t.Errorf("unexpected name %s", DecideRequirement)
	}
}

func TestIssueKeys(t *testing.T) {
	got := IssueKeys("see PROJ-1, ab-2, PROJ-1 and X2-30; not PROJ-")
	want := []string{"PROJ-1", "X2-30"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPRNumbers(t *testing.T) {
	got := PRNumbers("PR 456, pull request #12, #7 and pr#456")
	want := []int{456, 12, 7}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPRNumberForKey(t *testing.T) {
	if n, err := PRNumberForKey("PROJ-123"); err != nil || n != 123 {
		t.Errorf("expected 123, got %d (%v)", n, err)
	}
	for _, bad := range []string{"ERROR: boom", "PROJ-", "nodash"} {
		if _, err := PRNumberForKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
