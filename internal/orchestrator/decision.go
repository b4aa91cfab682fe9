// Package orchestrator runs a request through the planning agents. An
// entry agent asks the model for an ordered plan and the machine then
// executes one agent per plan step until the plan is exhausted or END is
// reached.
package orchestrator

import (
	"strings"
)

// AgentName identifies a state of the machine.
type AgentName string

const (
	SprintAgent      AgentName = "SprintAgent"
	RequirementAgent AgentName = "RequirementAgent"
	JiraAgent        AgentName = "JiraAgent"
	GitAgent         AgentName = "GitAgent"
	End              AgentName = "END"
)

// Decision is one step of a plan.
type Decision int

const (
	DecideEnd Decision = iota
	DecideRequirement
	DecideJira
	DecideGit
)

// Agent returns the state a decision leads to.
func (d Decision) Agent() AgentName {
	switch d {
	case DecideRequirement:
		return RequirementAgent
	case DecideJira:
		return JiraAgent
	case DecideGit:
		return GitAgent
	default:
		return End
	}
}

func (d Decision) String() string { return string(d.Agent()) }

// ParsePlan reads the router's reply. Tokens are separated by commas or
// newlines; anything that is not a known agent name maps to DecideEnd.
func ParsePlan(reply string) []Decision {
	fields := strings.FieldsFunc(reply, func(r rune) bool { return r == ',' || r == '\n' })
	plan := make([]Decision, 0, len(fields))
	for _, f := range fields {
		tok := strings.Trim(f, " \t\r\"'`.")
		if tok == "" {
			continue
		}
		plan = append(plan, parseDecision(tok))
	}
	return plan
}

func parseDecision(tok string) Decision {
	switch {
	case strings.EqualFold(tok, string(RequirementAgent)):
		return DecideRequirement
	case strings.EqualFold(tok, string(JiraAgent)):
		return DecideJira
	case strings.EqualFold(tok, string(GitAgent)):
		return DecideGit
	default:
		return DecideEnd
	}
}

func planString(plan []Decision) string {
	names := make([]string, len(plan))
	for i, d := range plan {
		names[i] = d.String()
	}
	return strings.Join(names, ", ")
}
