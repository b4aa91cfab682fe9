package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Component states reported by Health.
const (
	StatusOK            = "ok"
	StatusNotConfigured = "not configured"
	StatusSet           = "set"
	StatusNotSet        = "not set"
	failedPrefix        = "failed"
)

// HealthReport is the service's view of its dependencies.
type HealthReport struct {
	Status     string            `json:"status"`
	Message    string            `json:"message"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Health checks each component. The overall status is "degraded" when any
// component failed and "healthy" otherwise; components that are only
// unconfigured do not degrade it.
func (s *Service) Health(ctx context.Context) *HealthReport {
	c := map[string]string{}

	if s.llm == nil || s.cfg.LLM.APIKey == "" {
		c["llm"] = failedPrefix + ": api key not set"
	} else {
		c["llm"] = StatusOK + " (" + s.llm.Name() + ")"
	}

	if _, err := s.defaults(); err != nil {
		c["tracker"] = StatusNotConfigured
	} else {
		c["tracker"] = StatusOK
	}

	if s.store == nil {
		c["run_store"] = StatusNotConfigured
	} else {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := s.store.Ping(pctx)
		cancel()
		if err != nil {
			c["run_store"] = failedPrefix + ": " + err.Error()
		} else {
			c["run_store"] = StatusOK
		}
	}

	switch {
	case s.sched == nil:
		c["scheduler"] = StatusNotConfigured
	case s.sched.Running():
		c["scheduler"] = fmt.Sprintf("%s (%d jobs)", StatusOK, s.sched.JobCount())
	default:
		c["scheduler"] = "stopped"
	}

	for _, v := range s.envVars() {
		if os.Getenv(v) != "" {
			c["env_"+strings.ToLower(v)] = StatusSet
		} else {
			c["env_"+strings.ToLower(v)] = StatusNotSet
		}
	}

	var failed []string
	for k, v := range c {
		if strings.HasPrefix(v, failedPrefix) {
			failed = append(failed, k)
		}
	}
	sort.Strings(failed)

	r := &HealthReport{Status: "healthy", Message: "All systems operational", Components: c, Timestamp: s.now().UTC()}
	if len(failed) > 0 {
		r.Status = "degraded"
		r.Message = "Some components failed: " + strings.Join(failed, ", ")
	}
	return r
}

func (s *Service) envVars() []string {
	key := "OPENAI_API_KEY"
	if s.cfg.LLM.Provider == "anthropic" {
		key = "ANTHROPIC_API_KEY"
	}
	return []string{key, "JIRA_SERVER", "JIRA_USERNAME", "JIRA_API_TOKEN"}
}
