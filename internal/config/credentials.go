package config

import (
	"strings"

	"github.com/sprintagent/sprintagent/internal/apperr"
)

// Overrides are per-request connection settings. Empty fields fall back to
// the configured defaults.
type Overrides struct {
	JiraServer   string `json:"jira_server,omitempty"`
	JiraUsername string `json:"jira_username,omitempty"`
	JiraAPIToken string `json:"jira_api_token,omitempty"`
	JiraProject  string `json:"jira_project,omitempty"`
	GitHubToken  string `json:"github_token,omitempty"`
	GitHubRepo   string `json:"github_repo,omitempty"`
}

// Credentials are the resolved connection settings for one run.
type Credentials struct {
	JiraServer   string
	JiraUsername string
	JiraAPIToken string
	ProjectKey   string
	GitHubToken  string
	GitHubRepo   string
}

// Credentials merges o over the configured defaults. It fails when no
// complete set of Jira credentials is available.
func (c *Config) Credentials(o Overrides) (Credentials, error) {
	creds := Credentials{
		JiraServer:   pick(o.JiraServer, c.Tracker.Server),
		JiraUsername: pick(o.JiraUsername, c.Tracker.Username),
		JiraAPIToken: pick(o.JiraAPIToken, c.Tracker.APIToken),
		ProjectKey:   pick(o.JiraProject, c.Tracker.ProjectKey),
		GitHubToken:  pick(o.GitHubToken, c.GitHub.Token),
		GitHubRepo:   pick(o.GitHubRepo, c.GitHub.Repo),
	}
	if creds.ProjectKey == "" {
		creds.ProjectKey = "TEST"
	}
	if creds.GitHubRepo == "" {
		creds.GitHubRepo = "owner/repo"
	}

	var missing []string
	if creds.JiraServer == "" {
		missing = append(missing, "jira_server")
	}
	if creds.JiraUsername == "" {
		missing = append(missing, "jira_username")
	}
	if creds.JiraAPIToken == "" {
		missing = append(missing, "jira_api_token")
	}
	if len(missing) > 0 {
		return Credentials{}, apperr.Configurationf("credentials", "missing Jira credentials: %s", strings.Join(missing, ", "))
	}
	return creds, nil
}

func pick(override, fallback string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return fallback
}
