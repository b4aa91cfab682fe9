package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sprintagent/sprintagent/internal/apperr"
)

// Config is the top-level sprintagent configuration.
type Config struct {
	DataDir      string             `json:"data_dir" yaml:"data_dir"`
	Tracker      TrackerConfig      `json:"tracker" yaml:"tracker"`
	GitHub       GitHubConfig       `json:"github" yaml:"github"`
	LLM          LLMConfig          `json:"llm" yaml:"llm"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `json:"scheduler" yaml:"scheduler"`
	Connectors   ConnectorConfig    `json:"connectors" yaml:"connectors"`
	Redis        *RedisConfig       `json:"redis,omitempty" yaml:"redis,omitempty"`
	API          APIConfig          `json:"api" yaml:"api"`
}

// TrackerConfig holds the default Jira connection. Requests may override it.
type TrackerConfig struct {
	Server     string `json:"server" yaml:"server"`
	Username   string `json:"username" yaml:"username"`
	APIToken   string `json:"api_token" yaml:"api_token"`
	ProjectKey string `json:"project_key" yaml:"project_key"`
}

// GitHubConfig holds the default pull request source.
type GitHubConfig struct {
	Token   string `json:"token" yaml:"token"`
	Repo    string `json:"repo" yaml:"repo"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// LLMConfig holds model provider settings.
type LLMConfig struct {
	Provider      string  `json:"provider" yaml:"provider"` // "openai" (default) or "anthropic"
	APIKey        string  `json:"api_key" yaml:"api_key"`
	BaseURL       string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model         string  `json:"model" yaml:"model"`
	FallbackModel string  `json:"fallback_model,omitempty" yaml:"fallback_model,omitempty"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
}

// OrchestratorConfig tunes how requirements become tickets.
type OrchestratorConfig struct {
	MaxTasks    int   `json:"max_tasks" yaml:"max_tasks"`
	Consolidate *bool `json:"consolidate,omitempty" yaml:"consolidate,omitempty"`
}

// ConsolidateEnabled reports whether tasks are merged before creation.
// Defaults to true.
func (o OrchestratorConfig) ConsolidateEnabled() bool {
	return o.Consolidate == nil || *o.Consolidate
}

// SchedulerConfig holds background job schedules. An empty schedule
// disables the job.
type SchedulerConfig struct {
	PRSweep string `json:"pr_sweep" yaml:"pr_sweep"`
}

// ConnectorConfig holds settings for chat and webhook intake.
type ConnectorConfig struct {
	Slack    *SlackConfig               `json:"slack,omitempty" yaml:"slack,omitempty"`
	Telegram *TelegramConfig            `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	Webhooks map[string]WebhookEndpoint `json:"webhooks,omitempty" yaml:"webhooks,omitempty"`
}

// SlackConfig holds Slack socket-mode settings.
type SlackConfig struct {
	BotToken string   `json:"bot_token" yaml:"bot_token"`
	AppToken string   `json:"app_token" yaml:"app_token"`
	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token" yaml:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty" yaml:"allow_from,omitempty"`
}

// WebhookEndpoint authenticates one /api/webhook/{name} endpoint.
type WebhookEndpoint struct {
	Secret      string `json:"secret,omitempty" yaml:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
}

// RedisConfig enables event publishing.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
	Channel  string `json:"channel" yaml:"channel"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	Key            string `json:"api_key" yaml:"api_key"`
	TimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// RequestTimeout is the per-request deadline applied by the API.
func (a APIConfig) RequestTimeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Load reads configuration from a JSON or YAML file (chosen by extension),
// fills defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables, reading a .env
// file first when one exists.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir: getenv("DATA_DIR", "./data"),
		Tracker: TrackerConfig{
			Server:     os.Getenv("JIRA_SERVER"),
			Username:   os.Getenv("JIRA_USERNAME"),
			APIToken:   os.Getenv("JIRA_API_TOKEN"),
			ProjectKey: getenv("JIRA_PROJECT_KEY", "TEST"),
		},
		GitHub: GitHubConfig{
			Token:   os.Getenv("GITHUB_TOKEN"),
			Repo:    getenv("GITHUB_REPO", "owner/repo"),
			BaseURL: os.Getenv("GITHUB_API_URL"),
		},
		LLM: LLMConfig{
			Provider:      getenv("LLM_PROVIDER", "openai"),
			FallbackModel: os.Getenv("LLM_FALLBACK_MODEL"),
			Temperature:   getenvFloat("OPENAI_TEMPERATURE", 0.1),
		},
		Orchestrator: OrchestratorConfig{
			MaxTasks: getenvInt("MAX_TASKS", 8),
		},
		Scheduler: SchedulerConfig{
			PRSweep: getenv("PR_SWEEP_SCHEDULE", "@every 30m"),
		},
		API: APIConfig{
			Host:           getenv("HOST", "0.0.0.0"),
			Port:           getenvInt("PORT", 8000),
			Key:            os.Getenv("API_KEY"),
			TimeoutSeconds: getenvInt("REQUEST_TIMEOUT_SECONDS", 300),
		},
	}
	if v, ok := os.LookupEnv("PR_SWEEP_SCHEDULE"); ok && v == "" {
		cfg.Scheduler.PRSweep = ""
	}
	if v := os.Getenv("CONSOLIDATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: CONSOLIDATE: %w", err)
		}
		cfg.Orchestrator.Consolidate = &b
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "anthropic":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		cfg.LLM.BaseURL = os.Getenv("ANTHROPIC_BASE_URL")
		cfg.LLM.Model = os.Getenv("ANTHROPIC_MODEL")
	default:
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.LLM.BaseURL = os.Getenv("OPENAI_BASE_URL")
		cfg.LLM.Model = getenv("OPENAI_MODEL", "gpt-4")
	}

	if bot := os.Getenv("SLACK_BOT_TOKEN"); bot != "" {
		cfg.Connectors.Slack = &SlackConfig{
			BotToken: bot,
			AppToken: os.Getenv("SLACK_APP_TOKEN"),
			Channels: splitList(os.Getenv("SLACK_CHANNELS")),
		}
	}

	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
		if ids := os.Getenv("TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: TELEGRAM_ALLOW_FROM: %w", err)
			}
			cfg.Connectors.Telegram.AllowFrom = parsed
		}
	}

	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		cfg.Connectors.Webhooks = map[string]WebhookEndpoint{
			"default": {Secret: secret},
		}
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis = &RedisConfig{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvInt("REDIS_DB", 0),
			Channel:  os.Getenv("REDIS_CHANNEL"),
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Tracker.ProjectKey == "" {
		c.Tracker.ProjectKey = "TEST"
	}
	if c.GitHub.Repo == "" {
		c.GitHub.Repo = "owner/repo"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" && c.LLM.Provider == "openai" {
		c.LLM.Model = "gpt-4"
	}
	if c.Orchestrator.MaxTasks == 0 {
		c.Orchestrator.MaxTasks = 8
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8000
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 300
	}
	if c.Redis != nil && c.Redis.Channel == "" {
		c.Redis.Channel = "sprintagent.events"
	}
}

// Validate checks for required fields. Tracker credentials are optional
// here because each request may supply its own.
func (c *Config) Validate() error {
	var errs []string

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "llm.api_key is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}

	if c.Tracker.Server != "" {
		if u, err := url.Parse(c.Tracker.Server); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, "tracker.server must be an http(s) URL")
		}
	}
	if c.Orchestrator.MaxTasks < 1 {
		errs = append(errs, "orchestrator.max_tasks must be positive")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if s := c.Connectors.Slack; s != nil {
		if s.BotToken == "" {
			errs = append(errs, "connectors.slack.bot_token is required")
		}
		if s.AppToken == "" {
			errs = append(errs, "connectors.slack.app_token is required")
		}
	}
	if c.Connectors.Telegram != nil && c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}

	if len(errs) > 0 {
		return &apperr.Error{
			Kind: apperr.Configuration,
			Msg:  fmt.Sprintf("config validation failed:\n  - %s", strings.Join(errs, "\n  - ")),
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
