package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	apiPkg "github.com/sprintagent/sprintagent/internal/api"
	"github.com/sprintagent/sprintagent/internal/app"
	"github.com/sprintagent/sprintagent/internal/config"
	"github.com/sprintagent/sprintagent/internal/connector"
	slackconn "github.com/sprintagent/sprintagent/internal/connector/slack"
	"github.com/sprintagent/sprintagent/internal/connector/telegram"
	"github.com/sprintagent/sprintagent/internal/connector/webhook"
	"github.com/sprintagent/sprintagent/internal/logbuf"
	"github.com/sprintagent/sprintagent/internal/notify"
	"github.com/sprintagent/sprintagent/internal/provider"
	"github.com/sprintagent/sprintagent/internal/runstore"
	"github.com/sprintagent/sprintagent/internal/scheduler"
	"github.com/sprintagent/sprintagent/internal/scm"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON or YAML)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("sprintagentd starting",
		"llm", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"project", cfg.Tracker.ProjectKey,
		"repo", cfg.GitHub.Repo,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Model provider
	llm := newProvider(cfg.LLM, logger)
	logger.Info("provider initialized", "name", llm.Name(), "model", cfg.LLM.Model)

	// 2. Pull request lookups
	var scmOpts []scm.Option
	if cfg.GitHub.BaseURL != "" {
		scmOpts = append(scmOpts, scm.WithBaseURL(cfg.GitHub.BaseURL))
	}
	prs := scm.New(scmOpts...)

	// 3. Run store
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.DataDir, "sprintagent.db")
	store, err := runstore.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open run store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 4. Event publishing
	var pub notify.Publisher = notify.Nop{}
	if cfg.Redis != nil {
		pub = notify.NewRedis(*cfg.Redis, logger)
		logger.Info("publishing events to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}
	defer pub.Close()

	// 5. Service + background jobs
	sched := scheduler.New(logger)
	svc := app.New(cfg, llm, prs,
		app.WithStore(store),
		app.WithPublisher(pub),
		app.WithScheduler(sched),
		app.WithLogger(logger),
	)
	if err := svc.RegisterJobs(); err != nil {
		logger.Error("failed to register jobs", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 6. Connectors
	if c := cfg.Connectors.Slack; c != nil {
		conn, err := slackconn.New(slackconn.Config{
			BotToken: c.BotToken,
			AppToken: c.AppToken,
			Channels: c.Channels,
		}, svc.HandleInbound, logger)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		startConnector(ctx, logger, conn)
	}
	if c := cfg.Connectors.Telegram; c != nil {
		conn, err := telegram.New(telegram.Config{
			Token:     c.Token,
			AllowFrom: c.AllowFrom,
		}, svc.HandleInbound, logger)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		startConnector(ctx, logger, conn)
	}

	var hook http.Handler
	if len(cfg.Connectors.Webhooks) > 0 {
		hook = webhook.New(webhook.Config{Endpoints: cfg.Connectors.Webhooks},
			func(ctx context.Context, req webhook.Request) (any, error) {
				return svc.HandleWebhook(ctx, req)
			}, logger)
		logger.Info("webhook endpoints enabled", "count", len(cfg.Connectors.Webhooks))
	}

	// 7. API server
	apiCfg := apiPkg.Config{
		Host:    cfg.API.Host,
		Port:    cfg.API.Port,
		Key:     cfg.API.Key,
		Timeout: cfg.API.RequestTimeout(),
	}
	apiSrv := apiPkg.NewServer(svc, apiCfg, logger, logBuf, hook)
	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server stopped", "error", err)
			stop()
		}
	})

	// 8. Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")
	logger.Info("sprintagentd stopped")
}

// newProvider builds the configured model client with retries.
func newProvider(c config.LLMConfig, logger *slog.Logger) provider.Provider {
	var inner provider.Provider
	switch c.Provider {
	case "anthropic":
		var opts []provider.AnthropicOption
		if c.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(c.BaseURL))
		}
		if c.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(c.Model))
		}
		inner = provider.NewAnthropic(c.APIKey, opts...)
	default: // "openai"
		var opts []provider.OpenAIOption
		if c.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(c.BaseURL))
		}
		if c.Model != "" {
			opts = append(opts, provider.WithModel(c.Model))
		}
		inner = provider.NewOpenAI(c.APIKey, opts...)
	}

	retryOpts := []provider.RetryOption{provider.WithRetryLogger(logger)}
	if c.FallbackModel != "" {
		retryOpts = append(retryOpts, provider.WithFallbackModel(c.FallbackModel))
	}
	return provider.NewRetrying(inner, retryOpts...)
}

func startConnector(ctx context.Context, logger *slog.Logger, c connector.Connector) {
	go safeGo(logger, c.Name(), func() {
		if err := c.Start(ctx); err != nil {
			logger.Error("connector stopped", "connector", c.Name(), "error", err)
		}
	})
	logger.Info("connector started", "connector", c.Name())
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
