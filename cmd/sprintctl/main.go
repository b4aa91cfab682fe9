package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sprintagent/sprintagent/internal/config"
	"github.com/sprintagent/sprintagent/internal/decompose"
	"github.com/sprintagent/sprintagent/internal/provider"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "decompose":
		cmdDecompose(os.Args[2:])
	case "health":
		cmdHealth()
	case "process":
		cmdProcess(os.Args[2:])
	case "requirements":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: sprintctl requirements <file>")
			os.Exit(1)
		}
		cmdRequirements(os.Args[2], os.Args[3:])
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: sprintctl tickets <list|show|history>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show", "history":
			if len(os.Args) < 4 {
				fmt.Fprintf(os.Stderr, "usage: sprintctl tickets %s <key>\n", os.Args[2])
				os.Exit(1)
			}
			if os.Args[2] == "show" {
				cmdTicketsShow(os.Args[3])
			} else {
				cmdTicketsHistory(os.Args[3])
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "runs":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: sprintctl runs <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdRunsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: sprintctl runs show <id>")
				os.Exit(1)
			}
			cmdRunsShow(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown runs subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "sweep":
		exitOnErr(printBody(apiDo(http.MethodPost, "/api/prs/sweep", "", nil)))
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: sprintctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- decompose command (local, nothing is filed) ---

func cmdDecompose(args []string) {
	fs := flag.NewFlagSet("decompose", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default: environment)")
	consolidate := fs.Bool("consolidate", true, "Group tasks into tickets")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: API key required (OPENAI_API_KEY or ANTHROPIC_API_KEY)")
		os.Exit(1)
	}

	d := decompose.New(newProvider(cfg.LLM, logger),
		decompose.WithModel(cfg.LLM.Model),
		decompose.WithMaxTasks(cfg.Orchestrator.MaxTasks),
		decompose.WithLogger(logger),
	)
	ctx := context.Background()

	plan := func(text string) {
		tasks := d.Decompose(ctx, text)
		if len(tasks) == 0 {
			fmt.Println("no tasks found")
			return
		}
		fmt.Printf("Tasks (%d):\n", len(tasks))
		for i, t := range tasks {
			fmt.Printf("  %d. %s\n", i+1, t)
		}
		if !*consolidate {
			return
		}
		fmt.Println()
		for _, t := range d.Consolidate(ctx, tasks, text) {
			fmt.Printf("[%s] %s\n", t.Priority, t.Title)
			for _, o := range t.OriginalTasks {
				fmt.Printf("    - %s\n", o)
			}
		}
	}

	if fs.NArg() > 0 {
		plan(strings.Join(fs.Args(), " "))
		return
	}

	fmt.Println("sprintctl decompose (type 'quit' to exit)")
	fmt.Printf("Model: %s | Max tasks: %d\n\n", cfg.LLM.Model, d.MaxTasks())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		plan(line)
		fmt.Println()
	}
}

// newProvider builds the configured model client.
func newProvider(c config.LLMConfig, logger *slog.Logger) provider.Provider {
	var inner provider.Provider
	switch c.Provider {
	case "anthropic":
		opts := []provider.AnthropicOption{}
		if c.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(c.Model))
		}
		if c.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(c.BaseURL))
		}
		inner = provider.NewAnthropic(c.APIKey, opts...)
	default:
		opts := []provider.OpenAIOption{}
		if c.Model != "" {
			opts = append(opts, provider.WithModel(c.Model))
		}
		if c.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(c.BaseURL))
		}
		inner = provider.NewOpenAI(c.APIKey, opts...)
	}
	return provider.NewRetrying(inner, provider.WithRetryLogger(logger))
}

// --- API client commands ---

func cmdHealth() {
	exitOnErr(printBody(apiDo(http.MethodGet, "/api/health", "", nil)))
}

func cmdProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	project := fs.String("project", "", "Jira project key override")
	repo := fs.String("repo", "", "GitHub repository override (owner/name)")
	fs.Parse(args)

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: sprintctl process [--project KEY] [--repo owner/name] <requirement>")
		os.Exit(1)
	}
	payload, _ := json.Marshal(map[string]string{
		"requirement":  text,
		"jira_project": *project,
		"github_repo":  *repo,
	})
	body, err := apiDo(http.MethodPost, "/api/process", "application/json", payload)
	exitOnErr(err)

	var resp struct {
		Success  bool     `json:"success"`
		Message  string   `json:"message"`
		JiraKeys []string `json:"jira_keys"`
	}
	if json.Unmarshal(body, &resp) != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(resp.Message)
	if len(resp.JiraKeys) > 0 {
		fmt.Printf("\nTickets: %s\n", strings.Join(resp.JiraKeys, ", "))
	}
	if !resp.Success {
		os.Exit(2)
	}
}

func cmdRequirements(path string, args []string) {
	fs := flag.NewFlagSet("requirements", flag.ExitOnError)
	project := fs.String("project", "", "Jira project key override")
	fs.Parse(args)

	data, err := os.ReadFile(path)
	exitOnErr(err)

	q := url.Values{}
	if *project != "" {
		q.Set("project", *project)
	}
	contentType := "application/json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		contentType = "application/x-yaml"
	}
	target := "/api/requirements"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	exitOnErr(printBody(apiDo(http.MethodPost, target, contentType, data)))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	project := fs.String("project", "", "Project key (default: configured project)")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?max_results=%d", *limit)
	if *project != "" {
		query += "&project=" + url.QueryEscape(*project)
	}

	body, err := apiDo(http.MethodGet, "/api/tickets"+query, "", nil)
	exitOnErr(err)
	var list struct {
		Tickets []map[string]any `json:"tickets"`
	}
	json.Unmarshal(body, &list)
	for _, t := range list.Tickets {
		fmt.Printf("%-12s %-14s %s\n", t["key"], t["status"], t["summary"])
	}
}

func cmdTicketsShow(key string) {
	exitOnErr(printBody(apiDo(http.MethodGet, "/api/tickets/"+url.PathEscape(key), "", nil)))
}

func cmdTicketsHistory(key string) {
	exitOnErr(printBody(apiDo(http.MethodGet, "/api/tickets/"+url.PathEscape(key)+"/history", "", nil)))
}

func cmdRunsList(args []string) {
	fs := flag.NewFlagSet("runs list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Max results")
	fs.Parse(args)

	body, err := apiDo(http.MethodGet, fmt.Sprintf("/api/runs?limit=%d", *limit), "", nil)
	exitOnErr(err)
	var runs []map[string]any
	json.Unmarshal(body, &runs)
	for _, r := range runs {
		state := "ok"
		if r["success"] != true {
			state = "failed"
		}
		fmt.Printf("%-38s %-7s %-20s %v\n", r["id"], state, r["source"], r["jira_keys"])
	}
}

func cmdRunsShow(id string) {
	exitOnErr(printBody(apiDo(http.MethodGet, "/api/runs/"+url.PathEscape(id), "", nil)))
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiDo(method, path, contentType string, payload []byte) ([]byte, error) {
	base := envOr("SPRINTAGENT_API_URL", "http://localhost:8000")

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if key := os.Getenv("SPRINTAGENT_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	// runs call the model several times
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func printBody(body []byte, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(body))
	return nil
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("sprintctl: sprint agent CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  decompose [text]          Break a requirement into tasks locally (REPL without text)")
	fmt.Println("  health                    Check daemon health")
	fmt.Println("  process <text>            File tickets for a requirement (--project, --repo)")
	fmt.Println("  requirements <file>       File tickets from a JSON/YAML requirements document")
	fmt.Println("  tickets list              List project tickets (--project, --limit)")
	fmt.Println("  tickets show <key>        Show ticket details")
	fmt.Println("  tickets history <key>     Show ticket change history")
	fmt.Println("  runs list                 List recent runs (--limit)")
	fmt.Println("  runs show <id>            Show a run and its tickets")
	fmt.Println("  sweep                     Check pull requests of recorded tickets now")
	fmt.Println("  config validate <path>    Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SPRINTAGENT_API_URL  Daemon URL (default: http://localhost:8000)")
	fmt.Println("  SPRINTAGENT_API_KEY  API key for authentication")
	fmt.Println("  LLM_PROVIDER         openai (default) or anthropic, for decompose")
	fmt.Println("  OPENAI_API_KEY       API key for OpenAI provider")
	fmt.Println("  ANTHROPIC_API_KEY    API key for Anthropic provider")
}
