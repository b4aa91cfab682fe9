package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/internal/config"
	"github.com/sprintagent/sprintagent/internal/connector"
	"github.com/sprintagent/sprintagent/internal/connector/webhook"
	"github.com/sprintagent/sprintagent/internal/intake"
	"github.com/sprintagent/sprintagent/internal/notify"
	"github.com/sprintagent/sprintagent/internal/orchestrator"
	"github.com/sprintagent/sprintagent/internal/runstore"
)

// ProcessRequest is a natural-language request with optional connection
// overrides.
type ProcessRequest struct {
	Requirement string `json:"requirement"`
	config.Overrides
}

func newRunID() string { return uuid.NewString() }

// Process runs a request through the orchestrator. Only missing input or
// missing Jira credentials fail the call; agent failures are reported in
// the response logs.
func (s *Service) Process(ctx context.Context, req ProcessRequest, source string) (*orchestrator.Response, error) {
	text := strings.TrimSpace(req.Requirement)
	if text == "" {
		return nil, apperr.Validationf("app.process", "requirement is required")
	}
	creds, err := s.cfg.Credentials(req.Overrides)
	if err != nil {
		return nil, err
	}

	runID := s.newID()
	started := s.now()
	s.logger.Info("processing request", "run_id", runID, "source", source, "preview", preview(text, 100))

	resp := s.machine.Run(ctx, runID, text, creds)

	run := &runstore.Run{
		ID:         runID,
		Source:     source,
		Input:      text,
		ProjectKey: creds.ProjectKey,
		Success:    resp.Success,
		Message:    resp.Message,
		Tasks:      resp.Tasks,
		Keys:       resp.JiraKeys,
		Logs:       resp.Logs,
		CreatedAt:  started,
		FinishedAt: s.now(),
	}
	var created []runstore.TicketRecord
	for _, c := range resp.Created {
		if c.Key != "" {
			created = append(created, runstore.TicketRecord{Key: c.Key, Summary: c.Summary})
		}
	}
	s.finish(ctx, run, creds, created, resp.Summary.TicketsCreated)
	return resp, nil
}

// ProcessRequirements files the tickets described by a structured
// requirements document (JSON or YAML, chosen by name's extension).
func (s *Service) ProcessRequirements(ctx context.Context, data []byte, name string, o config.Overrides) (*intake.BatchResult, error) {
	doc, err := intake.Parse(data, name)
	if err != nil {
		return nil, err
	}
	creds, err := s.cfg.Credentials(o)
	if err != nil {
		return nil, err
	}

	runID := s.newID()
	started := s.now()
	reqs, breakdown := intake.Plan(doc, creds.ProjectKey, s.logger)
	s.logger.Info("filing requirements document", "run_id", runID, "title", doc.Title, "tickets", breakdown.Total)

	res := intake.File(ctx, s.clients(creds), reqs, breakdown, s.logger)

	run := &runstore.Run{
		ID:         runID,
		Source:     "intake",
		Input:      doc.Title,
		ProjectKey: creds.ProjectKey,
		Success:    res.Success,
		Message:    fmt.Sprintf("Created %d of %d tickets", res.Created, breakdown.Total),
		Keys:       []string{},
		CreatedAt:  started,
		FinishedAt: s.now(),
	}
	var created []runstore.TicketRecord
	for _, it := range res.Items {
		run.Tasks = append(run.Tasks, it.Summary)
		if it.Key != "" {
			run.Keys = append(run.Keys, it.Key)
			created = append(created, runstore.TicketRecord{Key: it.Key, Summary: it.Summary})
		} else {
			run.Keys = append(run.Keys, orchestrator.ErrorKeyPrefix+it.Error)
		}
	}
	s.finish(ctx, run, creds, created, res.Created)
	return res, nil
}

// finish stores the run and its tickets and announces it. Failures here are
// logged; the caller already has its result.
func (s *Service) finish(ctx context.Context, run *runstore.Run, creds config.Credentials, created []runstore.TicketRecord, count int) {
	ctx = context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	log := s.logger.With("run_id", run.ID)
	if s.store != nil {
		if err := s.store.SaveRun(ctx, run); err != nil {
			log.Error("save run", "error", err)
		}
		for _, t := range created {
			t.RunID = run.ID
			t.ProjectKey = creds.ProjectKey
			t.JiraServer = creds.JiraServer
			t.GitHubRepo = creds.GitHubRepo
			t.CreatedAt = run.FinishedAt
			if err := s.store.RecordTicket(ctx, t); err != nil {
				log.Error("record ticket", "key", t.Key, "error", err)
			}
		}
	}

	err := s.pub.Publish(ctx, notify.Event{
		Type: notify.RunCompleted,
		At:   run.FinishedAt.UTC(),
		Data: map[string]any{
			"run_id":          run.ID,
			"source":          run.Source,
			"project":         run.ProjectKey,
			"success":         run.Success,
			"tickets_created": count,
			"jira_keys":       run.Keys,
		},
	})
	if err != nil {
		log.Warn("publish run event", "error", err)
	}
}

// HandleInbound runs a chat or webhook message as a request with the
// default credentials and returns the reply text.
func (s *Service) HandleInbound(ctx context.Context, msg connector.InboundMessage) (string, error) {
	source := msg.Channel
	if msg.ChatID != "" {
		source += ":" + msg.ChatID
	}
	resp, err := s.Process(ctx, ProcessRequest{Requirement: msg.Content}, source)
	if err != nil {
		return "", err
	}
	return FormatReply(resp), nil
}

// HandleWebhook runs a signed webhook request. The payload may pick the
// project and repository; Jira credentials always come from configuration.
func (s *Service) HandleWebhook(ctx context.Context, req webhook.Request) (*orchestrator.Response, error) {
	return s.Process(ctx, ProcessRequest{
		Requirement: req.Content,
		Overrides:   config.Overrides{JiraProject: req.Project, GitHubRepo: req.GitHubRepo},
	}, "webhook:"+req.Endpoint)
}

// FormatReply renders a run outcome as a short chat message.
func FormatReply(r *orchestrator.Response) string {
	var b strings.Builder

	var keys, failed []string
	for _, c := range r.Created {
		if c.Key != "" {
			keys = append(keys, c.Key)
		} else {
			failed = append(failed, c.Summary)
		}
	}
	if len(keys) > 0 {
		fmt.Fprintf(&b, "Created %d ticket(s): %s\n", len(keys), strings.Join(keys, ", "))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "Failed to create %d ticket(s): %s\n", len(failed), strings.Join(failed, "; "))
	}
	for _, t := range r.Tickets {
		fmt.Fprintf(&b, "%s [%s] %s\n", t.Key, t.Status, t.Summary)
	}
	for _, p := range r.PRStatuses {
		label := fmt.Sprintf("PR #%d", p.Number)
		if p.Issue != "" {
			label = p.Issue + " " + label
		}
		switch {
		case !p.OK():
			fmt.Fprintf(&b, "%s: %s\n", label, p.Error)
		case p.Status.Merged:
			fmt.Fprintf(&b, "%s: merged\n", label)
		default:
			fmt.Fprintf(&b, "%s: %s\n", label, p.Status.State)
		}
	}
	if b.Len() == 0 {
		return r.Message
	}
	return strings.TrimRight(b.String(), "\n")
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
