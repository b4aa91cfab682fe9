package tracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// InvalidTransitionError means no transition leads to the requested status.
type InvalidTransitionError struct {
	Key       string
	Target    string
	Available []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("status %q not available for %s. Available: [%s]", e.Target, e.Key, strings.Join(e.Available, ", "))
}

func (e *InvalidTransitionError) HTTPStatus() int { return http.StatusConflict }

// Transition moves a ticket to the status named target (case-insensitive).
// Transitions are re-read on every call since they depend on the current
// status.
func (c *Client) Transition(ctx context.Context, key, target string) error {
	const op = "jira.transition"
	var out transitionsResponse
	if err := c.do(ctx, http.MethodGet, issuePath(key, "transitions"), nil, nil, &out); err != nil {
		return classify(op, err)
	}

	available := make([]string, 0, len(out.Transitions))
	for _, t := range out.Transitions {
		if strings.EqualFold(t.To.Name, strings.TrimSpace(target)) {
			body := map[string]any{"transition": map[string]any{"id": t.ID}}
			if err := c.do(ctx, http.MethodPost, issuePath(key, "transitions"), nil, body, nil); err != nil {
				return classify(op, err)
			}
			c.logger.Info("ticket transitioned", "key", key, "status", t.To.Name)
			return nil
		}
		available = append(available, t.To.Name)
	}
	return &InvalidTransitionError{Key: key, Target: target, Available: available}
}

// AddComment appends a comment to a ticket.
func (c *Client) AddComment(ctx context.Context, key, body string) (*protocol.TicketComment, error) {
	var out comment
	if err := c.do(ctx, http.MethodPost, issuePath(key, "comment"), nil, map[string]any{"body": body}, &out); err != nil {
		return nil, classify("jira.comment", err)
	}
	c.logger.Info("comment added", "key", key)
	return &protocol.TicketComment{ID: out.ID, Author: out.Author.display(), Body: out.Body, Created: out.Created}, nil
}

// IsUnassign reports whether an assignee value means "nobody".
func IsUnassign(assignee string) bool {
	switch strings.ToLower(strings.TrimSpace(assignee)) {
	case "", "unassigned", "none", "null":
		return true
	}
	return false
}

// Assign sets or clears a ticket's assignee.
func (c *Client) Assign(ctx context.Context, key, assignee string) error {
	var body map[string]any
	if IsUnassign(assignee) {
		body = map[string]any{"name": nil}
	} else {
		body = map[string]any{"name": assignee}
	}
	if err := c.do(ctx, http.MethodPut, issuePath(key, "assignee"), nil, body, nil); err != nil {
		return classify("jira.assign", err)
	}
	c.logger.Info("ticket assigned", "key", key, "assignee", assignee)
	return nil
}

// Update applies u to an existing ticket. The status change and the
// comment are best effort and only logged on failure; the result reports
// whether the field update succeeded (true when there was nothing to set).
func (c *Client) Update(ctx context.Context, u protocol.TicketUpdate) (bool, error) {
	const op = "jira.update"
	if strings.TrimSpace(u.Key) == "" {
		return false, apperr.Validationf(op, "ticket key is required")
	}
	if _, err := c.getIssue(ctx, u.Key, ""); err != nil {
		return false, classify(op, err)
	}

	if u.Status != "" {
		if err := c.Transition(ctx, u.Key, u.Status); err != nil {
			c.logger.Warn("could not transition ticket", "key", u.Key, "status", u.Status, "error", err)
		}
	}

	fields, err := c.updateFields(ctx, u)
	if err != nil {
		return false, err
	}
	ok := true
	if len(fields) > 0 {
		if err := c.do(ctx, http.MethodPut, issuePath(u.Key), nil, map[string]any{"fields": fields}, nil); err != nil {
			c.logger.Error("update ticket fields failed", "key", u.Key, "error", err)
			ok = false
		}
	}

	if u.Comment != "" {
		if _, err := c.AddComment(ctx, u.Key, u.Comment); err != nil {
			c.logger.Warn("could not add comment", "key", u.Key, "error", err)
		}
	}
	return ok, nil
}

func (c *Client) updateFields(ctx context.Context, u protocol.TicketUpdate) (map[string]any, error) {
	const op = "jira.update"
	fields := map[string]any{}
	if u.Priority != "" {
		p, ok := protocol.ParsePriority(string(u.Priority))
		if !ok {
			return nil, apperr.Validationf(op, "unknown priority %s", u.Priority)
		}
		fields["priority"] = map[string]any{"name": string(p)}
	}
	if u.Assignee != nil {
		if *u.Assignee == "" {
			fields["assignee"] = nil
		} else {
			fields["assignee"] = map[string]any{"name": *u.Assignee}
		}
	}
	if u.Description != nil && *u.Description != "" {
		fields["description"] = *u.Description
	}
	if u.Labels != nil {
		fields["labels"] = u.Labels
	}
	if u.StoryPoints != nil {
		if *u.StoryPoints < 0 {
			return nil, apperr.Validationf(op, "story points must not be negative")
		}
		c.setCustom(ctx, fields, StoryPoints, *u.StoryPoints)
	}
	for _, d := range []struct {
		name, value string
	}{{"start date", u.StartDate}, {"due date", u.DueDate}} {
		if d.value == "" {
			continue
		}
		if err := checkDate(d.value); err != nil {
			return nil, apperr.Validationf(op, "%s must be YYYY-MM-DD", d.name)
		}
	}
	if u.StartDate != "" {
		c.setCustom(ctx, fields, StartDate, u.StartDate)
	}
	if u.DueDate != "" {
		fields["duedate"] = u.DueDate
	}
	return fields, nil
}
