package tracker

import (
	"context"
	"errors"
	"net/http"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Create validates req and creates the ticket, returning its key.
func (c *Client) Create(ctx context.Context, req protocol.TicketRequest) (string, error) {
	const op = "jira.create"
	if err := req.Validate(); err != nil {
		return "", err
	}

	payload := map[string]any{"fields": c.createFields(ctx, req)}
	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/issue", nil, payload, &out); err != nil {
		c.logger.Error("create ticket failed", "summary", req.Summary, "type", req.Type(), "error", err)
		return "", apperr.Wrapf(apperr.Creation, op, err, "create %s %q", req.Type(), req.Summary)
	}
	if out.Key == "" {
		return "", apperr.Wrapf(apperr.Creation, op, errors.New("empty key in response"), "create %s %q", req.Type(), req.Summary)
	}
	c.logger.Info("ticket created", "key", out.Key, "type", req.Type())
	return out.Key, nil
}

// createFields builds the Jira "fields" object for req. Optional values
// are only included when set; custom fields the resolver cannot place are
// dropped.
func (c *Client) createFields(ctx context.Context, req protocol.TicketRequest) map[string]any {
	typ := req.Type()
	fields := map[string]any{
		"project":     map[string]any{"key": req.ProjectKey},
		"summary":     req.Summary,
		"description": req.Description,
		"issuetype":   map[string]any{"name": string(typ)},
	}

	// Epics take the scheme default priority.
	if req.Priority != "" && typ != protocol.IssueEpic {
		p, _ := protocol.ParsePriority(string(req.Priority))
		fields["priority"] = map[string]any{"name": string(p)}
	}
	if req.Assignee != "" {
		fields["assignee"] = map[string]any{"name": req.Assignee}
	}
	if len(req.Labels) > 0 {
		fields["labels"] = req.Labels
	}
	if len(req.Components) > 0 {
		comps := make([]map[string]any, 0, len(req.Components))
		for _, name := range req.Components {
			comps = append(comps, map[string]any{"name": name})
		}
		fields["components"] = comps
	}
	if typ == protocol.IssueSubtask {
		fields["parent"] = map[string]any{"key": req.ParentKey}
	}
	if req.StoryPoints != nil {
		c.setCustom(ctx, fields, StoryPoints, *req.StoryPoints)
	}
	if req.StartDate != "" {
		c.setCustom(ctx, fields, StartDate, req.StartDate)
	}
	if req.EpicLink != "" {
		c.setCustom(ctx, fields, EpicLink, req.EpicLink)
	}
	if req.DueDate != "" {
		fields["duedate"] = req.DueDate
	}
	return fields
}

func (c *Client) setCustom(ctx context.Context, fields map[string]any, attr Attribute, value any) {
	res := c.fields.Resolve(ctx, attr)
	if res.FieldID == "" {
		c.logger.Warn("no field for attribute, omitting", "attribute", attr)
		return
	}
	fields[res.FieldID] = value
}

// CreateComplex creates a parent ticket and then each subtask under it.
// Subtasks inherit the parent's project and key. A failed subtask is
// recorded and the rest are still attempted; a failed parent aborts.
func (c *Client) CreateComplex(ctx context.Context, req protocol.ComplexTicketRequest) (*protocol.ComplexResult, error) {
	parentKey, err := c.Create(ctx, req.Parent)
	if err != nil {
		return nil, err
	}
	result := &protocol.ComplexResult{
		ParentKey: parentKey,
		Created: []protocol.CreatedTicket{{
			Key: parentKey, Kind: "parent", Summary: req.Parent.Summary,
		}},
	}

	for _, sub := range req.Subtasks {
		sub.ProjectKey = req.Parent.ProjectKey
		sub.ParentKey = parentKey
		sub.IssueType = protocol.IssueSubtask

		item := protocol.CreatedTicket{Kind: "subtask", Summary: sub.Summary}
		key, err := c.Create(ctx, sub)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Key = key
		}
		result.Created = append(result.Created, item)
	}
	return result, nil
}
