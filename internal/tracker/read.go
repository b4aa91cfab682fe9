package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/sprintagent/sprintagent/internal/apperr"
	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// DefaultMaxResults is the search page size when none is given.
const DefaultMaxResults = 50

// Get fetches one ticket with its changelog.
func (c *Client) Get(ctx context.Context, key string) (*protocol.TicketInfo, error) {
	iss, err := c.getIssue(ctx, key, "changelog")
	if err != nil {
		return nil, classify("jira.get", err)
	}
	info := c.toInfo(ctx, iss)
	return &info, nil
}

// Search runs a JQL query.
func (c *Client) Search(ctx context.Context, jql string, maxResults int) ([]protocol.TicketInfo, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("expand", "changelog")

	var out searchResponse
	if err := c.do(ctx, http.MethodGet, "/search", q, nil, &out); err != nil {
		return nil, classify("jira.search", err)
	}
	tickets := make([]protocol.TicketInfo, 0, len(out.Issues))
	for i := range out.Issues {
		tickets = append(tickets, c.toInfo(ctx, &out.Issues[i]))
	}
	return tickets, nil
}

// ListProject returns a project's tickets, newest first.
func (c *Client) ListProject(ctx context.Context, projectKey string, maxResults int) ([]protocol.TicketInfo, error) {
	if projectKey == "" {
		return nil, apperr.Validationf("jira.list", "project key is required")
	}
	return c.Search(ctx, fmt.Sprintf("project = %s ORDER BY created DESC", projectKey), maxResults)
}

// Comments returns every comment on a ticket, oldest first.
func (c *Client) Comments(ctx context.Context, key string) ([]protocol.TicketComment, error) {
	var out struct {
		Comments []comment `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, issuePath(key, "comment"), nil, nil, &out); err != nil {
		return nil, classify("jira.comments", err)
	}
	return toComments(out.Comments), nil
}

// Projects lists the projects visible to the user.
func (c *Client) Projects(ctx context.Context) ([]protocol.Project, error) {
	var raw []protocol.Project
	if err := c.do(ctx, http.MethodGet, "/project", nil, nil, &raw); err != nil {
		return nil, classify("jira.projects", err)
	}
	out := make([]protocol.Project, 0, len(raw))
	for _, p := range raw {
		if p.Key != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Fields lists the field catalog. It satisfies FieldLister.
func (c *Client) Fields(ctx context.Context) ([]protocol.Field, error) {
	var out []protocol.Field
	if err := c.do(ctx, http.MethodGet, "/field", nil, nil, &out); err != nil {
		return nil, classify("jira.fields", err)
	}
	return out, nil
}

func (c *Client) getIssue(ctx context.Context, key, expand string) (*issue, error) {
	var q url.Values
	if expand != "" {
		q = url.Values{"expand": {expand}}
	}
	var iss issue
	if err := c.do(ctx, http.MethodGet, issuePath(key), q, nil, &iss); err != nil {
		return nil, err
	}
	return &iss, nil
}

func (c *Client) toInfo(ctx context.Context, iss *issue) protocol.TicketInfo {
	f := iss.Fields
	info := protocol.TicketInfo{
		Key:         iss.Key,
		Summary:     f.Summary,
		Description: f.Description,
		Priority:    "Medium",
		Assignee:    f.Assignee.display(),
		Reporter:    f.Reporter.display(),
		Created:     f.Created,
		Updated:     f.Updated,
		Labels:      nonNil(f.Labels),
		Components:  names(f.Components),
		DueDate:     f.DueDate,
	}
	if f.Status != nil {
		info.Status = f.Status.Name
	}
	if f.Priority != nil && f.Priority.Name != "" {
		info.Priority = f.Priority.Name
	}
	if f.IssueType != nil {
		info.IssueType = f.IssueType.Name
	}
	info.StoryPoints = numberField(iss.Raw, c.fields.Candidates(ctx, StoryPoints))
	info.StartDate = stringField(iss.Raw, c.fields.Candidates(ctx, StartDate))
	info.EpicLink = stringField(iss.Raw, c.fields.Candidates(ctx, EpicLink))
	info.StatusDuration = StatusDuration(flatten(iss.Changelog), f.Created, c.now())
	return info
}

// flatten turns a changelog into one entry per changed item, sorted by
// time. Entries with unparseable times go last in their original order.
func flatten(cl changelog) []protocol.TicketHistory {
	type stamped struct {
		h  protocol.TicketHistory
		at time.Time
		ok bool
	}
	var rows []stamped
	for _, h := range cl.Histories {
		at, err := ParseTime(h.Created)
		for _, it := range h.Items {
			rows = append(rows, stamped{
				h: protocol.TicketHistory{
					Created: h.Created,
					Author:  h.Author.display(),
					Field:   it.Field,
					From:    deref(it.FromString),
					To:      deref(it.ToString),
				},
				at: at,
				ok: err == nil,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ok != rows[j].ok {
			return rows[i].ok
		}
		return rows[i].ok && rows[i].at.Before(rows[j].at)
	})
	out := make([]protocol.TicketHistory, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.h)
	}
	return out
}

func toComments(cs []comment) []protocol.TicketComment {
	out := make([]protocol.TicketComment, 0, len(cs))
	for _, cm := range cs {
		out = append(out, protocol.TicketComment{
			ID:      cm.ID,
			Author:  cm.Author.display(),
			Body:    cm.Body,
			Created: cm.Created,
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
