package tracker

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Details fetches the full view of a ticket: comments, attachments,
// worklogs, history and a plain-text description.
func (c *Client) Details(ctx context.Context, key string) (*protocol.TicketDetails, error) {
	iss, err := c.getIssue(ctx, key, "changelog,renderedFields")
	if err != nil {
		return nil, classify("jira.details", err)
	}
	f := iss.Fields
	hist := flatten(iss.Changelog)
	if hist == nil {
		hist = []protocol.TicketHistory{}
	}

	d := &protocol.TicketDetails{
		Key:             iss.Key,
		URL:             c.BrowseURL(iss.Key),
		Summary:         f.Summary,
		Description:     f.Description,
		Priority:        "None",
		Created:         f.Created,
		Updated:         f.Updated,
		DueDate:         f.DueDate,
		ResolutionDate:  f.ResolutionDate,
		Labels:          nonNil(f.Labels),
		Components:      names(f.Components),
		FixVersions:     names(f.FixVersions),
		AffectsVersions: names(f.Versions),
		Subtasks:        []protocol.TicketRef{},
		Comments:        []protocol.TicketComment{},
		Attachments:     []protocol.Attachment{},
		Worklogs:        []protocol.Worklog{},
		History:         hist,
		StatusDuration:  StatusDuration(hist, f.Created, c.now()),
	}
	if f.Status != nil {
		d.Status = f.Status.Name
		if f.Status.StatusCategory != nil {
			d.StatusCategory = f.Status.StatusCategory.Name
		}
	}
	if f.IssueType != nil {
		d.IssueType = f.IssueType.Name
		d.IsSubtask = f.IssueType.Subtask
	}
	if f.Priority != nil && f.Priority.Name != "" {
		d.Priority = f.Priority.Name
	}
	if f.Project != nil {
		d.Project = f.Project.Key
	}
	if f.Resolution != nil {
		d.Resolution = f.Resolution.Name
	}
	d.Assignee = person(f.Assignee)
	d.Reporter = person(f.Reporter)

	d.CustomFields = protocol.CustomFields{
		StoryPoints: numberField(iss.Raw, c.fields.Candidates(ctx, StoryPoints)),
		EpicLink:    stringField(iss.Raw, c.fields.Candidates(ctx, EpicLink)),
		EpicName:    stringField(iss.Raw, c.fields.Candidates(ctx, EpicName)),
		Sprint:      sprintField(iss.Raw, c.fields.Candidates(ctx, Sprint)),
	}

	if f.Parent != nil {
		d.Parent = ref(*f.Parent)
	}
	for _, s := range f.Subtasks {
		d.Subtasks = append(d.Subtasks, *ref(s))
	}
	if f.Comment != nil {
		d.Comments = toComments(f.Comment.Comments)
	}
	for _, a := range f.Attachment {
		d.Attachments = append(d.Attachments, protocol.Attachment{
			Filename: a.Filename,
			Size:     a.Size,
			MimeType: a.MimeType,
			Author:   a.Author.display(),
			Created:  a.Created,
			URL:      a.Content,
		})
	}
	if f.Worklog != nil {
		for _, w := range f.Worklog.Worklogs {
			d.Worklogs = append(d.Worklogs, protocol.Worklog{
				Author:    w.Author.display(),
				TimeSpent: w.TimeSpent,
				Comment:   w.Comment,
				Started:   w.Started,
			})
		}
	}

	d.DescriptionText = f.Description
	if html := strings.TrimSpace(iss.Rendered.Description); html != "" {
		d.DescriptionText = c.htmlToText(html, d.URL)
	}
	return d, nil
}

// htmlToText renders Jira's HTML description as plain text. Readability
// is tried first; tag stripping is the fallback.
func (c *Client) htmlToText(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return stripHTML(html)
	}
	doc := "<html><head><title></title></head><body><article>" + html + "</article></body></html>"
	article, err := readability.FromReader(strings.NewReader(doc), u)
	if err != nil {
		c.logger.Debug("readability parse failed", "url", pageURL, "error", err)
		return stripHTML(html)
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return stripHTML(html)
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return stripHTML(html)
	}
	return text
}

func person(u *user) *protocol.Person {
	if u == nil {
		return nil
	}
	return &protocol.Person{Name: u.Name, DisplayName: u.DisplayName, Email: u.EmailAddress}
}

func ref(r issueRef) *protocol.TicketRef {
	out := &protocol.TicketRef{Key: r.Key, Summary: r.Fields.Summary}
	if r.Fields.Status != nil {
		out.Status = r.Fields.Status.Name
	}
	return out
}

var (
	reHTMLTag = regexp.MustCompile(`<[^>]+>`)
	reSpaces  = regexp.MustCompile(`[ \t]+`)
	reBlank   = regexp.MustCompile(`\n{3,}`)
)

// stripHTML removes tags and collapses whitespace, keeping paragraph breaks.
func stripHTML(s string) string {
	r := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n", "</li>", "\n")
	s = r.Replace(s)
	s = reHTMLTag.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(s)
	s = reSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = reBlank.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}
