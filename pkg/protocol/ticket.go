package protocol

import (
	"strings"
	"time"

	"github.com/sprintagent/sprintagent/internal/apperr"
)

// IssueType is the tracker issue type of a ticket.
type IssueType string

const (
	IssueTask        IssueType = "Task"
	IssueBug         IssueType = "Bug"
	IssueStory       IssueType = "Story"
	IssueEpic        IssueType = "Epic"
	IssueSubtask     IssueType = "Subtask"
	IssueImprovement IssueType = "Improvement"
	IssueNewFeature  IssueType = "New Feature"
)

var issueTypes = []IssueType{
	IssueTask, IssueBug, IssueStory, IssueEpic, IssueSubtask, IssueImprovement, IssueNewFeature,
}

// ParseIssueType matches s case-insensitively against the known issue
// types. "Sub-task" is accepted as an alias for Subtask.
func ParseIssueType(s string) (IssueType, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "sub-task") {
		return IssueSubtask, true
	}
	for _, t := range issueTypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// Priority is the tracker priority of a ticket.
type Priority string

const (
	PriorityHighest Priority = "Highest"
	PriorityHigh    Priority = "High"
	PriorityMedium  Priority = "Medium"
	PriorityLow     Priority = "Low"
	PriorityLowest  Priority = "Lowest"
)

var priorities = []Priority{
	PriorityHighest, PriorityHigh, PriorityMedium, PriorityLow, PriorityLowest,
}

// ParsePriority matches s case-insensitively against the known priorities.
func ParsePriority(s string) (Priority, bool) {
	s = strings.TrimSpace(s)
	for _, p := range priorities {
		if strings.EqualFold(s, string(p)) {
			return p, true
		}
	}
	return "", false
}

// DateLayout is the ISO date format used for start and due dates.
const DateLayout = "2006-01-02"

// TicketRequest describes a ticket to be created.
type TicketRequest struct {
	Summary     string    `json:"summary" yaml:"summary"`
	Description string    `json:"description" yaml:"description"`
	ProjectKey  string    `json:"project_key" yaml:"project_key"`
	IssueType   IssueType `json:"issue_type,omitempty" yaml:"issue_type,omitempty"`
	Priority    Priority  `json:"priority,omitempty" yaml:"priority,omitempty"`
	Assignee    string    `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Labels      []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	Components  []string  `json:"components,omitempty" yaml:"components,omitempty"`
	ParentKey   string    `json:"parent_key,omitempty" yaml:"parent_key,omitempty"`
	StoryPoints *int      `json:"story_points,omitempty" yaml:"story_points,omitempty"`
	StartDate   string    `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	DueDate     string    `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	EpicLink    string    `json:"epic_link,omitempty" yaml:"epic_link,omitempty"`
}

// Type returns the canonical issue type, defaulting to Task. Aliases and
// case variants such as "sub-task" resolve to the known type; unknown
// names are returned as given.
func (r TicketRequest) Type() IssueType {
	if strings.TrimSpace(string(r.IssueType)) == "" {
		return IssueTask
	}
	if t, ok := ParseIssueType(string(r.IssueType)); ok {
		return t
	}
	return r.IssueType
}

// Validate checks the request before anything is written to the tracker.
func (r TicketRequest) Validate() error {
	const op = "ticket.validate"
	var problems []string
	if strings.TrimSpace(r.Summary) == "" {
		problems = append(problems, "summary is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		problems = append(problems, "description is required")
	}
	if strings.TrimSpace(r.ProjectKey) == "" {
		problems = append(problems, "project key is required")
	}
	if r.IssueType != "" {
		if _, ok := ParseIssueType(string(r.IssueType)); !ok {
			problems = append(problems, "unknown issue type "+string(r.IssueType))
		}
	}
	if r.Priority != "" {
		if _, ok := ParsePriority(string(r.Priority)); !ok {
			problems = append(problems, "unknown priority "+string(r.Priority))
		}
	}
	if r.Type() == IssueSubtask && strings.TrimSpace(r.ParentKey) == "" {
		problems = append(problems, "subtask requires a parent key")
	}
	if r.StoryPoints != nil && *r.StoryPoints < 0 {
		problems = append(problems, "story points must not be negative")
	}
	for name, v := range map[string]string{"start date": r.StartDate, "due date": r.DueDate} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, v); err != nil {
			problems = append(problems, name+" must be YYYY-MM-DD")
		}
	}
	if len(problems) > 0 {
		return apperr.Validationf(op, "%s", strings.Join(problems, "; "))
	}
	return nil
}

// TicketInfo is the read model of a ticket.
type TicketInfo struct {
	Key            string   `json:"key"`
	Summary        string   `json:"summary"`
	Description    string   `json:"description"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	IssueType      string   `json:"issue_type"`
	Assignee       string   `json:"assignee,omitempty"`
	Reporter       string   `json:"reporter,omitempty"`
	Created        string   `json:"created"`
	Updated        string   `json:"updated"`
	Labels         []string `json:"labels"`
	Components     []string `json:"components"`
	StoryPoints    *float64 `json:"story_points,omitempty"`
	StartDate      string   `json:"start_date,omitempty"`
	DueDate        string   `json:"due_date,omitempty"`
	EpicLink       string   `json:"epic_link,omitempty"`
	StatusDuration string   `json:"status_duration"`
}

// ComplexTicketRequest is a parent ticket with subtasks created under it.
type ComplexTicketRequest struct {
	Parent   TicketRequest   `json:"parent"`
	Subtasks []TicketRequest `json:"subtasks"`
}

// CreatedTicket reports the outcome of one item in a batch creation.
type CreatedTicket struct {
	Key     string `json:"key,omitempty"`
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// ComplexResult is the outcome of creating a ComplexTicketRequest.
type ComplexResult struct {
	ParentKey string          `json:"parent_key"`
	Created   []CreatedTicket `json:"created"`
}

// TicketUpdate carries optional changes to an existing ticket. Nil fields
// are left untouched; an empty Assignee unassigns.
type TicketUpdate struct {
	Key         string   `json:"key"`
	Status      string   `json:"status,omitempty"`
	Assignee    *string  `json:"assignee,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	StoryPoints *int     `json:"story_points,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Description *string  `json:"description,omitempty"`
}

// TicketHistory is one changed item from a ticket's changelog.
type TicketHistory struct {
	Created string `json:"created"`
	Author  string `json:"author"`
	Field   string `json:"field"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

// TicketHistoryResponse is a ticket's flattened changelog.
type TicketHistoryResponse struct {
	Key            string          `json:"key"`
	History        []TicketHistory `json:"history"`
	CurrentStatus  string          `json:"current_status"`
	StatusDuration string          `json:"status_duration"`
}

// TicketComment is a comment on a ticket.
type TicketComment struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Body    string `json:"body"`
	Created string `json:"created"`
}

// Person is a tracker user reference.
type Person struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Attachment is a file attached to a ticket.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Author   string `json:"author,omitempty"`
	Created  string `json:"created,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Worklog is time logged against a ticket.
type Worklog struct {
	Author    string `json:"author"`
	TimeSpent string `json:"time_spent"`
	Comment   string `json:"comment,omitempty"`
	Started   string `json:"started,omitempty"`
}

// TicketRef is a short reference to a related ticket.
type TicketRef struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Status  string `json:"status,omitempty"`
}

// CustomFields are the resolver-backed fields of a ticket.
type CustomFields struct {
	StoryPoints *float64 `json:"story_points,omitempty"`
	EpicLink    string   `json:"epic_link,omitempty"`
	EpicName    string   `json:"epic_name,omitempty"`
	Sprint      string   `json:"sprint,omitempty"`
}

// TicketDetails is the full view of a ticket used by the tickets API.
type TicketDetails struct {
	Key             string          `json:"key"`
	URL             string          `json:"url"`
	Summary         string          `json:"summary"`
	Description     string          `json:"description"`
	DescriptionText string          `json:"description_text"`
	Status          string          `json:"status"`
	StatusCategory  string          `json:"status_category,omitempty"`
	IssueType       string          `json:"issue_type"`
	IsSubtask       bool            `json:"is_subtask"`
	Priority        string          `json:"priority"`
	Project         string          `json:"project"`
	Assignee        *Person         `json:"assignee,omitempty"`
	Reporter        *Person         `json:"reporter,omitempty"`
	Created         string          `json:"created"`
	Updated         string          `json:"updated"`
	DueDate         string          `json:"due_date,omitempty"`
	ResolutionDate  string          `json:"resolution_date,omitempty"`
	Resolution      string          `json:"resolution,omitempty"`
	Labels          []string        `json:"labels"`
	Components      []string        `json:"components"`
	FixVersions     []string        `json:"fix_versions"`
	AffectsVersions []string        `json:"affects_versions"`
	CustomFields    CustomFields    `json:"custom_fields"`
	Parent          *TicketRef      `json:"parent,omitempty"`
	Subtasks        []TicketRef     `json:"subtasks"`
	Comments        []TicketComment `json:"comments"`
	Attachments     []Attachment    `json:"attachments"`
	Worklogs        []Worklog       `json:"worklogs"`
	History         []TicketHistory `json:"history"`
	StatusDuration  string          `json:"status_duration"`
}

// Project is a tracker project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Field is an entry of the tracker's field catalog.
type Field struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}
