package tracker

import (
	"encoding/json"
	"strconv"
	"strings"
)

type named struct {
	ID    string `json:"id,omitempty"`
	Key   string `json:"key,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type user struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	AccountID    string `json:"accountId"`
}

func (u *user) display() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

type issueRef struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		Status    *named `json:"status"`
		IssueType *named `json:"issuetype"`
		Assignee  *user  `json:"assignee"`
	} `json:"fields"`
}

type status struct {
	Name           string `json:"name"`
	StatusCategory *named `json:"statusCategory"`
}

type issueType struct {
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

type comment struct {
	ID      string `json:"id"`
	Author  *user  `json:"author"`
	Body    string `json:"body"`
	Created string `json:"created"`
}

type attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Author   *user  `json:"author"`
	Created  string `json:"created"`
	Content  string `json:"content"`
}

type worklog struct {
	ID        string `json:"id"`
	Author    *user  `json:"author"`
	TimeSpent string `json:"timeSpent"`
	Comment   string `json:"comment"`
	Started   string `json:"started"`
}

type issueFields struct {
	Summary        string       `json:"summary"`
	Description    string       `json:"description"`
	Status         *status      `json:"status"`
	Priority       *named       `json:"priority"`
	IssueType      *issueType   `json:"issuetype"`
	Project        *named       `json:"project"`
	Assignee       *user        `json:"assignee"`
	Reporter       *user        `json:"reporter"`
	Created        string       `json:"created"`
	Updated        string       `json:"updated"`
	DueDate        string       `json:"duedate"`
	ResolutionDate string       `json:"resolutiondate"`
	Resolution     *named       `json:"resolution"`
	Labels         []string     `json:"labels"`
	Components     []named      `json:"components"`
	FixVersions    []named      `json:"fixVersions"`
	Versions       []named      `json:"versions"`
	Parent         *issueRef    `json:"parent"`
	Subtasks       []issueRef   `json:"subtasks"`
	Attachment     []attachment `json:"attachment"`
	Comment        *struct {
		Comments []comment `json:"comments"`
	} `json:"comment"`
	Worklog *struct {
		Worklogs []worklog `json:"worklogs"`
	} `json:"worklog"`
}

type historyItem struct {
	Field      string  `json:"field"`
	FieldType  string  `json:"fieldtype"`
	FromString *string `json:"fromString"`
	ToString   *string `json:"toString"`
}

type history struct {
	ID      string        `json:"id"`
	Author  *user         `json:"author"`
	Created string        `json:"created"`
	Items   []historyItem `json:"items"`
}

type changelog struct {
	Histories []history `json:"histories"`
}

// issue is a decoded Jira issue. Raw keeps every field so custom fields
// can be read by id.
type issue struct {
	ID       string
	Key      string
	Fields   issueFields
	Raw      map[string]json.RawMessage
	Rendered struct {
		Description string `json:"description"`
	}
	Changelog changelog
}

func (i *issue) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID             string          `json:"id"`
		Key            string          `json:"key"`
		Fields         json.RawMessage `json:"fields"`
		RenderedFields json.RawMessage `json:"renderedFields"`
		Changelog      changelog       `json:"changelog"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	i.ID, i.Key, i.Changelog = wire.ID, wire.Key, wire.Changelog
	if len(wire.Fields) > 0 {
		if err := json.Unmarshal(wire.Fields, &i.Fields); err != nil {
			return err
		}
		if err := json.Unmarshal(wire.Fields, &i.Raw); err != nil {
			return err
		}
	}
	if len(wire.RenderedFields) > 0 && string(wire.RenderedFields) != "null" {
		// rendered values are only strings or null; ignore anything else
		_ = json.Unmarshal(wire.RenderedFields, &i.Rendered)
	}
	return nil
}

type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

type createResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

type transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   named  `json:"to"`
}

type transitionsResponse struct {
	Transitions []transition `json:"transitions"`
}

// numberField returns the first numeric value among the candidate ids.
// Numbers encoded as strings are accepted.
func numberField(raw map[string]json.RawMessage, ids []string) *float64 {
	for _, id := range ids {
		v, ok := raw[id]
		if !ok || isNull(v) {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			return &f
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// stringField returns the first non-empty value among the candidate ids.
// Option objects yield their value, name or key.
func stringField(raw map[string]json.RawMessage, ids []string) string {
	for _, id := range ids {
		v, ok := raw[id]
		if !ok || isNull(v) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var obj struct {
			Value string `json:"value"`
			Name  string `json:"name"`
			Key   string `json:"key"`
		}
		if err := json.Unmarshal(v, &obj); err == nil {
			for _, s := range []string{obj.Value, obj.Name, obj.Key} {
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// sprintField returns the active sprint name, or the most recent one.
func sprintField(raw map[string]json.RawMessage, ids []string) string {
	for _, id := range ids {
		v, ok := raw[id]
		if !ok || isNull(v) {
			continue
		}
		var sprints []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		}
		if err := json.Unmarshal(v, &sprints); err != nil {
			if s := stringField(raw, []string{id}); s != "" {
				return s
			}
			continue
		}
		name := ""
		for _, sp := range sprints {
			if sp.State == "active" {
				return sp.Name
			}
			name = sp.Name
		}
		if name != "" {
			return name
		}
	}
	return ""
}

func isNull(v json.RawMessage) bool {
	s := strings.TrimSpace(string(v))
	return s == "" || s == "null"
}

func names(ns []named) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
