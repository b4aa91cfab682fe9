// Package intake converts a structured requirements document into ticket
// requests and files them.
package intake

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sprintagent/sprintagent/internal/apperr"
)

// Document is a product analysis produced upstream of ticket creation.
type Document struct {
	Title                     string            `json:"title" yaml:"title"`
	BusinessObjective         string            `json:"businessObjective" yaml:"businessObjective"`
	Priority                  string            `json:"priority,omitempty" yaml:"priority,omitempty"`
	Assignee                  Assignee          `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	FunctionalRequirements    []string          `json:"functionalRequirements,omitempty" yaml:"functionalRequirements,omitempty"`
	NonFunctionalRequirements map[string]string `json:"nonFunctionalRequirements,omitempty" yaml:"nonFunctionalRequirements,omitempty"`
	UserStories               []UserStory       `json:"userStories,omitempty" yaml:"userStories,omitempty"`
	AcceptanceCriteria        []string          `json:"acceptanceCriteria,omitempty" yaml:"acceptanceCriteria,omitempty"`
	Constraints               []string          `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Assumptions               []string          `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
	Dependencies              []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	SuggestedJiraTasks        *SuggestedTasks   `json:"suggestedJiraTasks" yaml:"suggestedJiraTasks"`
}

// Assignee names the developer and tester for the work.
type Assignee struct {
	Dev string `json:"dev,omitempty" yaml:"dev,omitempty"`
	QA  string `json:"qa,omitempty" yaml:"qa,omitempty"`
}

// UserStory is a story with its business value. A bare string is accepted
// as a story without a value.
type UserStory struct {
	Story string `json:"story" yaml:"story"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

func (u *UserStory) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = UserStory{Story: s}
		return nil
	}
	type plain UserStory
	return json.Unmarshal(data, (*plain)(u))
}

func (u *UserStory) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*u = UserStory{Story: node.Value}
		return nil
	}
	type plain UserStory
	return node.Decode((*plain)(u))
}

// SuggestedTasks is the proposed ticket breakdown.
type SuggestedTasks struct {
	Epic    string   `json:"epic,omitempty" yaml:"epic,omitempty"`
	Stories []string `json:"stories,omitempty" yaml:"stories,omitempty"`
	Tasks   []string `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// Validate checks the required sections.
func (d *Document) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(d.BusinessObjective) == "" {
		problems = append(problems, "businessObjective is required")
	}
	if d.SuggestedJiraTasks == nil {
		problems = append(problems, "suggestedJiraTasks is required")
	}
	if len(problems) > 0 {
		return apperr.Validationf("intake.validate", "invalid requirements document: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Parse decodes a document. YAML is used when name ends in .yaml or .yml,
// JSON otherwise.
func Parse(data []byte, name string) (*Document, error) {
	var doc Document
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "intake.parse", fmt.Errorf("decode requirements document: %w", err))
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
