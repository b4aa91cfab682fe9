package tracker

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// Attribute is an abstract ticket attribute stored in a custom field.
type Attribute string

const (
	StoryPoints Attribute = "story_points"
	StartDate   Attribute = "start_date"
	EpicLink    Attribute = "epic_link"
	EpicName    Attribute = "epic_name"
	Sprint      Attribute = "sprint"
)

// Confidence tells whether a field id came from the catalog or a default.
type Confidence string

const (
	Discovered Confidence = "discovered"
	Guessed    Confidence = "guessed"
)

// Resolution is the field id chosen for an attribute.
type Resolution struct {
	FieldID    string     `json:"field_id"`
	Confidence Confidence `json:"confidence"`
}

type attributeRule struct {
	words     []string
	fallbacks []string
}

// Jira Cloud defaults; instances that were migrated often use the others.
var attributeRules = map[Attribute]attributeRule{
	StoryPoints: {words: []string{"story", "point"}, fallbacks: []string{"customfield_10016", "customfield_10002", "customfield_10004"}},
	StartDate:   {words: []string{"start", "date"}, fallbacks: []string{"customfield_10015"}},
	EpicLink:    {words: []string{"epic", "link"}, fallbacks: []string{"customfield_10014"}},
	EpicName:    {words: []string{"epic", "name"}, fallbacks: []string{"customfield_10011"}},
	Sprint:      {words: []string{"sprint"}, fallbacks: []string{"customfield_10020"}},
}

// FieldLister returns a tracker's field catalog.
type FieldLister interface {
	Fields(ctx context.Context) ([]protocol.Field, error)
}

// Resolver maps attributes to field ids. The catalog is listed at most
// once and every resolution, discovered or guessed, is cached.
type Resolver struct {
	mu      sync.Mutex
	lister  FieldLister
	catalog []protocol.Field
	listed  bool
	cache   map[Attribute]Resolution
	logger  *slog.Logger
}

// NewResolver creates a resolver backed by lister.
func NewResolver(lister FieldLister, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lister: lister,
		cache:  make(map[Attribute]Resolution),
		logger: logger,
	}
}

// Resolve returns the field id for attr. An empty FieldID means the
// attribute is unknown and should be omitted.
func (r *Resolver) Resolve(ctx context.Context, attr Attribute) Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.cache[attr]; ok {
		return res
	}
	rule, ok := attributeRules[attr]
	if !ok {
		return Resolution{}
	}

	if !r.listed {
		r.listed = true
		catalog, err := r.lister.Fields(ctx)
		if err != nil {
			r.logger.Warn("field catalog unavailable, using default field ids", "error", err)
		} else {
			r.catalog = catalog
		}
	}

	res := Resolution{}
	if id := discover(r.catalog, rule.words); id != "" {
		res = Resolution{FieldID: id, Confidence: Discovered}
	} else if len(rule.fallbacks) > 0 {
		res = Resolution{FieldID: rule.fallbacks[0], Confidence: Guessed}
	}
	r.cache[attr] = res
	r.logger.Debug("resolved field", "attribute", attr, "field_id", res.FieldID, "confidence", res.Confidence)
	return res
}

// Candidates returns the resolved id followed by the remaining defaults.
// Readers take the first id that holds a value.
func (r *Resolver) Candidates(ctx context.Context, attr Attribute) []string {
	res := r.Resolve(ctx, attr)
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(res.FieldID)
	for _, id := range attributeRules[attr].fallbacks {
		add(id)
	}
	return out
}

// discover returns the first field whose name contains every word,
// preferring custom fields.
func discover(catalog []protocol.Field, words []string) string {
	var fallback string
	for _, f := range catalog {
		name := strings.ToLower(f.Name)
		matched := true
		for _, w := range words {
			if !strings.Contains(name, w) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if f.Custom {
			return f.ID
		}
		if fallback == "" {
			fallback = f.ID
		}
	}
	return fallback
}
