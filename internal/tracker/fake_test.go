package tracker

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// fakeJira is an in-memory Jira REST v2 server.
type fakeJira struct {
	mu          sync.Mutex
	srv         *httptest.Server
	catalog     []protocol.Field
	failFields  bool
	issues      map[string]map[string]any
	changelogs  map[string][]map[string]any
	rendered    map[string]string
	transitions map[string][]transition
	comments    map[string][]map[string]any
	failPut     bool
	next        int

	creates        []map[string]any
	puts           []map[string]any
	assigns        []map[string]any
	fieldCalls     int
	transitionGets int
	transitioned   []string
}

const fakeCreated = "2025-01-10T09:00:00.000+0000"

func newFakeJira(t *testing.T) *fakeJira {
	t.Helper()
	f := &fakeJira{
		issues:      map[string]map[string]any{},
		changelogs:  map[string][]map[string]any{},
		rendered:    map[string]string{},
		transitions: map[string][]transition{},
		comments:    map[string][]map[string]any{},
		catalog: []protocol.Field{
			{ID: "summary", Name: "Summary"},
			{ID: "customfield_10026", Name: "Story Points", Custom: true},
			{ID: "customfield_10015", Name: "Start date", Custom: true},
			{ID: "customfield_10014", Name: "Epic Link", Custom: true},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/2/field", f.handleFields)
	mux.HandleFunc("GET /rest/api/2/project", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, []map[string]string{
			{"id": "1", "key": "PROJ", "name": "Project"},
			{"id": "2", "key": "", "name": "Broken"},
		})
	})
	mux.HandleFunc("POST /rest/api/2/issue", f.handleCreate)
	mux.HandleFunc("GET /rest/api/2/issue/{key}", f.handleGet)
	mux.HandleFunc("PUT /rest/api/2/issue/{key}", f.handlePut)
	mux.HandleFunc("GET /rest/api/2/issue/{key}/transitions", f.handleTransitions)
	mux.HandleFunc("POST /rest/api/2/issue/{key}/transitions", f.handleDoTransition)
	mux.HandleFunc("GET /rest/api/2/issue/{key}/comment", f.handleComments)
	mux.HandleFunc("POST /rest/api/2/issue/{key}/comment", f.handleAddComment)
	mux.HandleFunc("PUT /rest/api/2/issue/{key}/assignee", f.handleAssign)
	mux.HandleFunc("GET /rest/api/2/search", f.handleSearch)

	f.srv = httptest.NewServer(f.auth(mux))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeJira) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bot@example.com" || pass != "token" {
			http.Error(w, `{"errorMessages":["unauthorized"]}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeJira) client(opts ...Option) *Client {
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Date(2025, 1, 10, 10, 30, 0, 0, time.UTC) }),
	}, opts...)
	return New(f.srv.URL+"/", "bot@example.com", "token", opts...)
}

// seed stores an issue directly, bypassing create.
func (f *fakeJira) seed(key string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := fields["status"]; !ok {
		fields["status"] = map[string]any{"name": "To Do"}
	}
	if _, ok := fields["created"]; !ok {
		fields["created"] = fakeCreated
	}
	f.issues[key] = fields
}

func (f *fakeJira) handleFields(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fieldCalls++
	if f.failFields {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	writeTestJSON(w, http.StatusOK, f.catalog)
}

func (f *fakeJira) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fields map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, body.Fields)
	if body.Fields["summary"] == "fail" {
		writeTestJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string]string{"summary": "rejected"}})
		return
	}
	f.next++
	project, _ := body.Fields["project"].(map[string]any)
	key := fmt.Sprintf("%v-%d", project["key"], f.next)
	body.Fields["status"] = map[string]any{"name": "To Do"}
	body.Fields["created"] = fakeCreated
	body.Fields["updated"] = fakeCreated
	body.Fields["reporter"] = map[string]any{"name": "bot", "displayName": "Sprint Bot"}
	f.issues[key] = body.Fields
	writeTestJSON(w, http.StatusCreated, map[string]string{"id": strconv.Itoa(f.next), "key": key})
}

func (f *fakeJira) issueJSON(key string) map[string]any {
	out := map[string]any{
		"id":     "1",
		"key":    key,
		"fields": f.issues[key],
		"changelog": map[string]any{
			"histories": f.changelogs[key],
		},
	}
	if html, ok := f.rendered[key]; ok {
		out["renderedFields"] = map[string]any{"description": html}
	}
	return out
}

func (f *fakeJira) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.PathValue("key")
	if _, ok := f.issues[key]; !ok {
		writeTestJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	writeTestJSON(w, http.StatusOK, f.issueJSON(key))
}

func (f *fakeJira) handlePut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fields map[string]any `json:"fields"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, body.Fields)
	if f.failPut {
		http.Error(w, "field not on screen", http.StatusBadRequest)
		return
	}
	iss := f.issues[r.PathValue("key")]
	for k, v := range body.Fields {
		iss[k] = v
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeJira) handleTransitions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitionGets++
	writeTestJSON(w, http.StatusOK, map[string]any{"transitions": f.transitions[r.PathValue("key")]})
}

func (f *fakeJira) handleDoTransition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transition struct {
			ID string `json:"id"`
		} `json:"transition"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.PathValue("key")
	for _, t := range f.transitions[key] {
		if t.ID == body.Transition.ID {
			f.issues[key]["status"] = map[string]any{"name": t.To.Name}
			f.transitioned = append(f.transitioned, t.ID)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, "bad transition", http.StatusBadRequest)
}

func (f *fakeJira) handleComments(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeTestJSON(w, http.StatusOK, map[string]any{"comments": f.comments[r.PathValue("key")]})
}

func (f *fakeJira) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.PathValue("key")
	if _, ok := f.issues[key]; !ok {
		http.Error(w, "missing", http.StatusNotFound)
		return
	}
	c := map[string]any{
		"id":      strconv.Itoa(len(f.comments[key]) + 1),
		"body":    body["body"],
		"author":  map[string]any{"displayName": "Sprint Bot"},
		"created": fakeCreated,
	}
	f.comments[key] = append(f.comments[key], c)
	writeTestJSON(w, http.StatusCreated, c)
}

func (f *fakeJira) handleAssign(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigns = append(f.assigns, body)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeJira) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jql := r.URL.Query().Get("jql")
	var issues []map[string]any
	for key := range f.issues {
		if strings.Contains(jql, "project = ") {
			project := strings.Fields(strings.TrimPrefix(jql, "project = "))[0]
			if !strings.HasPrefix(key, project+"-") {
				continue
			}
		}
		issues = append(issues, f.issueJSON(key))
	}
	max, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if max > 0 && len(issues) > max {
		issues = issues[:max]
	}
	writeTestJSON(w, http.StatusOK, map[string]any{"startAt": 0, "maxResults": max, "total": len(issues), "issues": issues})
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
