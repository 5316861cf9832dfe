package notion

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeNotion serves a single database whose schema changes with PATCHes.
type fakeNotion struct {
	t     *testing.T
	mu    sync.Mutex
	id    string
	props map[string]map[string]any
	// failColumns makes a PATCH touching one of these columns fail.
	failColumns map[string]bool
	patches     []map[string]map[string]any
	srv         *httptest.Server
}

func newFakeNotion(t *testing.T, id string, props map[string]map[string]any) *fakeNotion {
	t.Helper()
	f := &fakeNotion{t: t, id: id, props: props, failColumns: map[string]bool{}}
	if f.props == nil {
		f.props = map[string]map[string]any{}
	}
	f.props["Name"] = map[string]any{"id": "title", "type": "title", "title": map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /databases/{id}", f.retrieve)
	mux.HandleFunc("PATCH /databases/{id}", f.update)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeNotion) client() *Client {
	c := NewClient(f.srv.Client())
	c.BaseURL = f.srv.URL
	return c
}

func (f *fakeNotion) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

func (f *fakeNotion) patch(i int) map[string]map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patches[i]
}

func (f *fakeNotion) checkRequest(w http.ResponseWriter, r *http.Request) bool {
	assert.Equal(f.t, "Bearer secret_tok", r.Header.Get("Authorization"))
	assert.Equal(f.t, APIVersion, r.Header.Get("Notion-Version"))
	if r.PathValue("id") != f.id {
		writeError(w, http.StatusNotFound, "object_not_found", "Could not find database with ID: "+r.PathValue("id"))
		return false
	}
	return true
}

func (f *fakeNotion) retrieve(w http.ResponseWriter, r *http.Request) {
	if !f.checkRequest(w, r) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeDatabase(w)
}

func (f *fakeNotion) update(w http.ResponseWriter, r *http.Request) {
	if !f.checkRequest(w, r) {
		return
	}
	var body struct {
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, body.Properties)

	for name := range body.Properties {
		if f.failColumns[name] {
			writeError(w, http.StatusBadRequest, "validation_error", "Cannot update property "+name)
			return
		}
	}
	for name, schema := range body.Properties {
		for typ, def := range schema {
			prop := map[string]any{"id": strings.ToLower(name), "name": name, "type": typ, typ: def}
			f.props[name] = prop
		}
	}
	f.writeDatabase(w)
}

func (f *fakeNotion) writeDatabase(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object":           "database",
		"id":               f.id,
		"title":            []map[string]any{{"plain_text": "Content"}, {"plain_text": " Calendar"}},
		"icon":             map[string]any{"type": "emoji", "emoji": "📆"},
		"last_edited_time": "2026-10-01T12:00:00.000Z",
		"properties":       f.props,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"object": "error", "status": status, "code": code, "message": message})
}

func selectProp(options ...string) map[string]any {
	opts := make([]map[string]any, 0, len(options))
	for _, o := range options {
		opts = append(opts, map[string]any{"id": "opt-" + o, "name": o, "color": "gray"})
	}
	return map[string]any{"id": "status", "type": "select", "select": map[string]any{"options": opts}}
}
