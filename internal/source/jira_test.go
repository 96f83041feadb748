package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const jiraSearchFixture = `{
	"issues": [
		{
			"key": "PROJ-1",
			"fields": {
				"summary": "Login page broken",
				"description": "Users cannot log in since the deploy.",
				"updated": "2024-03-01T10:15:00.000+0800",
				"status": {"name": "In Progress"}
			}
		},
		{
			"key": "PROJ-2",
			"fields": {
				"summary": "Add dark mode",
				"description": "",
				"updated": "2024-02-28T08:00:00.000+0800",
				"status": {"name": "To Do"}
			}
		}
	]
}`

// TestJiraSource_Fetch verifies request shape and item mapping.
func TestJiraSource_Fetch(t *testing.T) {
	var gotPath, gotJQL, gotMaxResults, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotJQL = r.URL.Query().Get("jql")
		gotMaxResults = r.URL.Query().Get("maxResults")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(jiraSearchFixture))
	}))
	defer server.Close()

	src := NewJiraSource(server.URL, "bot@example.com", "token-123", "PROJ", 30, 100, testLogger())

	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if gotPath != "/rest/api/2/search" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if !strings.Contains(gotJQL, "project = 'PROJ'") || !strings.Contains(gotJQL, "updated >= '-30d'") {
		t.Errorf("unexpected jql: %s", gotJQL)
	}
	if gotMaxResults != "100" {
		t.Errorf("unexpected maxResults: %s", gotMaxResults)
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Errorf("expected basic auth, got %q", gotAuth)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ID != "PROJ-1" || first.Type != TypeJira {
		t.Errorf("unexpected item identity: %+v", first)
	}
	if first.UpdatedAt != "2024-03-01T10:15:00.000+0800" {
		t.Errorf("expected raw updated timestamp preserved, got %s", first.UpdatedAt)
	}
	if !strings.Contains(first.Content, "Login page broken") || !strings.Contains(first.Content, "In Progress") {
		t.Errorf("unexpected content: %s", first.Content)
	}

	// Empty description rendered as "none"
	if !strings.Contains(items[1].Content, "Description: none") {
		t.Errorf("expected empty description rendered as none, got %s", items[1].Content)
	}
}

// TestJiraSource_FetchEmpty verifies no results is a normal return.
func TestJiraSource_FetchEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issues": []}`))
	}))
	defer server.Close()

	src := NewJiraSource(server.URL, "bot@example.com", "token-123", "PROJ", 30, 100, testLogger())

	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("empty result set must not be an error, got: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

// TestJiraSource_FetchAuthFailure verifies an auth failure surfaces as
// an error for the engine to degrade on.
func TestJiraSource_FetchAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errorMessages": ["auth required"]}`))
	}))
	defer server.Close()

	src := NewJiraSource(server.URL, "bot@example.com", "bad-token", "PROJ", 30, 100, testLogger())

	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("expected an error for an unauthorized response")
	}
}
