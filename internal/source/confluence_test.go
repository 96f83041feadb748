package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const confluenceContentFixture = `{
	"results": [
		{
			"id": "10001",
			"title": "Team Handbook",
			"version": {"when": "2024-03-01T10:15:00.000Z"},
			"body": {"storage": {"value": "<h1>Welcome</h1><p>This is   the <b>handbook</b>.</p>"}}
		},
		{
			"id": "10002",
			"title": "Ancient Notes",
			"version": {"when": "2020-01-01T00:00:00.000Z"},
			"body": {"storage": {"value": "<p>old</p>"}}
		},
		{
			"id": "10003",
			"title": "Broken Page",
			"version": {"when": "not-a-timestamp"},
			"body": {"storage": {"value": "<p>whatever</p>"}}
		}
	]
}`

// TestConfluenceSource_Fetch verifies filtering, HTML stripping, and
// item mapping.
func TestConfluenceSource_Fetch(t *testing.T) {
	var gotPath, gotSpace, gotExpand string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSpace = r.URL.Query().Get("spaceKey")
		gotExpand = r.URL.Query().Get("expand")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(confluenceContentFixture))
	}))
	defer server.Close()

	src := NewConfluenceSource(server.URL, "bot@example.com", "token-123", "TEAM", 30, 100, testLogger())
	src.now = func() time.Time {
		return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	}

	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if gotPath != "/wiki/rest/api/content" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotSpace != "TEAM" {
		t.Errorf("unexpected space key: %s", gotSpace)
	}
	if gotExpand != "version,body.storage" {
		t.Errorf("unexpected expand: %s", gotExpand)
	}

	// Old page and unparsable page filtered out
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.ID != "10001" || item.Type != TypeConfluence {
		t.Errorf("unexpected item identity: %+v", item)
	}
	if item.UpdatedAt != "2024-03-01T10:15:00.000Z" {
		t.Errorf("expected raw version timestamp preserved, got %s", item.UpdatedAt)
	}
	if strings.Contains(item.Content, "<") {
		t.Errorf("expected HTML stripped, got %s", item.Content)
	}
	if !strings.Contains(item.Content, "Title: Team Handbook") {
		t.Errorf("expected title in content, got %s", item.Content)
	}
	if !strings.Contains(item.Content, "Welcome This is the handbook") {
		t.Errorf("expected collapsed whitespace text, got %s", item.Content)
	}
}

// TestConfluenceSource_FetchServerError verifies a hard failure
// surfaces as an error.
func TestConfluenceSource_FetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	src := NewConfluenceSource(server.URL, "bot@example.com", "token-123", "TEAM", 30, 100, testLogger())

	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("expected an error for a forbidden response")
	}
}

// TestStripHTML covers tag removal, whitespace collapsing, and the
// content cap.
func TestStripHTML(t *testing.T) {
	got := stripHTML("<h1>Title</h1> <p>some\n\n  <em>text</em></p>")
	if got != "Title some text" {
		t.Errorf("unexpected stripped text: %q", got)
	}

	long := strings.Repeat("word ", 2000)
	capped := stripHTML(long)
	if len([]rune(capped)) != maxContentChars {
		t.Errorf("expected content capped at %d runes, got %d", maxContentChars, len([]rune(capped)))
	}

	if stripHTML("") != "" {
		t.Error("expected empty input to stay empty")
	}
}
