package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// JiraSource fetches recently updated issues from one Jira project
type JiraSource struct {
	baseURL    string
	email      string
	apiToken   string
	projectKey string
	sinceDays  int
	maxResults int
	client     *retryablehttp.Client
	logger     *slog.Logger
}

// NewJiraSource creates a Jira source adapter
func NewJiraSource(baseURL, email, apiToken, projectKey string, sinceDays, maxResults int, logger *slog.Logger) *JiraSource {
	return &JiraSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		projectKey: projectKey,
		sinceDays:  sinceDays,
		maxResults: maxResults,
		client:     newHTTPClient(),
		logger:     logger,
	}
}

// Name returns the source name for logging
func (s *JiraSource) Name() string {
	return "jira"
}

// jiraSearchResponse is the subset of the search API response we use
type jiraSearchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Updated     string `json:"updated"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	} `json:"issues"`
}

// Fetch returns issues updated within the configured window, newest
// first, capped at maxResults. There is no pagination loop; the cap is
// the page.
func (s *JiraSource) Fetch(ctx context.Context) ([]Item, error) {
	jql := fmt.Sprintf("project = '%s' AND updated >= '-%dd' ORDER BY updated DESC", s.projectKey, s.sinceDays)

	params := url.Values{}
	params.Set("jql", jql)
	params.Set("maxResults", strconv.Itoa(s.maxResults))
	params.Set("fields", "summary,description,status,updated")

	endpoint := s.baseURL + "/rest/api/2/search?" + params.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build jira request: %w", err)
	}
	req.SetBasicAuth(s.email, s.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("jira search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var search jiraSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, fmt.Errorf("failed to decode jira response: %w", err)
	}

	items := make([]Item, 0, len(search.Issues))
	for _, issue := range search.Issues {
		description := issue.Fields.Description
		if description == "" {
			description = "none"
		}

		items = append(items, Item{
			ID:        issue.Key,
			Type:      TypeJira,
			UpdatedAt: issue.Fields.Updated,
			Content: fmt.Sprintf("Title: %s\n\nDescription: %s\n\nStatus: %s",
				issue.Fields.Summary, description, issue.Fields.Status.Name),
		})
	}

	s.logger.Info("fetched jira issues", "project", s.projectKey, "count", len(items))

	return items, nil
}
