package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-retryablehttp"
)

// Page bodies arrive as storage-format HTML; only the text is published
var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// maxContentChars bounds the text published per page
const maxContentChars = 5000

// ConfluenceSource fetches recently updated pages from one space
type ConfluenceSource struct {
	baseURL    string
	email      string
	apiToken   string
	spaceKey   string
	sinceDays  int
	maxResults int
	client     *retryablehttp.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewConfluenceSource creates a Confluence source adapter
func NewConfluenceSource(baseURL, email, apiToken, spaceKey string, sinceDays, maxResults int, logger *slog.Logger) *ConfluenceSource {
	return &ConfluenceSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		spaceKey:   spaceKey,
		sinceDays:  sinceDays,
		maxResults: maxResults,
		client:     newHTTPClient(),
		logger:     logger,
		now:        time.Now,
	}
}

// Name returns the source name for logging
func (s *ConfluenceSource) Name() string {
	return "confluence"
}

// confluenceContentResponse is the subset of the content API response we use
type confluenceContentResponse struct {
	Results []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Version struct {
			When string `json:"when"`
		} `json:"version"`
		Body struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
	} `json:"results"`
}

// Fetch returns pages in the space whose last version is within the
// configured window. The API call itself is capped at maxResults; pages
// older than the window are filtered out after the fetch.
func (s *ConfluenceSource) Fetch(ctx context.Context) ([]Item, error) {
	params := url.Values{}
	params.Set("spaceKey", s.spaceKey)
	params.Set("type", "page")
	params.Set("limit", strconv.Itoa(s.maxResults))
	params.Set("expand", "version,body.storage")

	endpoint := s.baseURL + "/wiki/rest/api/content?" + params.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build confluence request: %w", err)
	}
	req.SetBasicAuth(s.email, s.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("confluence content request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("confluence content returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var content confluenceContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode confluence response: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -s.sinceDays)

	items := make([]Item, 0, len(content.Results))
	for _, page := range content.Results {
		updated, err := dateparse.ParseAny(page.Version.When)
		if err != nil {
			s.logger.Warn("skipping page with unparsable version time",
				"page_id", page.ID, "when", page.Version.When, "error", err)
			continue
		}

		if updated.Before(cutoff) {
			continue
		}

		items = append(items, Item{
			ID:        page.ID,
			Type:      TypeConfluence,
			UpdatedAt: page.Version.When,
			Content:   fmt.Sprintf("Title: %s\n\nContent: %s", page.Title, stripHTML(page.Body.Storage.Value)),
		})
	}

	s.logger.Info("fetched confluence pages", "space", s.spaceKey, "count", len(items))

	return items, nil
}

// stripHTML reduces storage-format HTML to plain text, bounded at
// maxContentChars runes
func stripHTML(html string) string {
	text := htmlTagPattern.ReplaceAllString(html, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > maxContentChars {
		return string(runes[:maxContentChars])
	}
	return text
}
