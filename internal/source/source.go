package source

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Source type tags, stored on every tracker row
const (
	TypeJira       = "JIRA"
	TypeConfluence = "CONFLUENCE"
)

// Item is one candidate document fetched from a source.
// UpdatedAt is carried as the raw timestamp string the source reported;
// sources differ in whether it includes a timezone offset, so parsing is
// deferred to the change detector.
type Item struct {
	ID        string
	Type      string
	UpdatedAt string
	Content   string
}

// Source fetches candidate items from one external system.
// A fetch failure is a genuine connectivity or auth problem; an empty
// result set is a normal return, never an error.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// newHTTPClient builds the retrying HTTP client the adapters share
func newHTTPClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	client.Logger = nil
	return client
}
