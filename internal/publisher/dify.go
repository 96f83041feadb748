package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Publisher uploads one named document to the destination and returns
// its opaque document id. An empty id with a nil error never happens;
// failure is always an error.
type Publisher interface {
	Publish(ctx context.Context, name, content string) (string, error)
}

// UploadedWithoutID is returned when the API accepts the document but
// the response carries no recognizable id field
const UploadedWithoutID = "uploaded_without_id"

// DifyClient publishes documents into one Dify knowledge-base dataset
type DifyClient struct {
	apiURL    string
	apiKey    string
	datasetID string
	client    *retryablehttp.Client
	logger    *slog.Logger
}

// NewDifyClient creates a Dify publisher
func NewDifyClient(apiURL, apiKey, datasetID string, logger *slog.Logger) *DifyClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	client.Logger = nil

	return &DifyClient{
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		datasetID: datasetID,
		client:    client,
		logger:    logger,
	}
}

// difyDocumentResponse covers the id field variants Dify has returned
// across API versions
type difyDocumentResponse struct {
	Document struct {
		ID string `json:"id"`
	} `json:"document"`
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
}

func (r *difyDocumentResponse) documentID() string {
	switch {
	case r.Document.ID != "":
		return r.Document.ID
	case r.ID != "":
		return r.ID
	default:
		return r.DocumentID
	}
}

// Publish uploads a document via the create_by_text endpoint. Some Dify
// deployments only expose the file-upload endpoint; a 404 or 405 from
// create_by_text triggers a multipart retry against create_by_file.
func (c *DifyClient) Publish(ctx context.Context, name, content string) (string, error) {
	c.logger.Debug("uploading document to dify", "name", name)

	resp, err := c.createByText(ctx, name, content)
	if err != nil {
		return "", err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		c.logger.Info("create_by_text unavailable, retrying as file upload", "name", name, "status", resp.StatusCode)
		resp, err = c.createByFile(ctx, name, content)
		if err != nil {
			return "", err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("dify upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc difyDocumentResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode dify response: %w", err)
	}

	docID := doc.documentID()
	if docID == "" {
		c.logger.Warn("document accepted but response carried no id", "name", name)
		return UploadedWithoutID, nil
	}

	c.logger.Debug("document uploaded", "name", name, "document_id", docID)
	return docID, nil
}

func (c *DifyClient) createByText(ctx context.Context, name, content string) (*http.Response, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"name":               name,
		"text":               content,
		"indexing_technique": "high_quality",
		"process_rule":       map[string]string{"mode": "automatic"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode dify payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/datasets/%s/document/create_by_text", c.apiURL, c.datasetID)

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build dify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dify upload request failed: %w", err)
	}
	return resp, nil
}

func (c *DifyClient) createByFile(ctx context.Context, name, content string) (*http.Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name+".txt")
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return nil, fmt.Errorf("failed to write multipart body: %w", err)
	}

	writer.WriteField("indexing_technique", "high_quality")
	writer.WriteField("process_rule", `{"mode":"automatic"}`)

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/datasets/%s/document/create_by_file", c.apiURL, c.datasetID)

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", endpoint, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to build dify file request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dify file upload request failed: %w", err)
	}
	return resp, nil
}
