// Package notion talks to the Notion REST API and keeps tracked databases
// in the shape the publisher expects.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fuomag9/notionsocial/internal/logging"
)

const (
	APIBaseURL = "https://api.notion.com/v1"
	APIVersion = "2022-06-28"

	maxSearchPages = 10
	// maxResponseBody caps how much of a response is read.
	maxResponseBody = 4 << 20
)

// APIError is a non-2xx answer of the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Notion API error (status %d, %s): %s", e.Status, e.Code, e.Message)
}

// Client is a minimal Notion API client. The access token is passed per
// call because one client serves every linked workspace.
type Client struct {
	httpClient *http.Client
	BaseURL    string
}

// NewClient creates a client using httpClient, or a 30 second default.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, BaseURL: APIBaseURL}
}

// RichText is a fragment of formatted text; only the plain text is kept.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// Icon is a page or database icon.
type Icon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji,omitempty"`
}

// Database is a Notion database with its column definitions.
type Database struct {
	ID             string     `json:"id"`
	Title          []RichText `json:"title"`
	Icon           *Icon      `json:"icon"`
	LastEditedTime time.Time  `json:"last_edited_time"`
	Properties     Properties `json:"properties"`
}

// TitleText joins the title fragments.
func (d *Database) TitleText() string {
	var b strings.Builder
	for _, t := range d.Title {
		b.WriteString(t.PlainText)
	}
	return b.String()
}

// Emoji returns the emoji icon, if the database has one.
func (d *Database) Emoji() string {
	if d.Icon == nil || d.Icon.Type != "emoji" {
		return ""
	}
	return d.Icon.Emoji
}

func (c *Client) do(ctx context.Context, token, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = logging.Truncate(string(respBody), 256)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// databasePath keeps a caller supplied id inside one path segment.
func databasePath(databaseID string) string {
	return "/databases/" + url.PathEscape(databaseID)
}

// RetrieveDatabase fetches a database and its columns.
func (c *Client) RetrieveDatabase(ctx context.Context, token, databaseID string) (*Database, error) {
	var db Database
	if err := c.do(ctx, token, http.MethodGet, databasePath(databaseID), nil, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

// UpdateDatabase creates or changes the given columns. Columns not named
// are left untouched.
func (c *Client) UpdateDatabase(ctx context.Context, token, databaseID string, properties map[string]PropertySchema) (*Database, error) {
	body := map[string]any{"properties": properties}
	var db Database
	if err := c.do(ctx, token, http.MethodPatch, databasePath(databaseID), body, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

type searchResponse struct {
	Results    []Database `json:"results"`
	HasMore    bool       `json:"has_more"`
	NextCursor *string    `json:"next_cursor"`
}

// SearchDatabases lists the databases shared with the integration, most
// recently edited first.
func (c *Client) SearchDatabases(ctx context.Context, token string) ([]Database, error) {
	var all []Database
	var cursor *string

	for range maxSearchPages {
		body := map[string]any{
			"filter":    map[string]string{"property": "object", "value": "database"},
			"sort":      map[string]string{"direction": "descending", "timestamp": "last_edited_time"},
			"page_size": 100,
		}
		if cursor != nil {
			body["start_cursor"] = *cursor
		}

		var resp searchResponse
		if err := c.do(ctx, token, http.MethodPost, "/search", body, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}
