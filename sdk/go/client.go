package translinesdk

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
)

// Client is a minimal Transline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// DeployRequest registers the document of an activity.
type DeployRequest struct {
	ActivityID       string `json:"activity_id"`
	Text             string `json:"text"`
	Instructions     string `json:"instructions,omitempty"`
	LanguageFrom     string `json:"language_from"`
	LanguageTo       string `json:"language_to"`
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty"`
	TranslatorCount  int    `json:"translator_count,omitempty"`
	ReviewerAPIKey   string `json:"reviewer_api_key,omitempty"`
}

// Document represents the API document model.
type Document struct {
	ID           int64  `json:"id"`
	ActivityID   string `json:"activity_id"`
	Text         string `json:"text"`
	Instructions string `json:"instructions"`
	LanguageFrom string `json:"language_from"`
	LanguageTo   string `json:"language_to"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// Deployment is the result of a deploy call.
type Deployment struct {
	Document Document `json:"document"`
	URL      string   `json:"url"`
}

// Process represents the caller's process on an activity.
type Process struct {
	ActivityID     string `json:"activity_id"`
	Role           string `json:"role"`
	UserID         string `json:"user_id"`
	Editable       bool   `json:"editable"`
	TranslatedText string `json:"translated_text"`
	Versions       int    `json:"versions"`
	LastModifiedAt string `json:"last_modified_at"`
	LastModifiedBy string `json:"last_modified_by"`
}

// Status is the role-shaped view of an activity.
type Status struct {
	Text           string `json:"text"`
	Instructions   string `json:"instructions"`
	TranslatedText string `json:"translated_text"`
	Status         string `json:"status"`
}

// Mutation reports whether an operation was applied and the resulting status.
type Mutation struct {
	Applied bool   `json:"applied"`
	Status  Status `json:"status"`
}

// Version is one saved text version.
type Version struct {
	Text       string `json:"text"`
	CapturedAt string `json:"captured_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ActivityID string         `json:"activity_id"`
	Role       string         `json:"role"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Deploy registers a document.
func (c *Client) Deploy(ctx context.Context, req DeployRequest) (Deployment, error) {
	var resp Deployment
	err := c.do(ctx, http.MethodPost, "v0/activities", req, &resp)
	return resp, err
}

// OpenProcess opens or fetches the caller's process. An empty userIdentifier
// lets the server use the caller's credentials.
func (c *Client) OpenProcess(ctx context.Context, activityID, userIdentifier string) (Process, error) {
	var body any
	if userIdentifier != "" {
		body = map[string]any{"user_identifier": userIdentifier}
	}
	var resp Process
	err := c.do(ctx, http.MethodPost, c.activityPath(activityID, "process"), body, &resp)
	return resp, err
}

// ChangeText changes the text of the caller's process.
func (c *Client) ChangeText(ctx context.Context, activityID, text string) (Mutation, error) {
	var resp Mutation
	err := c.do(ctx, http.MethodPatch, c.activityPath(activityID, "process"), map[string]any{"text": text}, &resp)
	return resp, err
}

// Restore undoes the most recent change.
func (c *Client) Restore(ctx context.Context, activityID string) (Mutation, error) {
	var resp Mutation
	err := c.do(ctx, http.MethodPost, c.activityPath(activityID, "process/restore"), nil, &resp)
	return resp, err
}

// Complete completes the caller's process and the document.
func (c *Client) Complete(ctx context.Context, activityID string) (Mutation, error) {
	var resp Mutation
	err := c.do(ctx, http.MethodPost, c.activityPath(activityID, "complete"), nil, &resp)
	return resp, err
}

// Status returns the caller's view of an activity.
func (c *Client) Status(ctx context.Context, activityID string) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, c.activityPath(activityID, "status"), nil, &resp)
	return resp, err
}

// History returns the saved versions of the caller's process, oldest first.
func (c *Client) History(ctx context.Context, activityID string) ([]Version, error) {
	var resp struct {
		Items []Version `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.activityPath(activityID, "history"), nil, &resp)
	return resp.Items, err
}

// Events returns recent events of an activity, newest first.
func (c *Client) Events(ctx context.Context, activityID, evtType string, limit int) ([]Event, error) {
	q := url.Values{}
	if evtType != "" {
		q.Set("type", evtType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := c.activityPath(activityID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) activityPath(activityID, p string) string {
	return fmt.Sprintf("v0/activities/%s/%s", url.PathEscape(activityID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
