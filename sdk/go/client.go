package callsheetsdk

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

// Client is a minimal Callsheet HTTP API client.
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

// Filter is one conjunctive condition over a roster field.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// Campaign represents the API campaign model.
type Campaign struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CreatedAt  string   `json:"created_at"`
	Filters    []Filter `json:"filters"`
	ContactIDs []string `json:"contact_ids"`
}

// Totals are aggregate call counts for a campaign.
type Totals struct {
	Total     int  `json:"total"`
	Made      int  `json:"made"`
	Answered  int  `json:"answered"`
	Missed    int  `json:"missed"`
	Completed bool `json:"completed"`
}

// NextContact is the queue navigation result.
type NextContact struct {
	ContactID string `json:"contact_id"`
	Done      bool   `json:"done"`
	Strategy  string `json:"strategy"`
}

// ReportRow is one flat row from the report boundary.
type ReportRow struct {
	FullName     string `json:"full_name"`
	Outcome      string `json:"outcome"`
	Response     string `json:"response"`
	Timestamp    string `json:"timestamp"`
	StudentID    string `json:"student_id"`
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
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

// CreateCampaign creates a campaign from the server's configured roster.
func (c *Client) CreateCampaign(ctx context.Context, name string, filters []Filter) (Campaign, error) {
	body := map[string]any{
		"name":    name,
		"filters": filters,
	}
	var resp Campaign
	err := c.do(ctx, http.MethodPost, "v0/campaigns", body, &resp)
	return resp, err
}

// ListCampaigns returns all campaigns.
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var resp []Campaign
	err := c.do(ctx, http.MethodGet, "v0/campaigns", nil, &resp)
	return resp, err
}

// GetCampaign fetches a campaign by id.
func (c *Client) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	var resp Campaign
	err := c.do(ctx, http.MethodGet, c.campaignPath(id, ""), nil, &resp)
	return resp, err
}

// DeleteCampaign removes a campaign and its progress.
func (c *Client) DeleteCampaign(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.campaignPath(id, ""), nil, nil)
}

// Next picks the next contact to call. Strategy is "unattempted" or
// "missed"; skipID excludes the contact just processed.
func (c *Client) Next(ctx context.Context, campaignID, strategy, skipID string) (NextContact, error) {
	endpoint := c.campaignPath(campaignID, "next")
	params := url.Values{}
	if strategy != "" {
		params.Set("strategy", strategy)
	}
	if skipID != "" {
		params.Set("skip_id", skipID)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp NextContact
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RecordCall records an outcome ("answered" or "no_answer") for a contact.
func (c *Client) RecordCall(ctx context.Context, campaignID, contactID, outcome string) error {
	body := map[string]any{
		"contact_id": contactID,
		"outcome":    outcome,
	}
	return c.do(ctx, http.MethodPost, c.campaignPath(campaignID, "calls"), body, nil)
}

// RecordSurvey records a survey answer for a contact.
func (c *Client) RecordSurvey(ctx context.Context, campaignID, contactID, answer string) error {
	body := map[string]any{
		"contact_id": contactID,
		"answer":     answer,
	}
	return c.do(ctx, http.MethodPost, c.campaignPath(campaignID, "survey-responses"), body, nil)
}

// ClearMissed resets no_answer outcomes for a retry pass.
func (c *Client) ClearMissed(ctx context.Context, campaignID string) error {
	return c.do(ctx, http.MethodPost, c.campaignPath(campaignID, "clear-missed"), nil, nil)
}

// Summary returns aggregate call totals.
func (c *Client) Summary(ctx context.Context, campaignID string) (Totals, error) {
	var resp Totals
	err := c.do(ctx, http.MethodGet, c.campaignPath(campaignID, "summary"), nil, &resp)
	return resp, err
}

// ReportRows returns the flat row set for the campaign.
func (c *Client) ReportRows(ctx context.Context, campaignID string) ([]ReportRow, error) {
	var resp struct {
		Rows []ReportRow `json:"rows"`
	}
	err := c.do(ctx, http.MethodGet, c.campaignPath(campaignID, "report/rows"), nil, &resp)
	return resp.Rows, err
}

// SummaryCSV downloads the per-contact summary report.
func (c *Client) SummaryCSV(ctx context.Context, campaignID string) (string, error) {
	return c.raw(ctx, c.campaignPath(campaignID, "report/summary.csv"))
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
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
	c.authorize(req)
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

func (c *Client) raw(ctx context.Context, endpoint string) (string, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return string(b), nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) campaignPath(id, p string) string {
	base := fmt.Sprintf("v0/campaigns/%s", url.PathEscape(id))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}
