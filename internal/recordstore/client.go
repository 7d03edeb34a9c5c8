// Package recordstore fetches and caches daily records from the portal
// backend. The backend is consumed only through its documented REST contract;
// failures map to apperr kinds and propagate to the caller without retries.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/dates"
	"github.com/perch/daybook/internal/models"
)

// Store is the read/write contract for daily records.
type Store interface {
	// ListSummaries returns all known date summaries. Safe to call repeatedly.
	ListSummaries(ctx context.Context) ([]models.DailySummary, error)
	// GetByDate returns the full record for a date, or apperr.ErrNotFound.
	GetByDate(ctx context.Context, date string) (*models.DailyRecord, error)
	// UpdateByDate persists a diary update and returns the updated record.
	UpdateByDate(ctx context.Context, date string, update models.DiaryUpdate) (*models.DailyRecord, error)
}

// Client implements Store over HTTP.
type Client struct {
	base     string
	timezone string
	token    string
	http     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the given base URL and IANA timezone name.
// A "/api" suffix is appended when missing, matching the portal convention.
func NewClient(baseURL, timezone string, opts ...ClientOption) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	c := &Client{
		base:     base,
		timezone: timezone,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// withTimezone appends the timezone query parameter to an API path.
func (c *Client) withTimezone(path string) string {
	join := "?"
	if strings.Contains(path, "?") {
		join = "&"
	}
	return c.base + path + join + "timezone=" + url.QueryEscape(c.timezone)
}

// errBody is the error envelope returned by the backend.
type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e errBody) text() string {
	for _, s := range []string{e.Message, e.Error, e.Detail} {
		if s != "" {
			return s
		}
	}
	return ""
}

// do issues a request and decodes the JSON response into out (when non-nil).
// Non-2xx statuses map to apperr kinds; transport failures map to ErrNetwork.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("recordstore: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("recordstore: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if kind := apperr.FromStatus(resp.StatusCode); kind != nil {
		var eb errBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if msg := eb.text(); msg != "" {
			return fmt.Errorf("%w: %s", kind, msg)
		}
		return fmt.Errorf("%w: request failed (%d)", kind, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperr.ErrServer, err)
	}
	return nil
}

// ListSummaries fetches GET /daily/summaries. The backend has returned both
// a bare array and an {items: [...]} envelope across revisions; both decode.
func (c *Client) ListSummaries(ctx context.Context) ([]models.DailySummary, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.withTimezone("/daily/summaries"), nil, &raw); err != nil {
		return nil, err
	}

	var list []models.DailySummary
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var envelope struct {
		Items []models.DailySummary `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Items != nil {
		return envelope.Items, nil
	}
	return []models.DailySummary{}, nil
}

// GetByDate fetches GET /daily/{date}.
func (c *Client) GetByDate(ctx context.Context, date string) (*models.DailyRecord, error) {
	if !dates.Valid(date) {
		return nil, fmt.Errorf("%w: invalid date %q", apperr.ErrBadRequest, date)
	}
	var rec models.DailyRecord
	if err := c.do(ctx, http.MethodGet, c.withTimezone("/daily/"+date), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateByDate issues PUT /daily/{date} with the diary update payload.
func (c *Client) UpdateByDate(ctx context.Context, date string, update models.DiaryUpdate) (*models.DailyRecord, error) {
	if !dates.Valid(date) {
		return nil, fmt.Errorf("%w: invalid date %q", apperr.ErrBadRequest, date)
	}
	var rec models.DailyRecord
	if err := c.do(ctx, http.MethodPut, c.withTimezone("/daily/"+date), update, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ Store = (*Client)(nil)
