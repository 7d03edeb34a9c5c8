// Package push manages the Web Push subscription lifecycle: capability and
// permission checks on the host side, and subscription upserts against the
// backend with stale-id cleanup.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/perch/daybook/internal/apperr"
)

// Keys is the Web Push encryption key material.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is the push subscription material held by the host device.
type Subscription struct {
	Endpoint string
	Keys     Keys
}

// FlexID decodes from either a JSON number or a JSON string; the backend has
// served both shapes for subscription ids.
type FlexID string

// UnmarshalJSON implements the tolerant decoding.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("push: id must be a string or a number")
	}
	*id = FlexID(n.String())
	return nil
}

// MarshalJSON writes the numeric shape when the id is numeric.
func (id FlexID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(id))
}

// Record is a backend subscription record.
type Record struct {
	ID              FlexID `json:"id,omitempty"`
	CaregiverID     int    `json:"caregiver_id"`
	Platform        string `json:"platform"`
	EndpointOrToken string `json:"endpointOrToken"`
	Keys            Keys   `json:"keys"`
}

// Client talks to the backend subscription endpoints.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient creates a subscriptions client. A "/api" suffix is appended to
// the base URL when missing.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{base: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 30 * time.Second}}
	if !strings.HasSuffix(c.base, "/api") {
		c.base += "/api"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("push: encode body: %w", err)
	}
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
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
		var eb struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		for _, msg := range []string{eb.Detail, eb.Message, eb.Error} {
			if msg != "" {
				return fmt.Errorf("%w: %s", kind, msg)
			}
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

// Create issues POST /subscriptions.
func (c *Client) Create(ctx context.Context, rec Record) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPost, c.base+"/subscriptions", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update issues PUT /subscriptions/{id}.
func (c *Client) Update(ctx context.Context, id string, rec Record) (*Record, error) {
	var out Record
	u := c.base + "/subscriptions/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, u, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByCaregiver issues GET /subscriptions/{caregiverID}.
func (c *Client) ListByCaregiver(ctx context.Context, caregiverID int) ([]Record, error) {
	var out []Record
	u := c.base + "/subscriptions/" + strconv.Itoa(caregiverID)
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
