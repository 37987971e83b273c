// Package trendfindersdk is a minimal HTTP client for the Trendfinder API.
package trendfindersdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running Trendfinder server.
type Client struct {
	BaseURL    string
	DebugKey   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: 10 * time.Second,
	}
}

// Params are the supported query parameters. Zero values are omitted.
type Params struct {
	Country   string
	StartDate string
	EndDate   string

	Page     int
	PageSize int

	SortBy  string
	SortDir string

	Q            string
	EventType    string
	SubEventType string
	Actor1       string
	Actor2       string
}

// Envelope mirrors the API response.
type Envelope struct {
	Meta Meta             `json:"meta"`
	Data []map[string]any `json:"data"`
}

type Meta struct {
	Page          int               `json:"page"`
	PageSize      int               `json:"page_size"`
	Total         int64             `json:"total"`
	TotalPages    int64             `json:"total_pages"`
	Sort          Sort              `json:"sort"`
	Filters       map[string]string `json:"filters"`
	CorrelationID string            `json:"correlation_id"`
	Debug         map[string]any    `json:"debug"`
}

type Sort struct {
	By  string `json:"by"`
	Dir string `json:"dir"`
}

// Detail is one field-level violation from a 400 response.
type Detail struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Received   string `json:"received"`
}

// APIError is a non-200 response decoded into its error envelope.
type APIError struct {
	Status        int
	Code          string   `json:"error"`
	Message       string   `json:"message"`
	Details       []Detail `json:"details"`
	CorrelationID string   `json:"correlation_id"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s (%d violations)", e.Code, e.Message, len(e.Details))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Query runs one request against GET /trendfinder.
func (c *Client) Query(ctx context.Context, p Params) (*Envelope, error) {
	values := url.Values{}
	set := func(k, v string) {
		if v != "" {
			values.Set(k, v)
		}
	}
	set("country", p.Country)
	set("start_date", p.StartDate)
	set("end_date", p.EndDate)
	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(p.PageSize))
	}
	set("sort_by", p.SortBy)
	set("sort_dir", p.SortDir)
	set("q", p.Q)
	set("event_type", p.EventType)
	set("sub_event_type", p.SubEventType)
	set("actor1", p.Actor1)
	set("actor2", p.Actor2)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/trendfinder?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.DebugKey != "" {
		req.Header.Set("X-Debug-Key", c.DebugKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: res.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil {
			return nil, fmt.Errorf("unexpected status %d: %s", res.StatusCode, string(data))
		}
		return nil, apiErr
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
