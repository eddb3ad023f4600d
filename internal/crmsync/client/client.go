// Package client provides the HTTP client for the external CRM.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"marine_leads_backend/platform/logger"

	"golang.org/x/time/rate"
)

const (
	apiVersion   = "2021-07-28"
	maxReplySize = 1 << 20
)

// Call is one CRM request.
type Call struct {
	Operation      string
	Method         string
	Endpoint       string
	Body           map[string]any
	IdempotencyKey string
}

// Reply is the CRM response. Non-2xx statuses are replies, not errors.
type Reply struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r Reply) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// CRM executes calls against the CRM.
type CRM interface {
	Do(ctx context.Context, call Call) (Reply, error)
}

// Config holds connection settings.
type Config struct {
	BaseURL   string
	APIKey    string
	RateLimit float64
	Timeout   time.Duration
}

// Client is the HTTP CRM client. Outbound calls share one token bucket.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a CRM client.
func New(cfg Config, log *logger.Logger) *Client {
	limit := rate.Limit(cfg.RateLimit)
	burst := int(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(limit, burst),
		log:        log,
	}
}

// Do sends one call. Transport failures are errors; every HTTP status is
// returned as a Reply.
func (c *Client) Do(ctx context.Context, call Call) (Reply, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Reply{}, fmt.Errorf("crm rate limit: %w", err)
	}

	var body io.Reader
	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return Reply{}, fmt.Errorf("encode %s body: %w", call.Operation, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, c.baseURL+call.Endpoint, body)
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", call.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("crm request failed", "operation", call.Operation, "endpoint", call.Endpoint, "error", err)
		return Reply{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Debug("crm rejected call", "operation", call.Operation, "status", resp.StatusCode)
	}
	return Reply{StatusCode: resp.StatusCode, Body: raw}, nil
}

// ContactID extracts the contact id from an upsert reply.
func ContactID(body []byte) string {
	var doc struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if doc.Contact.ID != "" {
		return doc.Contact.ID
	}
	return doc.ID
}

// OpportunityID extracts the opportunity id from a create reply.
func OpportunityID(body []byte) string {
	var doc struct {
		Opportunity struct {
			ID string `json:"id"`
		} `json:"opportunity"`
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if doc.Opportunity.ID != "" {
		return doc.Opportunity.ID
	}
	return doc.ID
}
