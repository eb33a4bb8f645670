// Package fulfillment talks to the upstream resellers: the data-bundle
// provider and the SMM panel. Both are opaque JSON-over-HTTPS APIs
// that answer with an explicit success/failed status plus a provider
// order reference.
package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrFulfillmentUnavailable = errors.New("fulfillment provider unavailable")

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result is the normalized reseller answer. An explicit failed Status
// is a definitive outcome; transport problems surface as
// ErrFulfillmentUnavailable instead and must be treated as ambiguous.
type Result struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ProviderRef string `json:"provider_ref"`
}

func (r *Result) Delivered() bool { return r.Status == StatusSuccess }

type BundleOrder struct {
	Network   string `json:"network"`
	VolumeMB  int    `json:"volume_mb"`
	Phone     string `json:"phone"`
	Reference string `json:"reference"`
}

type SMMOrder struct {
	ServiceID int    `json:"service"`
	Link      string `json:"link"`
	Quantity  int    `json:"quantity"`
	Reference string `json:"reference"`
}

type Client struct {
	bundleBaseURL string
	bundleAPIKey  string
	smmBaseURL    string
	smmAPIKey     string
	httpClient    *http.Client
}

func NewClient(bundleBaseURL, bundleAPIKey, smmBaseURL, smmAPIKey string) *Client {
	return &Client{
		bundleBaseURL: bundleBaseURL,
		bundleAPIKey:  bundleAPIKey,
		smmBaseURL:    smmBaseURL,
		smmAPIKey:     smmAPIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OrderBundle places a data-bundle top-up with the reseller.
func (c *Client) OrderBundle(ctx context.Context, order BundleOrder) (*Result, error) {
	return c.place(ctx, c.bundleBaseURL+"/api/orders", c.bundleAPIKey, order)
}

// OrderSMM places an order with the SMM panel.
func (c *Client) OrderSMM(ctx context.Context, order SMMOrder) (*Result, error) {
	return c.place(ctx, c.smmBaseURL+"/api/v2/order", c.smmAPIKey, order)
}

func (c *Client) place(ctx context.Context, url, apiKey string, payload any) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: http %d", ErrFulfillmentUnavailable, resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrFulfillmentUnavailable, err)
	}
	return &res, nil
}
