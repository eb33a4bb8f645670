// Package gateway is the client for the hosted-payment provider.
// Charges are initialized with a caller-supplied reference; the
// provider later confirms them either by a signed webhook push or by
// an explicit verify-by-reference call.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sikabot/internal/model"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrVerifyFailed       = errors.New("payment not confirmed by gateway")
)

const StatusSuccess = "success"

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type InitializeRequest struct {
	Amount      model.Pesewas     `json:"amount"` // minor units, as the gateway expects
	Email       string            `json:"email"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type VerifyData struct {
	Status    string        `json:"status"`
	Reference string        `json:"reference"`
	Amount    model.Pesewas `json:"amount"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// Initialize creates a hosted charge and returns the URL the user must
// visit to pay.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	var out struct {
		Status  bool             `json:"status"`
		Message string           `json:"message"`
		Data    InitializeResult `json:"data"`
	}
	if err := c.post(ctx, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, out.Message)
	}
	return &out.Data, nil
}

// Verify asks the gateway for the terminal status of a reference.
// Anything other than "success" comes back as ErrVerifyFailed; the
// caller reports it to the user and does not retry on its own.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyData, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	var out struct {
		Status  bool       `json:"status"`
		Message string     `json:"message"`
		Data    VerifyData `json:"data"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, out.Message)
	}
	if out.Data.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: status %q", ErrVerifyFailed, out.Data.Status)
	}
	return &out.Data, nil
}

// ValidateSignature checks the webhook header against
// hex(HMAC-SHA512(secret, raw body)). Comparison is exact; a mismatch
// means the event must be dropped unprocessed.
func (c *Client) ValidateSignature(rawBody []byte, headerSignature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(headerSignature))
}

// WebhookEvent is the subset of the webhook payload the engine needs.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string        `json:"reference"`
		Amount    model.Pesewas `json:"amount"`
		Status    string        `json:"status"`
	} `json:"data"`
}

const EventChargeSuccess = "charge.success"

func ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &ev, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	return nil
}
