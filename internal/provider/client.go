// Package provider wraps the external messaging API behind a small send
// client. The engine never sees HTTP details, only a message ID or a coded
// error.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Provider error codes the classifier keys on.
const (
	CodeRateLimited          = 429
	CodeRecipientUnreachable = 470
)

// SendResult is a successful provider acceptance.
type SendResult struct {
	MessageID string
}

// SendError is a provider rejection with its error code.
type SendError struct {
	Code    int
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Client sends one templated message per call.
type Client interface {
	SendTemplate(ctx context.Context, to, template string, params []string) (*SendResult, error)
}

// HTTPClient talks to the provider's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type sendRequest struct {
	To       string   `json:"to"`
	Template string   `json:"template"`
	Params   []string `json:"params"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

func (c *HTTPClient) SendTemplate(ctx context.Context, to, template string, params []string) (*SendResult, error) {
	payload, err := json.Marshal(sendRequest{To: to, Template: template, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode provider response: %w", err)
		}
		return nil, &SendError{Code: resp.StatusCode, Message: resp.Status}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && body.MessageID != "" {
		return &SendResult{MessageID: body.MessageID}, nil
	}

	code := body.Code
	if code == 0 {
		code = resp.StatusCode
	}
	return nil, &SendError{Code: code, Message: body.Message}
}

var _ Client = (*HTTPClient)(nil)
