/**
 * @description
 * This package provides a client for the Rehive platform's admin transaction
 * API. It encapsulates the logic for making authenticated HTTP requests to
 * Rehive's endpoints, handling request body construction, and parsing
 * responses.
 *
 * Transport-level failures (connect, timeout) surface as ordinary errors;
 * semantic rejections (non-2xx responses) surface as *APIError carrying the
 * HTTP status and the verbatim response body so callers can distinguish the
 * two and persist the body for audit.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package rehiveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the Rehive admin API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new Rehive API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ReceiveRequest is the payload for registering an inbound transaction.
// FromReference carries the network hash so Rehive can deduplicate.
type ReceiveRequest struct {
	Recipient     string         `json:"recipient"`
	Amount        int64          `json:"amount"` // in minor units
	Currency      string         `json:"currency"`
	Issuer        string         `json:"issuer"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	FromReference string         `json:"from_reference"`
}

// UpdateRequest is the payload for updating a registered transaction's status.
type UpdateRequest struct {
	TxCode string `json:"tx_code"`
	Status string `json:"status"`
}

// APIError represents a non-2xx response from the Rehive API. Body is the
// verbatim response body.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rehive api error: HTTP %d: %s", e.StatusCode, string(e.Body))
}

// ReceiveResult is the parsed response of a successful receive registration.
type ReceiveResult struct {
	TxCode string
	Body   json.RawMessage
}

// CreateReceive registers an inbound transaction on Rehive and returns the
// assigned tx_code along with the raw response body.
func (c *Client) CreateReceive(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error) {
	body, err := c.post(ctx, "/admins/transactions/receive/", req)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data struct {
			TxCode string `json:"tx_code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode receive response: %w", err)
	}
	if parsed.Data.TxCode == "" {
		return nil, fmt.Errorf("receive response missing tx_code: %s", string(body))
	}
	return &ReceiveResult{TxCode: parsed.Data.TxCode, Body: body}, nil
}

// UpdateStatus posts a status change for a registered transaction and returns
// the raw response body.
func (c *Client) UpdateStatus(ctx context.Context, txCode, status string) (json.RawMessage, error) {
	return c.post(ctx, "/admins/transactions/update/", UpdateRequest{TxCode: txCode, Status: status})
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: bodyBytes}
	}
	return bodyBytes, nil
}
