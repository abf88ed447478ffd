/**
 * @description
 * This package provides a client for the BlockCypher API, covering the
 * build/verify/sign/broadcast transaction flow, balance queries and address
 * generation. Signing happens locally (see signer.go); only unsigned skeletons
 * and signatures ever cross the wire.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package blockcypher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL targets the Bitcoin main chain.
const DefaultBaseURL = "https://api.blockcypher.com/v1/btc/main"

// ErrVerification is returned when an unsigned transaction skeleton does not
// match the requested inputs and outputs. Nothing is broadcast in that case.
var ErrVerification = errors.New("transaction verification failed")

// Client is a client for the BlockCypher API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new BlockCypher client for the given API token.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Output is a requested transaction output.
type Output struct {
	Addresses []string `json:"addresses"`
	Value     int64    `json:"value"`
}

// Input is a requested transaction input, addressed by source account.
type Input struct {
	Addresses []string `json:"addresses"`
}

// TX is the subset of a BlockCypher transaction body the adapter inspects.
// Raw carries the full body for persistence.
type TX struct {
	Hash    string          `json:"hash"`
	Inputs  []Input         `json:"inputs"`
	Outputs []Output        `json:"outputs"`
	Raw     json.RawMessage `json:"-"`
}

// TXSkeleton is the build/sign/broadcast envelope used by the /txs endpoints.
type TXSkeleton struct {
	TX         TX       `json:"tx"`
	ToSign     []string `json:"tosign"`
	Signatures []string `json:"signatures,omitempty"`
	PubKeys    []string `json:"pubkeys,omitempty"`
	Errors     []struct {
		Error string `json:"error"`
	} `json:"errors,omitempty"`
}

type newTXRequest struct {
	Inputs        []Input  `json:"inputs"`
	Outputs       []Output `json:"outputs"`
	ChangeAddress string   `json:"change_address,omitempty"`
}

// NewTX asks BlockCypher to assemble an unsigned transaction skeleton paying
// the given outputs from the given source address, with change returned to
// changeAddress.
func (c *Client) NewTX(ctx context.Context, fromAddress string, outputs []Output, changeAddress string) (*TXSkeleton, error) {
	req := newTXRequest{
		Inputs:        []Input{{Addresses: []string{fromAddress}}},
		Outputs:       outputs,
		ChangeAddress: changeAddress,
	}
	return c.postSkeleton(ctx, "/txs/new", req)
}

// VerifyUnsignedTX checks the skeleton returned by NewTX against what was
// requested: every requested output must appear with the exact address and
// value, and any extra output must pay the change address. A skeleton failing
// this check must not be signed or broadcast.
func VerifyUnsignedTX(skel *TXSkeleton, wantOutputs []Output, changeAddress string) error {
	if skel == nil {
		return fmt.Errorf("%w: no skeleton", ErrVerification)
	}
	remaining := make([]Output, len(wantOutputs))
	copy(remaining, wantOutputs)

	for _, out := range skel.TX.Outputs {
		if len(out.Addresses) != 1 {
			return fmt.Errorf("%w: output with %d addresses", ErrVerification, len(out.Addresses))
		}
		addr := out.Addresses[0]
		matched := false
		for i, want := range remaining {
			if len(want.Addresses) == 1 && want.Addresses[0] == addr && want.Value == out.Value {
				remaining = append(remaining[:i], remaining[i+1:]...)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if addr != changeAddress {
			return fmt.Errorf("%w: unexpected output to %s", ErrVerification, addr)
		}
	}
	if len(remaining) > 0 {
		return fmt.Errorf("%w: %d requested outputs missing from skeleton", ErrVerification, len(remaining))
	}
	return nil
}

// SendTX broadcasts a signed skeleton. BlockCypher may report partial errors
// alongside a transaction hash; the skeleton is returned in either case so the
// caller can record whatever the network accepted.
func (c *Client) SendTX(ctx context.Context, skel *TXSkeleton) (*TXSkeleton, error) {
	return c.postSkeleton(ctx, "/txs/send", skel)
}

// Balance returns the total balance for an address in satoshi.
func (c *Client) Balance(ctx context.Context, address string) (int64, error) {
	body, err := c.get(ctx, "/addrs/"+url.PathEscape(address)+"/balance")
	if err != nil {
		return 0, err
	}
	var parsed struct {
		TotalBalance int64 `json:"total_balance"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode balance response: %w", err)
	}
	return parsed.TotalBalance, nil
}

// GeneratedAddress is the result of the address generation endpoint.
type GeneratedAddress struct {
	Address string `json:"address"`
	Public  string `json:"public"`
	Private string `json:"private"`
}

// GenerateAddress creates a fresh address for a new deposit account.
func (c *Client) GenerateAddress(ctx context.Context) (*GeneratedAddress, error) {
	body, err := c.do(ctx, "POST", "/addrs", nil, false)
	if err != nil {
		return nil, err
	}
	var addr GeneratedAddress
	if err := json.Unmarshal(body, &addr); err != nil {
		return nil, fmt.Errorf("failed to decode address response: %w", err)
	}
	return &addr, nil
}

func (c *Client) postSkeleton(ctx context.Context, path string, payload any) (*TXSkeleton, error) {
	body, err := c.do(ctx, "POST", path, payload, true)
	if err != nil {
		return nil, err
	}
	var skel TXSkeleton
	if err := json.Unmarshal(body, &skel); err != nil {
		return nil, fmt.Errorf("failed to decode skeleton response: %w", err)
	}
	skel.TX.Raw = extractRawTX(body)
	return &skel, nil
}

// extractRawTX pulls the raw "tx" object out of a skeleton body so it can be
// persisted verbatim on the transaction record.
func extractRawTX(body []byte) json.RawMessage {
	var envelope struct {
		TX json.RawMessage `json:"tx"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	return envelope.TX
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, "GET", path, nil, false)
}

// do executes a request. The /txs endpoints return 400 with an errors list
// while still carrying a tx body when a broadcast partially succeeds, so
// skeleton requests set tolerateClientError and interpret the body themselves.
func (c *Client) do(ctx context.Context, method, path string, payload any, tolerateClientError bool) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(b)
	}

	u := c.BaseURL + path
	if c.Token != "" {
		u += "?token=" + url.QueryEscape(c.Token)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 || (!tolerateClientError && resp.StatusCode >= 400) {
		return nil, fmt.Errorf("blockcypher api error: HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}
