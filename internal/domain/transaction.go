/**
 * @description
 * This file defines the core domain models for the adapter. These structs
 * represent the transaction records, account entities and data transfer objects
 * (DTOs) used throughout the service's business logic, database interactions,
 * and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (satoshi),
 *   which avoids floating-point inaccuracies with financial data. Conversion
 *   to and from display-precision decimals happens in internal/money.
 * - Raw payloads from BlockCypher and Rehive are retained verbatim as
 *   `json.RawMessage` blobs for audit and debugging.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction distinguishes inbound (receive) from outbound (send) transactions.
type Direction string

const (
	DirectionReceive Direction = "receive"
	DirectionSend    Direction = "send"
)

// Transaction is the central record for any money movement handled by the
// adapter. Receive transactions are created by the confirmation engine when a
// webhook arrives for a watched address; send transactions are created
// synchronously by the send endpoint and broadcast through BlockCypher.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	Direction       Direction       `json:"direction"`
	UserAccountID   *uuid.UUID      `json:"user_account_id,omitempty"`
	ExternalID      *string         `json:"external_id,omitempty"` // network tx hash, nil until broadcast/observed
	LedgerCode      *string         `json:"ledger_code,omitempty"` // Rehive tx_code, set at most once
	Recipient       string          `json:"recipient"`
	Amount          int64           `json:"amount"` // in satoshi
	Currency        string          `json:"currency"`
	Issuer          string          `json:"issuer"`
	Status          Status          `json:"status"`
	ProviderPayload json.RawMessage `json:"provider_payload,omitempty"`
	LedgerResponse  json.RawMessage `json:"ledger_response,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SendRequest is the DTO for outbound transfer API requests. Amount is given
// as a display-precision decimal string (e.g. "0.005") and converted to
// satoshi at the boundary.
type SendRequest struct {
	LedgerCode string         `json:"tx_code"`
	Recipient  string         `json:"to_user"`
	Amount     string         `json:"amount"`
	Currency   string         `json:"currency"`
	Issuer     string         `json:"issuer"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// UserAccount links a Rehive user to a locally watched deposit address.
// Passive account, receive only.
type UserAccount struct {
	ID        uuid.UUID      `json:"id"`
	LedgerID  string         `json:"ledger_id"` // id identifying the user on Rehive
	Address   string         `json:"address"`   // crypto address
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// OperatingAccount is a hot-wallet account used to originate outbound
// transfers on behalf of users. It carries the secret material needed to sign
// transactions locally.
type OperatingAccount struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	LedgerID  string         `json:"ledger_id"`
	Address   string         `json:"address"`
	SecretKey string         `json:"-"` // hex-encoded private key
	IsDefault bool           `json:"is_default"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OperatingAccountDetails is the read view returned by the account endpoint.
type OperatingAccountDetails struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}
