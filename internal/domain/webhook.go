package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// WebhookKind identifies which BlockCypher hook produced a delivery.
type WebhookKind string

const (
	// WebhookUnconfirmed is the unconfirmed-tx hook (zero confirmations).
	WebhookUnconfirmed WebhookKind = "unconfirmed"
	// WebhookConfirmations is the tx-confirmation hook. It fires for the
	// zero-confirmation sighting as well as for each subsequent confirmation.
	WebhookConfirmations WebhookKind = "confirmations"
	// WebhookConfidence is the tx-confidence hook carrying a provider-computed
	// finality estimate in [0,1].
	WebhookConfidence WebhookKind = "confidence"
)

// Valid reports whether k is one of the known hook kinds.
func (k WebhookKind) Valid() bool {
	switch k {
	case WebhookUnconfirmed, WebhookConfirmations, WebhookConfidence:
		return true
	}
	return false
}

// WebhookDelivery is the message published to the work queue for each webhook
// received from BlockCypher. AccountID references the UserAccount whose
// watched address the hook was registered for; Payload is the raw provider
// body, retained verbatim.
type WebhookDelivery struct {
	Kind      WebhookKind     `json:"kind"`
	AccountID uuid.UUID       `json:"account_id"`
	Payload   json.RawMessage `json:"payload"`
}

// TxPayload is the subset of the BlockCypher transaction body the engine
// acts on. The full raw body is stored on the transaction record.
type TxPayload struct {
	Hash          string     `json:"hash"`
	Confirmations int        `json:"confirmations"`
	Confidence    float64    `json:"confidence"`
	Outputs       []TxOutput `json:"outputs"`
}

// TxOutput is a single transaction output as reported by BlockCypher.
type TxOutput struct {
	Addresses []string `json:"addresses"`
	Value     int64    `json:"value"` // in satoshi
}
