/**
 * @description
 * The confirmation engine consumes webhook deliveries off the work queue,
 * matches them to an existing or new receive transaction, and advances the
 * transaction through the confirmation state machine:
 *
 *   unconfirmed sighting  -> create in Pending, register on the ledger
 *   confirmations >= 1    -> Confirmed, confirm on the ledger
 *   confidence > threshold -> Confirmed, confirm on the ledger
 *
 * Deliveries are deduplicated on the network hash, concurrent deliveries for
 * the same hash are serialized through a per-hash lock, and transitions that
 * are already satisfied are silent no-ops so re-deliveries never cause
 * duplicate ledger calls.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/internal/money"
	"github.com/rehive/bitcoin-adapter/internal/store"
)

// ErrMalformedPayload is returned for webhook payloads that violate the
// provider's data model. The event is rejected as a whole; no transaction
// state changes.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Engine drives the receive-transaction state machine from webhook events.
type Engine struct {
	repo      store.Repository
	ledger    ledgerSyncer
	locks     *keyedMutex
	threshold float64 // confidence above this confirms
	precision int
	currency  string
	issuer    string
}

// NewEngine creates a confirmation engine.
func NewEngine(repo store.Repository, ledger ledgerSyncer, confidenceThreshold float64, precision int, currency, issuer string) *Engine {
	return &Engine{
		repo:      repo,
		ledger:    ledger,
		locks:     newKeyedMutex(),
		threshold: confidenceThreshold,
		precision: precision,
		currency:  currency,
		issuer:    issuer,
	}
}

// HandleMessage implements the queue handler contract: true acknowledges the
// delivery, false re-queues it. Malformed messages are acknowledged after
// logging so they cannot poison the queue; only transient processing errors
// are re-queued.
func (e *Engine) HandleMessage(body []byte) bool {
	var delivery domain.WebhookDelivery
	if err := json.Unmarshal(body, &delivery); err != nil {
		log.Printf("level=error component=engine msg=\"failed to unmarshal delivery\" err=%v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := e.Process(ctx, delivery)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMalformedPayload):
		log.Printf("level=warn component=engine account=%s msg=\"rejected malformed payload\" err=%v", delivery.AccountID, err)
		return true
	case errors.Is(err, store.ErrUserAccountNotFound):
		log.Printf("level=warn component=engine account=%s msg=\"delivery for unknown account; dropping\"", delivery.AccountID)
		return true
	default:
		log.Printf("level=error component=engine account=%s msg=\"processing error; re-queuing\" err=%v", delivery.AccountID, err)
		return false
	}
}

// Process handles one webhook delivery end to end.
func (e *Engine) Process(ctx context.Context, delivery domain.WebhookDelivery) error {
	if !delivery.Kind.Valid() {
		return fmt.Errorf("%w: unknown webhook kind %q", ErrMalformedPayload, delivery.Kind)
	}

	var payload domain.TxPayload
	if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.Hash == "" {
		return fmt.Errorf("%w: missing transaction hash", ErrMalformedPayload)
	}

	account, err := e.repo.FindUserAccountByID(ctx, delivery.AccountID)
	if err != nil {
		return err
	}

	// Output matching happens before any state change so a malformed output
	// rejects the whole event.
	matched, err := matchOutputs(payload.Outputs, account.Address)
	if err != nil {
		return err
	}

	// Serialize all processing for this network transaction.
	e.locks.Lock(payload.Hash)
	defer e.locks.Unlock(payload.Hash)

	switch delivery.Kind {
	case domain.WebhookUnconfirmed:
		return e.handleUnconfirmed(ctx, account, payload, delivery.Payload, matched)
	case domain.WebhookConfirmations:
		if payload.Confirmations == 0 {
			return e.handleUnconfirmed(ctx, account, payload, delivery.Payload, matched)
		}
		return e.handleConfirming(ctx, account, payload, delivery.Payload, matched)
	case domain.WebhookConfidence:
		if payload.Confidence <= e.threshold {
			log.Printf("level=info component=engine hash=%s confidence=%.3f msg=\"below threshold; ignoring\"", payload.Hash, payload.Confidence)
			return nil
		}
		return e.handleConfirming(ctx, account, payload, delivery.Payload, matched)
	}
	return nil
}

// matchOutputs sums the values of outputs paying the account's address.
// The upstream network model guarantees a single address per output; more
// than one fails the event.
func matchOutputs(outputs []domain.TxOutput, address string) (int64, error) {
	var matched int64
	for _, out := range outputs {
		if len(out.Addresses) > 1 {
			return 0, fmt.Errorf("%w: output has %d addresses", ErrMalformedPayload, len(out.Addresses))
		}
		if len(out.Addresses) == 1 && out.Addresses[0] == address {
			matched += out.Value
		}
	}
	return matched, nil
}

// handleUnconfirmed processes a zero-confirmation sighting: first sight of a
// hash creates the transaction and registers it on the ledger; a re-delivery
// for a known hash is a no-op.
func (e *Engine) handleUnconfirmed(ctx context.Context, account *domain.UserAccount, payload domain.TxPayload, raw json.RawMessage, matched int64) error {
	_, err := e.repo.FindReceiveByExternalID(ctx, payload.Hash)
	if err == nil {
		log.Printf("level=info component=engine hash=%s msg=\"duplicate unconfirmed delivery; ignoring\"", payload.Hash)
		return nil
	}
	if !errors.Is(err, store.ErrTransactionNotFound) {
		return err
	}

	// Policy: an event crediting nothing to the watched address does not
	// create a transaction.
	if matched == 0 {
		log.Printf("level=info component=engine hash=%s msg=\"no matching outputs; ignoring\"", payload.Hash)
		return nil
	}

	tx, err := e.createReceive(ctx, account, payload.Hash, raw, matched, domain.StatusPending)
	if err != nil {
		return err
	}
	log.Printf("level=info component=engine hash=%s tx=%s amount=%s msg=\"created receive transaction\"",
		payload.Hash, tx.ID, money.FromMinorUnits(matched, e.precision))

	e.ledger.SyncAsync(tx.ID, false)
	return nil
}

// handleConfirming processes a confirmation-class event (confirmations >= 1
// or confidence above threshold). Deliveries can arrive out of order, so an
// unseen hash is synthesized rather than rejected.
func (e *Engine) handleConfirming(ctx context.Context, account *domain.UserAccount, payload domain.TxPayload, raw json.RawMessage, matched int64) error {
	tx, err := e.repo.FindReceiveByExternalID(ctx, payload.Hash)
	if errors.Is(err, store.ErrTransactionNotFound) {
		if matched == 0 {
			log.Printf("level=info component=engine hash=%s msg=\"no matching outputs; ignoring\"", payload.Hash)
			return nil
		}
		tx, err := e.createReceive(ctx, account, payload.Hash, raw, matched, domain.StatusConfirmed)
		if err != nil {
			return err
		}
		log.Printf("level=info component=engine hash=%s tx=%s msg=\"synthesized transaction from out-of-order confirmation\"", payload.Hash, tx.ID)
		e.ledger.SyncAsync(tx.ID, true)
		return nil
	}
	if err != nil {
		return err
	}

	if tx.Status.Settled() {
		log.Printf("level=info component=engine hash=%s tx=%s status=%s msg=\"already settled; ignoring\"", payload.Hash, tx.ID, tx.Status)
		return nil
	}

	if err := e.repo.UpdateStatusAndPayload(ctx, tx.ID, domain.StatusConfirmed, raw); err != nil {
		return err
	}
	log.Printf("level=info component=engine hash=%s tx=%s msg=\"confirming transaction\"", payload.Hash, tx.ID)

	e.ledger.SyncAsync(tx.ID, true)
	return nil
}

func (e *Engine) createReceive(ctx context.Context, account *domain.UserAccount, hash string, raw json.RawMessage, amount int64, status domain.Status) (*domain.Transaction, error) {
	accountID := account.ID
	externalID := hash
	tx := &domain.Transaction{
		Direction:       domain.DirectionReceive,
		UserAccountID:   &accountID,
		ExternalID:      &externalID,
		Recipient:       account.LedgerID,
		Amount:          amount,
		Currency:        e.currency,
		Issuer:          e.issuer,
		Status:          status,
		ProviderPayload: raw,
	}
	if err := e.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}
