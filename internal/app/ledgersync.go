/**
 * @description
 * Ledger sync propagates local transaction state to the Rehive platform:
 * register (create the transaction on the ledger) and confirm (flip it to
 * Confirmed, completing the local record). Both are idempotent at the ledger
 * because registration carries the network hash as a dedup reference.
 *
 * Failure handling distinguishes two classes:
 *   - semantic rejection (non-2xx from Rehive): the transaction is marked
 *     Failed immediately, with the response body preserved verbatim.
 *   - transport failure (connect/timeout): the sync pass is handed to the
 *     retry runner and the transaction keeps its current status.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/internal/store"
	"github.com/rehive/bitcoin-adapter/pkg/rehiveclient"
)

// ErrPrecondition signals a local logic bug, e.g. confirming a transaction
// that was never registered. It is fatal to the call and never retried.
var ErrPrecondition = errors.New("ledger sync precondition failed")

// LedgerClient is the subset of the Rehive client ledger sync depends on.
type LedgerClient interface {
	CreateReceive(ctx context.Context, req rehiveclient.ReceiveRequest) (*rehiveclient.ReceiveResult, error)
	UpdateStatus(ctx context.Context, txCode, status string) (json.RawMessage, error)
}

// ledgerSyncer is what the engine and sweeper need from ledger sync.
type ledgerSyncer interface {
	SyncAsync(txID uuid.UUID, confirm bool)
}

// LedgerSync owns propagation of transaction state to the ledger platform.
type LedgerSync struct {
	repo   store.Repository
	client LedgerClient
	runner *RetryRunner
	locks  *keyedMutex
}

// NewLedgerSync creates a LedgerSync that schedules retries on runner.
func NewLedgerSync(repo store.Repository, client LedgerClient, runner *RetryRunner) *LedgerSync {
	return &LedgerSync{repo: repo, client: client, runner: runner, locks: newKeyedMutex()}
}

// LedgerRetryable classifies sync errors for the retry policy: transport
// failures retry, everything the task already resolved does not.
func LedgerRetryable(err error) bool {
	var apiErr *rehiveclient.APIError
	if errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(err, ErrPrecondition) || errors.Is(err, store.ErrTransactionNotFound) {
		return false
	}
	return true
}

// SyncAsync schedules a register-and-optionally-confirm pass off the webhook
// ingestion path. The call returns immediately.
func (s *LedgerSync) SyncAsync(txID uuid.UUID, confirm bool) {
	name := fmt.Sprintf("ledger-sync:%s", txID)
	s.runner.Go(name, func(ctx context.Context) error {
		return s.sync(ctx, txID, confirm)
	})
}

// sync is one attempt: register if the transaction has no ledger code yet,
// then confirm if requested. A transport error anywhere aborts the attempt
// and the whole pass is retried, which is safe because registration is
// deduplicated by the ledger on from_reference and confirm is idempotent.
func (s *LedgerSync) sync(ctx context.Context, txID uuid.UUID, confirm bool) error {
	// Passes for one transaction can run concurrently: the engine dispatches a
	// register and a confirm pass back to back, retries fire on their own
	// schedule, and the sweeper re-dispatches. Serialize them so a late
	// register never interleaves with a completed confirm.
	s.locks.Lock(txID.String())
	defer s.locks.Unlock(txID.String())

	tx, err := s.repo.FindTransactionByID(ctx, txID)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	if tx.Status.Terminal() {
		return nil
	}

	if tx.LedgerCode == nil {
		registered, err := s.register(ctx, tx)
		if err != nil {
			return err
		}
		if !registered {
			// Semantic rejection already recorded as Failed.
			return nil
		}
	}

	if !confirm {
		return nil
	}
	if tx.LedgerCode == nil {
		return fmt.Errorf("%w: confirm requested for transaction %s with no ledger code", ErrPrecondition, tx.ID)
	}
	return s.confirm(ctx, tx)
}

func (s *LedgerSync) register(ctx context.Context, tx *domain.Transaction) (bool, error) {
	req := rehiveclient.ReceiveRequest{
		Recipient: tx.Recipient,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Issuer:    tx.Issuer,
		Metadata:  tx.Metadata,
	}
	if tx.ExternalID != nil {
		req.FromReference = *tx.ExternalID
	}

	result, err := s.client.CreateReceive(ctx, req)
	var apiErr *rehiveclient.APIError
	if errors.As(err, &apiErr) {
		log.Printf("level=warn component=ledger_sync op=register tx=%s status=%d msg=\"ledger rejected transaction\"", tx.ID, apiErr.StatusCode)
		if recErr := s.repo.RecordLedgerResult(ctx, tx.ID, domain.StatusFailed, apiErr.Body); recErr != nil {
			return false, recErr
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("register transaction: %w", err)
	}

	if err := s.repo.SetLedgerCode(ctx, tx.ID, result.TxCode); err != nil {
		if errors.Is(err, store.ErrLedgerCodeAlreadySet) {
			// A concurrent pass won the race; adopt the existing code.
			log.Printf("level=info component=ledger_sync op=register tx=%s msg=\"ledger code already set\"", tx.ID)
			fresh, findErr := s.repo.FindTransactionByID(ctx, tx.ID)
			if findErr != nil {
				return false, findErr
			}
			tx.LedgerCode = fresh.LedgerCode
		} else {
			return false, err
		}
	} else {
		tx.LedgerCode = &result.TxCode
	}
	if err := s.repo.RecordLedgerResult(ctx, tx.ID, domain.StatusPending, result.Body); err != nil {
		return false, err
	}

	log.Printf("level=info component=ledger_sync op=register tx=%s ledger_code=%s", tx.ID, result.TxCode)
	return true, nil
}

func (s *LedgerSync) confirm(ctx context.Context, tx *domain.Transaction) error {
	body, err := s.client.UpdateStatus(ctx, *tx.LedgerCode, string(domain.StatusConfirmed))
	var apiErr *rehiveclient.APIError
	if errors.As(err, &apiErr) {
		log.Printf("level=warn component=ledger_sync op=confirm tx=%s status=%d msg=\"ledger rejected confirmation\"", tx.ID, apiErr.StatusCode)
		return s.repo.RecordLedgerResult(ctx, tx.ID, domain.StatusFailed, apiErr.Body)
	}
	if err != nil {
		return fmt.Errorf("confirm transaction: %w", err)
	}

	if err := s.repo.RecordLedgerResult(ctx, tx.ID, domain.StatusComplete, body); err != nil {
		return err
	}
	log.Printf("level=info component=ledger_sync op=confirm tx=%s ledger_code=%s", tx.ID, *tx.LedgerCode)
	return nil
}
