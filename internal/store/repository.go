/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the adapter. By defining an
 * interface, the confirmation engine, ledger sync and send executor are
 * decoupled from the PostgreSQL implementation and easy to stub in tests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rehive/bitcoin-adapter/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	CreateUserAccount(ctx context.Context, account *domain.UserAccount) error
	FindUserAccountByID(ctx context.Context, id uuid.UUID) (*domain.UserAccount, error)
	FindUserAccountByAddress(ctx context.Context, address string) (*domain.UserAccount, error)
	FindDefaultOperatingAccount(ctx context.Context) (*domain.OperatingAccount, error)

	// Transaction methods
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// FindReceiveByExternalID looks up the unique receive transaction for a
	// network hash; webhook matching is idempotent through this lookup.
	FindReceiveByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error)
	// UpdateStatusAndPayload advances the status and overwrites the retained
	// provider payload in one statement.
	UpdateStatusAndPayload(ctx context.Context, id uuid.UUID, status domain.Status, payload json.RawMessage) error
	// RecordLedgerResult stores the raw ledger response and, when the
	// one-directional lifecycle allows it, advances the status.
	RecordLedgerResult(ctx context.Context, id uuid.UUID, status domain.Status, response json.RawMessage) error
	// SetLedgerCode stores the Rehive tx_code; it is set at most once.
	SetLedgerCode(ctx context.Context, id uuid.UUID, code string) error
	// SetBroadcastResult records the network hash and raw broadcast body for a
	// send transaction.
	SetBroadcastResult(ctx context.Context, id uuid.UUID, externalID string, payload json.RawMessage) error
	// FindStuckReceives returns receive transactions past cutoff that still
	// owe the ledger a register or confirm call, for the reconciliation sweep.
	FindStuckReceives(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error)
}
