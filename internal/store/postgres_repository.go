/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for the adapter's tables:
 * user accounts, operating accounts and transactions.
 *
 * @dependencies
 * - context, encoding/json, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rehive/bitcoin-adapter/internal/domain"
)

var (
	ErrUserAccountNotFound      = errors.New("user account not found")
	ErrOperatingAccountNotFound = errors.New("operating account not found")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrLedgerCodeAlreadySet     = errors.New("ledger code already set")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateUserAccount inserts a new watched deposit account.
func (r *PostgresRepository) CreateUserAccount(ctx context.Context, account *domain.UserAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	metadata, err := marshalMetadata(account.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO user_accounts (id, ledger_id, address, metadata, created_at)
	          VALUES ($1, $2, $3, $4, now())
	          RETURNING created_at`
	return r.db.QueryRow(ctx, query, account.ID, account.LedgerID, account.Address, metadata).Scan(&account.CreatedAt)
}

// FindUserAccountByID retrieves a user account by its local identifier.
func (r *PostgresRepository) FindUserAccountByID(ctx context.Context, id uuid.UUID) (*domain.UserAccount, error) {
	query := `SELECT id, ledger_id, address, metadata, created_at FROM user_accounts WHERE id = $1`
	return r.scanUserAccount(r.db.QueryRow(ctx, query, id))
}

// FindUserAccountByAddress retrieves a user account by its deposit address.
func (r *PostgresRepository) FindUserAccountByAddress(ctx context.Context, address string) (*domain.UserAccount, error) {
	query := `SELECT id, ledger_id, address, metadata, created_at FROM user_accounts WHERE address = $1`
	return r.scanUserAccount(r.db.QueryRow(ctx, query, address))
}

func (r *PostgresRepository) scanUserAccount(row pgx.Row) (*domain.UserAccount, error) {
	var account domain.UserAccount
	var metadata []byte
	err := row.Scan(&account.ID, &account.LedgerID, &account.Address, &metadata, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserAccountNotFound
		}
		return nil, err
	}
	if err := unmarshalMetadata(metadata, &account.Metadata); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindDefaultOperatingAccount retrieves the single designated operating account.
func (r *PostgresRepository) FindDefaultOperatingAccount(ctx context.Context) (*domain.OperatingAccount, error) {
	var account domain.OperatingAccount
	var metadata []byte
	query := `SELECT id, name, ledger_id, address, secret_key, is_default, metadata
	          FROM operating_accounts WHERE is_default = true LIMIT 1`
	err := r.db.QueryRow(ctx, query).Scan(&account.ID, &account.Name, &account.LedgerID,
		&account.Address, &account.SecretKey, &account.IsDefault, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatingAccountNotFound
		}
		return nil, err
	}
	if err := unmarshalMetadata(metadata, &account.Metadata); err != nil {
		return nil, err
	}
	return &account, nil
}

const transactionColumns = `id, direction, user_account_id, external_id, ledger_code, recipient,
	amount, currency, issuer, status, provider_payload, ledger_response, metadata, created_at, updated_at`

// CreateTransaction inserts a new transaction record.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO transactions
	          (id, direction, user_account_id, external_id, ledger_code, recipient, amount,
	           currency, issuer, status, provider_payload, ledger_response, metadata, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
	          RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		tx.ID, tx.Direction, tx.UserAccountID, tx.ExternalID, tx.LedgerCode, tx.Recipient,
		tx.Amount, tx.Currency, tx.Issuer, tx.Status,
		rawOrNil(tx.ProviderPayload), rawOrNil(tx.LedgerResponse), metadata,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
}

// FindTransactionByID retrieves a transaction by its local identifier.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.scanTransaction(r.db.QueryRow(ctx, query, id))
}

// FindReceiveByExternalID retrieves the unique receive transaction for a
// network hash. The (direction, external_id) pair carries a unique index so a
// second webhook for a known hash can only ever update the existing record.
func (r *PostgresRepository) FindReceiveByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE direction = $1 AND external_id = $2`
	return r.scanTransaction(r.db.QueryRow(ctx, query, domain.DirectionReceive, externalID))
}

// UpdateStatusAndPayload advances the status and overwrites the retained
// provider payload. Callers hold the per-transaction lock, so the
// read-modify-write is race free.
func (r *PostgresRepository) UpdateStatusAndPayload(ctx context.Context, id uuid.UUID, status domain.Status, payload json.RawMessage) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $2, provider_payload = $3, updated_at = now() WHERE id = $1`,
		id, status, rawOrNil(payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// RecordLedgerResult stores the raw ledger response and advances the status
// only when the one-directional lifecycle allows it. A register succeeding
// after the engine has already moved the record to Confirmed must not drag it
// back to Pending. The status the transition was computed from is part of the
// WHERE clause, so a concurrent writer advancing the row between the read and
// the update invalidates this write instead of being overwritten; the loop
// then recomputes against the fresh status.
func (r *PostgresRepository) RecordLedgerResult(ctx context.Context, id uuid.UUID, status domain.Status, response json.RawMessage) error {
	for attempt := 0; attempt < 5; attempt++ {
		tx, err := r.FindTransactionByID(ctx, id)
		if err != nil {
			return err
		}
		next := tx.Status
		if tx.Status.CanTransitionTo(status) {
			next = status
		}
		tag, err := r.db.Exec(ctx,
			`UPDATE transactions SET status = $2, ledger_response = $3, updated_at = now()
			 WHERE id = $1 AND status = $4`,
			id, next, rawOrNil(response), tx.Status)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
	}
	return fmt.Errorf("recording ledger result for transaction %s: lost the status race", id)
}

// SetLedgerCode stores the Rehive tx_code. The WHERE clause enforces the
// set-at-most-once invariant.
func (r *PostgresRepository) SetLedgerCode(ctx context.Context, id uuid.UUID, code string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET ledger_code = $2, updated_at = now() WHERE id = $1 AND ledger_code IS NULL`,
		id, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		existing, findErr := r.FindTransactionByID(ctx, id)
		if findErr != nil {
			return findErr
		}
		if existing.LedgerCode != nil {
			return fmt.Errorf("%w: transaction %s", ErrLedgerCodeAlreadySet, id)
		}
		return ErrTransactionNotFound
	}
	return nil
}

// SetBroadcastResult records the network hash and raw broadcast body for a
// send transaction.
func (r *PostgresRepository) SetBroadcastResult(ctx context.Context, id uuid.UUID, externalID string, payload json.RawMessage) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET external_id = $2, provider_payload = $3, updated_at = now() WHERE id = $1`,
		id, externalID, rawOrNil(payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FindStuckReceives returns receive transactions past cutoff that still owe
// the ledger a call, oldest first. That covers both records that never got a
// ledger code (registration owed) and registered records still sitting in
// Confirmed (confirmation owed).
func (r *PostgresRepository) FindStuckReceives(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE direction = $1
	            AND ((ledger_code IS NULL AND status IN ($2, $3))
	              OR (ledger_code IS NOT NULL AND status = $3))
	            AND updated_at < $4
	          ORDER BY updated_at ASC
	          LIMIT $5`
	rows, err := r.db.Query(ctx, query, domain.DirectionReceive,
		domain.StatusPending, domain.StatusConfirmed, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (r *PostgresRepository) scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var provider, ledger, metadata []byte
	err := row.Scan(&tx.ID, &tx.Direction, &tx.UserAccountID, &tx.ExternalID, &tx.LedgerCode,
		&tx.Recipient, &tx.Amount, &tx.Currency, &tx.Issuer, &tx.Status,
		&provider, &ledger, &metadata, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	tx.ProviderPayload = json.RawMessage(provider)
	tx.LedgerResponse = json.RawMessage(ledger)
	if err := unmarshalMetadata(metadata, &tx.Metadata); err != nil {
		return nil, err
	}
	return &tx, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMetadata(b []byte, dst *map[string]any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
