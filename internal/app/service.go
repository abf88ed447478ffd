/**
 * @description
 * This file contains the API-facing business logic of the adapter: executing
 * outbound sends through BlockCypher, querying the operating account, and
 * provisioning user deposit accounts. The confirmation engine and ledger sync
 * live in their own files; this service covers the request/response paths.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - internal/domain, internal/money, internal/store: domain models, amount
 *   codec and data access.
 * - pkg/blockcypher: blockchain API client and local signer.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/internal/money"
	"github.com/rehive/bitcoin-adapter/internal/store"
	"github.com/rehive/bitcoin-adapter/pkg/blockcypher"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoDefaultAccount is returned when no operating account is marked
	// default; sends cannot proceed without one.
	ErrNoDefaultAccount = errors.New("no default operating account configured")
)

// ChainClient is the subset of the BlockCypher client the service depends on.
type ChainClient interface {
	NewTX(ctx context.Context, fromAddress string, outputs []blockcypher.Output, changeAddress string) (*blockcypher.TXSkeleton, error)
	SendTX(ctx context.Context, skel *blockcypher.TXSkeleton) (*blockcypher.TXSkeleton, error)
	Balance(ctx context.Context, address string) (int64, error)
	GenerateAddress(ctx context.Context) (*blockcypher.GeneratedAddress, error)
}

// Service provides the request-path business logic for the adapter.
type Service struct {
	repo      store.Repository
	chain     ChainClient
	newSigner func(secretHex string) (blockcypher.Signer, error)
	precision int
	currency  string
	issuer    string
}

// NewService creates a new adapter service instance.
func NewService(repo store.Repository, chain ChainClient, precision int, currency, issuer string) *Service {
	return &Service{
		repo:  repo,
		chain: chain,
		newSigner: func(secretHex string) (blockcypher.Signer, error) {
			return blockcypher.NewKeySigner(secretHex)
		},
		precision: precision,
		currency:  currency,
		issuer:    issuer,
	}
}

// Send creates a send transaction and executes it: build an unsigned
// transaction from the operating account to the recipient, verify it, sign it
// locally, broadcast it, and record the resulting network identifier.
func (s *Service) Send(ctx context.Context, req domain.SendRequest) (*domain.Transaction, error) {
	account, err := s.repo.FindDefaultOperatingAccount(ctx)
	if err != nil {
		if errors.Is(err, store.ErrOperatingAccountNotFound) {
			return nil, ErrNoDefaultAccount
		}
		return nil, fmt.Errorf("resolve operating account: %w", err)
	}

	amount, err := money.ParseToMinorUnits(req.Amount, s.precision)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	tx := &domain.Transaction{
		Direction: domain.DirectionSend,
		Recipient: req.Recipient,
		Amount:    amount,
		Currency:  currency,
		Issuer:    req.Issuer,
		Status:    domain.StatusPending,
		Metadata:  req.Metadata,
	}
	if req.LedgerCode != "" {
		code := req.LedgerCode
		tx.LedgerCode = &code
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create send transaction: %w", err)
	}

	if err := s.broadcast(ctx, account, tx, amount); err != nil {
		return tx, err
	}
	return tx, nil
}

func (s *Service) broadcast(ctx context.Context, account *domain.OperatingAccount, tx *domain.Transaction, amount int64) error {
	outputs := []blockcypher.Output{{Addresses: []string{tx.Recipient}, Value: amount}}

	skel, err := s.chain.NewTX(ctx, account.Address, outputs, account.Address)
	if err != nil {
		return fmt.Errorf("build unsigned transaction: %w", err)
	}

	// Verification failure aborts before anything is signed or broadcast.
	if err := blockcypher.VerifyUnsignedTX(skel, outputs, account.Address); err != nil {
		return err
	}

	signer, err := s.newSigner(account.SecretKey)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	skel.Signatures, skel.PubKeys, err = signer.Sign(skel.ToSign)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}

	sent, err := s.chain.SendTX(ctx, skel)
	if err != nil {
		return fmt.Errorf("broadcast transaction: %w", err)
	}

	// A broadcast may partially succeed at the network layer: log every
	// reported error but still record the hash when one came back.
	for _, broadcastErr := range sent.Errors {
		log.Printf("level=error component=send_executor tx=%s msg=\"broadcast error\" err=%q", tx.ID, broadcastErr.Error)
	}
	if sent.TX.Hash == "" {
		return fmt.Errorf("broadcast returned no transaction hash for %s", tx.ID)
	}

	if err := s.repo.SetBroadcastResult(ctx, tx.ID, sent.TX.Hash, sent.TX.Raw); err != nil {
		return fmt.Errorf("record broadcast result: %w", err)
	}
	hash := sent.TX.Hash
	tx.ExternalID = &hash
	tx.ProviderPayload = sent.TX.Raw

	log.Printf("level=info component=send_executor tx=%s hash=%s amount=%s msg=\"transaction broadcast\"",
		tx.ID, hash, money.FromMinorUnits(amount, s.precision))
	return nil
}

// Balance reports the operating account's balance in minor units and as a
// display-precision decimal.
func (s *Service) Balance(ctx context.Context) (int64, decimal.Decimal, error) {
	account, err := s.repo.FindDefaultOperatingAccount(ctx)
	if err != nil {
		if errors.Is(err, store.ErrOperatingAccountNotFound) {
			return 0, decimal.Zero, ErrNoDefaultAccount
		}
		return 0, decimal.Zero, err
	}
	balance, err := s.chain.Balance(ctx, account.Address)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("query balance: %w", err)
	}
	return balance, money.FromMinorUnits(balance, s.precision), nil
}

// OperatingAccountDetails returns the public view of the operating account.
func (s *Service) OperatingAccountDetails(ctx context.Context) (*domain.OperatingAccountDetails, error) {
	account, err := s.repo.FindDefaultOperatingAccount(ctx)
	if err != nil {
		if errors.Is(err, store.ErrOperatingAccountNotFound) {
			return nil, ErrNoDefaultAccount
		}
		return nil, err
	}
	return &domain.OperatingAccountDetails{Name: account.Name, Address: account.Address}, nil
}

// RegisterUserAccount provisions a deposit address for a ledger user and
// stores the watched account.
func (s *Service) RegisterUserAccount(ctx context.Context, ledgerID string, metadata map[string]any) (*domain.UserAccount, error) {
	generated, err := s.chain.GenerateAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate deposit address: %w", err)
	}
	account := &domain.UserAccount{
		LedgerID: ledgerID,
		Address:  generated.Address,
		Metadata: metadata,
	}
	if err := s.repo.CreateUserAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create user account: %w", err)
	}
	log.Printf("level=info component=service msg=\"registered user account\" ledger_id=%s address=%s", ledgerID, generated.Address)
	return account, nil
}
