package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/internal/money"
	"github.com/rehive/bitcoin-adapter/internal/store"
	"github.com/rehive/bitcoin-adapter/pkg/blockcypher"
)

type serviceRepoStub struct {
	store.Repository

	operating *domain.OperatingAccount

	created      []*domain.Transaction
	broadcastID  *uuid.UUID
	broadcastTx  string
	userAccounts []*domain.UserAccount
}

func (s *serviceRepoStub) FindDefaultOperatingAccount(context.Context) (*domain.OperatingAccount, error) {
	if s.operating == nil {
		return nil, store.ErrOperatingAccountNotFound
	}
	return s.operating, nil
}

func (s *serviceRepoStub) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	tx.ID = uuid.New()
	s.created = append(s.created, tx)
	return nil
}

func (s *serviceRepoStub) SetBroadcastResult(_ context.Context, id uuid.UUID, externalID string, _ json.RawMessage) error {
	s.broadcastID = &id
	s.broadcastTx = externalID
	return nil
}

func (s *serviceRepoStub) CreateUserAccount(_ context.Context, account *domain.UserAccount) error {
	account.ID = uuid.New()
	s.userAccounts = append(s.userAccounts, account)
	return nil
}

type chainStub struct {
	skeleton *blockcypher.TXSkeleton
	newErr   error

	sent     *blockcypher.TXSkeleton
	sendErr  error
	sentWith *blockcypher.TXSkeleton

	balance int64

	address string
}

func (c *chainStub) NewTX(_ context.Context, fromAddress string, outputs []blockcypher.Output, changeAddress string) (*blockcypher.TXSkeleton, error) {
	if c.newErr != nil {
		return nil, c.newErr
	}
	return c.skeleton, nil
}

func (c *chainStub) SendTX(_ context.Context, skel *blockcypher.TXSkeleton) (*blockcypher.TXSkeleton, error) {
	c.sentWith = skel
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	return c.sent, nil
}

func (c *chainStub) Balance(context.Context, string) (int64, error) {
	return c.balance, nil
}

func (c *chainStub) GenerateAddress(context.Context) (*blockcypher.GeneratedAddress, error) {
	return &blockcypher.GeneratedAddress{Address: c.address, Private: "aa"}, nil
}

type signerStub struct {
	called bool
}

func (s *signerStub) Sign(tosign []string) ([]string, []string, error) {
	s.called = true
	sigs := make([]string, len(tosign))
	keys := make([]string, len(tosign))
	for i := range tosign {
		sigs[i] = "sig"
		keys[i] = "pub"
	}
	return sigs, keys, nil
}

func operatingAccount() *domain.OperatingAccount {
	return &domain.OperatingAccount{
		ID:        uuid.New(),
		Name:      "hot wallet",
		Address:   "1HotWallet",
		SecretKey: "deadbeef",
		IsDefault: true,
	}
}

func skeletonPaying(recipient string, value int64, change int64, hash string) *blockcypher.TXSkeleton {
	skel := &blockcypher.TXSkeleton{
		ToSign: []string{"digest-1"},
	}
	skel.TX.Hash = hash
	skel.TX.Outputs = []blockcypher.Output{
		{Addresses: []string{recipient}, Value: value},
	}
	if change > 0 {
		skel.TX.Outputs = append(skel.TX.Outputs, blockcypher.Output{Addresses: []string{"1HotWallet"}, Value: change})
	}
	return skel
}

func newTestService(repo *serviceRepoStub, chain *chainStub, signer *signerStub) *Service {
	svc := NewService(repo, chain, 8, "XBT", "issuer@example.com")
	svc.newSigner = func(string) (blockcypher.Signer, error) { return signer, nil }
	return svc
}

func TestSendBroadcastsAndRecordsHash(t *testing.T) {
	repo := &serviceRepoStub{operating: operatingAccount()}
	signer := &signerStub{}
	built := skeletonPaying("1Recipient", 500000, 12345, "")
	sent := skeletonPaying("1Recipient", 500000, 12345, "broadcast-hash")
	chain := &chainStub{skeleton: built, sent: sent}
	svc := newTestService(repo, chain, signer)

	tx, err := svc.Send(context.Background(), domain.SendRequest{
		LedgerCode: "TXLEDGER",
		Recipient:  "1Recipient",
		Amount:     "0.005",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if tx.Amount != 500000 {
		t.Errorf("expected 0.005 converted to 500000 satoshi, got %d", tx.Amount)
	}
	if tx.LedgerCode == nil || *tx.LedgerCode != "TXLEDGER" {
		t.Errorf("expected ledger code carried through, got %v", tx.LedgerCode)
	}
	if !signer.called {
		t.Error("expected the transaction to be signed")
	}
	if chain.sentWith == nil || len(chain.sentWith.Signatures) != 1 {
		t.Error("expected signatures attached before broadcast")
	}
	if tx.ExternalID == nil || *tx.ExternalID != "broadcast-hash" {
		t.Errorf("expected broadcast hash recorded, got %v", tx.ExternalID)
	}
	if repo.broadcastTx != "broadcast-hash" {
		t.Errorf("expected broadcast result persisted, got %q", repo.broadcastTx)
	}
}

func TestSendAbortsOnVerificationFailure(t *testing.T) {
	repo := &serviceRepoStub{operating: operatingAccount()}
	signer := &signerStub{}
	// The skeleton pays a different recipient than requested.
	tampered := skeletonPaying("1Attacker", 500000, 0, "")
	chain := &chainStub{skeleton: tampered}
	svc := newTestService(repo, chain, signer)

	_, err := svc.Send(context.Background(), domain.SendRequest{Recipient: "1Recipient", Amount: "0.005"})
	if !errors.Is(err, blockcypher.ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
	if signer.called {
		t.Error("nothing must be signed after verification fails")
	}
	if chain.sentWith != nil {
		t.Error("nothing must be broadcast after verification fails")
	}
}

func TestSendPartialBroadcastStillRecordsHash(t *testing.T) {
	repo := &serviceRepoStub{operating: operatingAccount()}
	built := skeletonPaying("1Recipient", 100000, 0, "")
	sent := skeletonPaying("1Recipient", 100000, 0, "partial-hash")
	sent.Errors = []struct {
		Error string `json:"error"`
	}{{Error: "already spent input"}}
	chain := &chainStub{skeleton: built, sent: sent}
	svc := newTestService(repo, chain, &signerStub{})

	tx, err := svc.Send(context.Background(), domain.SendRequest{Recipient: "1Recipient", Amount: "0.001"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if tx.ExternalID == nil || *tx.ExternalID != "partial-hash" {
		t.Errorf("partial broadcast with a hash must still record it, got %v", tx.ExternalID)
	}
}

func TestSendNoDefaultOperatingAccount(t *testing.T) {
	svc := newTestService(&serviceRepoStub{}, &chainStub{}, &signerStub{})

	_, err := svc.Send(context.Background(), domain.SendRequest{Recipient: "1Recipient", Amount: "1"})
	if !errors.Is(err, ErrNoDefaultAccount) {
		t.Fatalf("expected ErrNoDefaultAccount, got %v", err)
	}
}

func TestSendRejectsInvalidAmount(t *testing.T) {
	repo := &serviceRepoStub{operating: operatingAccount()}
	svc := newTestService(repo, &chainStub{}, &signerStub{})

	for _, amount := range []string{"", "abc", "-1"} {
		_, err := svc.Send(context.Background(), domain.SendRequest{Recipient: "1Recipient", Amount: amount})
		if !errors.Is(err, money.ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if len(repo.created) != 0 {
		t.Error("invalid amounts must not create transactions")
	}
}

func TestBalanceConvertsToDisplayPrecision(t *testing.T) {
	repo := &serviceRepoStub{operating: operatingAccount()}
	chain := &chainStub{balance: 150000000}
	svc := newTestService(repo, chain, &signerStub{})

	minor, display, err := svc.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if minor != 150000000 {
		t.Errorf("expected 150000000 satoshi, got %d", minor)
	}
	if display.String() != "1.5" {
		t.Errorf("expected display balance 1.5, got %s", display)
	}
}

func TestRegisterUserAccount(t *testing.T) {
	repo := &serviceRepoStub{}
	chain := &chainStub{address: "1GeneratedAddr"}
	svc := newTestService(repo, chain, &signerStub{})

	account, err := svc.RegisterUserAccount(context.Background(), "user-42", map[string]any{"plan": "basic"})
	if err != nil {
		t.Fatalf("RegisterUserAccount failed: %v", err)
	}
	if account.Address != "1GeneratedAddr" {
		t.Errorf("expected generated address stored, got %s", account.Address)
	}
	if account.LedgerID != "user-42" {
		t.Errorf("expected ledger id user-42, got %s", account.LedgerID)
	}
	if len(repo.userAccounts) != 1 {
		t.Fatalf("expected account persisted, got %d", len(repo.userAccounts))
	}
}
