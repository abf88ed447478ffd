package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/internal/store"
)

type sweeperRepoStub struct {
	store.Repository

	stuck   []domain.Transaction
	scanErr error
}

func (s *sweeperRepoStub) FindStuckReceives(_ context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.stuck, nil
}

func TestSweeperRedispatchesStuckReceives(t *testing.T) {
	code := "TX999"
	pending := domain.Transaction{ID: uuid.New(), Status: domain.StatusPending}
	confirmed := domain.Transaction{ID: uuid.New(), Status: domain.StatusConfirmed}
	registered := domain.Transaction{ID: uuid.New(), Status: domain.StatusConfirmed, LedgerCode: &code}
	repo := &sweeperRepoStub{stuck: []domain.Transaction{pending, confirmed, registered}}
	sync := &syncRecorder{}

	NewSweeper(repo, sync, time.Hour, 100).Run()

	if len(sync.calls) != 3 {
		t.Fatalf("expected 3 re-dispatches, got %d", len(sync.calls))
	}
	// A stuck Pending record only needs registration; a stuck Confirmed one
	// still owes the ledger a confirm call, whether or not registration
	// already went through.
	if sync.calls[0].txID != pending.ID || sync.calls[0].confirm {
		t.Errorf("unexpected first call %+v", sync.calls[0])
	}
	if sync.calls[1].txID != confirmed.ID || !sync.calls[1].confirm {
		t.Errorf("unexpected second call %+v", sync.calls[1])
	}
	if sync.calls[2].txID != registered.ID || !sync.calls[2].confirm {
		t.Errorf("unexpected third call %+v", sync.calls[2])
	}
}

func TestSweeperToleratesScanFailure(t *testing.T) {
	repo := &sweeperRepoStub{scanErr: errors.New("db down")}
	sync := &syncRecorder{}

	NewSweeper(repo, sync, time.Hour, 100).Run()

	if len(sync.calls) != 0 {
		t.Errorf("scan failure must not dispatch anything, got %d calls", len(sync.calls))
	}
}
