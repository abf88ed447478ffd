package app

import (
	"context"
	"log"
	"time"

	"github.com/rehive/bitcoin-adapter/internal/domain"
	"github.com/rehive/bitcoin-adapter/internal/store"
)

// Sweeper periodically re-dispatches receive transactions still owing the
// ledger a register or confirm call, typically because the retry horizon was
// exhausted during a long platform outage. It runs on a cron schedule from
// main.
type Sweeper struct {
	repo   store.Repository
	ledger ledgerSyncer
	minAge time.Duration
	limit  int
}

// NewSweeper creates a sweeper that picks up transactions stuck for at least
// minAge.
func NewSweeper(repo store.Repository, ledger ledgerSyncer, minAge time.Duration, limit int) *Sweeper {
	if limit <= 0 {
		limit = 100
	}
	return &Sweeper{repo: repo, ledger: ledger, minAge: minAge, limit: limit}
}

// Run executes one reconciliation pass.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.minAge)
	stuck, err := s.repo.FindStuckReceives(ctx, cutoff, s.limit)
	if err != nil {
		log.Printf("level=error component=sweeper msg=\"stuck transaction scan failed\" err=%v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	log.Printf("level=info component=sweeper count=%d msg=\"re-dispatching stuck transactions\"", len(stuck))
	for _, tx := range stuck {
		// A stuck Confirmed record still owes the ledger a confirm call.
		s.ledger.SyncAsync(tx.ID, tx.Status == domain.StatusConfirmed)
	}
}
