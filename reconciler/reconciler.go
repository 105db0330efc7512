// Package reconciler runs the periodic balance and supply re-sync loop.
// Ledger state is authoritative; cached rows are overwritten on every pass.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/services"
	"github.com/silsilat/tokenization-backend/storage"
)

type Syncer struct {
	store           storage.Store
	recon           *services.Reconciler
	fungibleTokenID string
	interval        time.Duration
	log             *zap.Logger
}

func New(store storage.Store, recon *services.Reconciler, fungibleTokenID string, interval time.Duration, log *zap.Logger) *Syncer {
	return &Syncer{
		store:           store,
		recon:           recon,
		fungibleTokenID: fungibleTokenID,
		interval:        interval,
		log:             log,
	}
}

// Run blocks until ctx is cancelled, re-syncing all cached balances and
// supplies every interval. One failing account does not stop the pass.
func (s *Syncer) Run(ctx context.Context) {
	s.log.Info("reconciler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			s.syncAll(ctx)
		}
	}
}

func (s *Syncer) syncAll(ctx context.Context) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.log.Error("listing accounts for reconciliation", zap.Error(err))
	} else {
		for _, acc := range accounts {
			if _, err := s.recon.AccountBalance(ctx, s.store, acc.LedgerAccountID, s.fungibleTokenID, services.DefaultTokenDecimals); err != nil {
				s.log.Warn("reconciling account balance",
					zap.String("account", acc.LedgerAccountID), zap.Error(err))
			}
		}
	}

	tokens, err := s.store.ListTokens(ctx)
	if err != nil {
		s.log.Error("listing tokens for reconciliation", zap.Error(err))
		return
	}
	for _, tok := range tokens {
		if _, err := s.recon.TokenSupply(ctx, s.store, tok.TokenID, tok.Decimals); err != nil {
			s.log.Warn("reconciling token supply",
				zap.String("tokenID", tok.TokenID), zap.Error(err))
		}
	}
}
