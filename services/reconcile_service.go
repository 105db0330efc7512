package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/ledger"
	"github.com/silsilat/tokenization-backend/storage"
)

// DefaultTokenDecimals is the scale of the platform's fungible settlement
// token: raw ledger units divide by 10^2.
const DefaultTokenDecimals int32 = 2

// Reconciler is the sole writer of cached balances and supplies. It always
// replaces the cached value with ledgerRaw / 10^decimals, never increments.
type Reconciler struct {
	Ledger ledger.Client
	Log    *zap.Logger
}

func NewReconciler(lc ledger.Client, log *zap.Logger) *Reconciler {
	return &Reconciler{Ledger: lc, Log: log}
}

// AccountBalance queries the ledger for the account's raw fungible holding,
// scales it, and overwrites the cached balance through st.
func (r *Reconciler) AccountBalance(ctx context.Context, st storage.Store, ledgerAccountID, tokenID string, decimals int32) (decimal.Decimal, error) {
	raw, err := r.Ledger.Balance(ctx, ledgerAccountID, tokenID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query balance for %s: %w", ledgerAccountID, err)
	}

	balance := scaleRaw(raw, decimals)
	if err := st.UpdateAccountBalance(ctx, ledgerAccountID, balance); err != nil {
		return decimal.Zero, err
	}

	r.Log.Debug("account balance reconciled",
		zap.String("account", ledgerAccountID),
		zap.Int64("raw", raw),
		zap.String("balance", balance.String()))
	return balance, nil
}

// TokenSupply queries the ledger for the token's raw total supply, scales it,
// and overwrites the cached supply through st.
func (r *Reconciler) TokenSupply(ctx context.Context, st storage.Store, tokenID string, decimals int32) (decimal.Decimal, error) {
	raw, err := r.Ledger.TotalSupply(ctx, tokenID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query supply for %s: %w", tokenID, err)
	}

	supply := scaleRaw(raw, decimals)
	if err := st.UpdateTokenSupply(ctx, tokenID, supply); err != nil {
		return decimal.Zero, err
	}

	r.Log.Debug("token supply reconciled",
		zap.String("token", tokenID),
		zap.Int64("raw", raw),
		zap.String("supply", supply.String()))
	return supply, nil
}

// scaleRaw converts a raw integer ledger amount to its decimal display value.
func scaleRaw(raw int64, decimals int32) decimal.Decimal {
	return decimal.NewFromInt(raw).Shift(-decimals)
}

// toRaw converts a decimal display amount to raw integer ledger units.
func toRaw(amount decimal.Decimal, decimals int32) int64 {
	return amount.Shift(decimals).IntPart()
}
