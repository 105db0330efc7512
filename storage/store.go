package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/silsilat/tokenization-backend/models"
)

// Store is the persistence surface the orchestrators depend on. *DB satisfies
// it against the live connection; Transact hands closures a transactional view.
type Store interface {
	CreateSag(ctx context.Context, sag models.Sag) (models.Sag, error)
	GetSag(ctx context.Context, sagID string) (models.Sag, bool, error)
	GetSagByTokenID(ctx context.Context, tokenID string) (models.Sag, bool, error)
	UpdateSagToken(ctx context.Context, sagID, tokenID string, props models.SagProperties) error
	UpdateSagProperties(ctx context.Context, sagID string, props models.SagProperties) error
	UpdateSagStatus(ctx context.Context, sagID, status string) error

	GetAccount(ctx context.Context, id string) (models.Account, bool, error)
	GetAccountByLedgerID(ctx context.Context, ledgerAccountID string) (models.Account, bool, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	UpdateAccountBalance(ctx context.Context, ledgerAccountID string, balance decimal.Decimal) error

	CreateToken(ctx context.Context, token models.Token) error
	GetToken(ctx context.Context, tokenID string) (models.Token, bool, error)
	ListTokens(ctx context.Context) ([]models.Token, error)
	UpdateTokenSupply(ctx context.Context, tokenID string, supply decimal.Decimal) error
	UpdateTokenStatus(ctx context.Context, tokenID, status string) error

	Transact(ctx context.Context, fn func(tx Store) error) error
}
