package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token is a locally cached ledger token class. Supply is reconciled from the
// ledger's reported total supply, never derived by local arithmetic.
type Token struct {
	TokenID       string          `db:"token_id" json:"tokenId"`
	TransactionID string          `db:"transaction_id" json:"transactionId"`
	Status        string          `db:"status" json:"status"`
	Decimals      int32           `db:"decimals" json:"decimals"`
	Supply        decimal.Decimal `db:"supply" json:"supply"`
	Price         decimal.Decimal `db:"price" json:"price"`
	CreatedBy     string          `db:"created_by" json:"createdBy"`
	ExpiredAt     time.Time       `db:"expired_at" json:"expiredAt"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}
