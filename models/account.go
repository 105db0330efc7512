package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a locally cached ledger account. Balance mirrors the ledger's
// fungible holding and is only ever overwritten by reconciliation, never
// incremented in place.
type Account struct {
	ID              string          `db:"id" json:"id"`
	LedgerAccountID string          `db:"ledger_account_id" json:"ledgerAccountId"`
	EncryptedKey    string          `db:"encrypted_key" json:"-"`
	PublicKey       string          `db:"public_key" json:"publicKey"`
	Balance         decimal.Decimal `db:"balance" json:"balance"`
	Role            string          `db:"role" json:"role"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}
