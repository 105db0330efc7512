// Package ledger defines the port the orchestrators use to talk to the
// external distributed ledger, plus the Hedera-backed implementation.
package ledger

import (
	"context"
	"time"
)

// SortOrder controls the ordering of owned-unit queries.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// TokenClassParams describes a new non-fungible token class. Key material is
// passed as decrypted key strings; the adapter parses them.
type TokenClassParams struct {
	Name              string
	Symbol            string
	TreasuryAccountID string
	TreasuryKey       string
	AdminPublicKey    string
	ExpiredAt         time.Time
}

// CreateResult is the outcome of a token class creation.
type CreateResult struct {
	TokenID       string
	TransactionID string
	Status        string
}

// MintResult is the outcome of one mint call.
type MintResult struct {
	SerialNumbers []int64
	TransactionID string
	Status        string
}

// TxResult is the outcome of a transfer, freeze, unfreeze or association.
type TxResult struct {
	TransactionID string
	Status        string
}

// OwnedUnit is one non-fungible unit as reported by the ledger.
type OwnedUnit struct {
	SerialNumber int64
	Deleted      bool
}

// Holder is one account's live holdings of a token class.
type Holder struct {
	AccountID     string
	SerialNumbers []int64
}

// Client is the set of primitive ledger operations this system consumes.
// Every call blocks until the ledger has confirmed (or rejected) the
// operation; confirmed operations are irreversible.
type Client interface {
	CreateTokenClass(ctx context.Context, params TokenClassParams) (CreateResult, error)
	Mint(ctx context.Context, tokenID string, amount int, supplyKey string, metadata []byte) (MintResult, error)
	TransferFungible(ctx context.Context, tokenID, from, fromKey, to string, rawAmount int64) (TxResult, error)
	TransferUnits(ctx context.Context, tokenID string, serials []int64, from, fromKey, to string) (TxResult, error)
	Freeze(ctx context.Context, tokenID, accountID, freezeKey string) (TxResult, error)
	Unfreeze(ctx context.Context, tokenID, accountID, freezeKey string) (TxResult, error)
	Associate(ctx context.Context, tokenID, accountID, accountKey string) (TxResult, error)
	Balance(ctx context.Context, accountID, tokenID string) (int64, error)
	TotalSupply(ctx context.Context, tokenID string) (int64, error)
	OwnedUnits(ctx context.Context, tokenID, ownerAccountID string, limit int, order SortOrder) ([]OwnedUnit, error)
	TokenHolders(ctx context.Context, tokenID string) ([]Holder, error)
	Burn(ctx context.Context, tokenID string, serials []int64, supplyKey string) (TxResult, error)
}
