package services_test

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/silsilat/tokenization-backend/ledger"
	"github.com/silsilat/tokenization-backend/models"
	"github.com/silsilat/tokenization-backend/services"
	"github.com/silsilat/tokenization-backend/storage"
)

// MockStore is a mock implementation of storage.Store for unit tests.
// Transact hands the closure the mock itself, so expectations set on the
// mock cover calls made inside the transaction too.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateSag(ctx context.Context, sag models.Sag) (models.Sag, error) {
	args := m.Called(ctx, sag)
	return args.Get(0).(models.Sag), args.Error(1)
}
func (m *MockStore) GetSag(ctx context.Context, sagID string) (models.Sag, bool, error) {
	args := m.Called(ctx, sagID)
	return args.Get(0).(models.Sag), args.Bool(1), args.Error(2)
}
func (m *MockStore) GetSagByTokenID(ctx context.Context, tokenID string) (models.Sag, bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(models.Sag), args.Bool(1), args.Error(2)
}
func (m *MockStore) UpdateSagToken(ctx context.Context, sagID, tokenID string, props models.SagProperties) error {
	args := m.Called(ctx, sagID, tokenID, props)
	return args.Error(0)
}
func (m *MockStore) UpdateSagProperties(ctx context.Context, sagID string, props models.SagProperties) error {
	args := m.Called(ctx, sagID, props)
	return args.Error(0)
}
func (m *MockStore) UpdateSagStatus(ctx context.Context, sagID, status string) error {
	args := m.Called(ctx, sagID, status)
	return args.Error(0)
}
func (m *MockStore) GetAccount(ctx context.Context, id string) (models.Account, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Account), args.Bool(1), args.Error(2)
}
func (m *MockStore) GetAccountByLedgerID(ctx context.Context, ledgerAccountID string) (models.Account, bool, error) {
	args := m.Called(ctx, ledgerAccountID)
	return args.Get(0).(models.Account), args.Bool(1), args.Error(2)
}
func (m *MockStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Account), args.Error(1)
}
func (m *MockStore) UpdateAccountBalance(ctx context.Context, ledgerAccountID string, balance decimal.Decimal) error {
	args := m.Called(ctx, ledgerAccountID, balance)
	return args.Error(0)
}
func (m *MockStore) CreateToken(ctx context.Context, token models.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}
func (m *MockStore) GetToken(ctx context.Context, tokenID string) (models.Token, bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(models.Token), args.Bool(1), args.Error(2)
}
func (m *MockStore) ListTokens(ctx context.Context) ([]models.Token, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Token), args.Error(1)
}
func (m *MockStore) UpdateTokenSupply(ctx context.Context, tokenID string, supply decimal.Decimal) error {
	args := m.Called(ctx, tokenID, supply)
	return args.Error(0)
}
func (m *MockStore) UpdateTokenStatus(ctx context.Context, tokenID, status string) error {
	args := m.Called(ctx, tokenID, status)
	return args.Error(0)
}
func (m *MockStore) Transact(ctx context.Context, fn func(tx storage.Store) error) error {
	m.Called(ctx)
	return fn(m)
}

// MockLedger is a mock implementation of ledger.Client.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreateTokenClass(ctx context.Context, params ledger.TokenClassParams) (ledger.CreateResult, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(ledger.CreateResult), args.Error(1)
}
func (m *MockLedger) Mint(ctx context.Context, tokenID string, amount int, supplyKey string, metadata []byte) (ledger.MintResult, error) {
	args := m.Called(ctx, tokenID, amount, supplyKey, metadata)
	return args.Get(0).(ledger.MintResult), args.Error(1)
}
func (m *MockLedger) TransferFungible(ctx context.Context, tokenID, from, fromKey, to string, rawAmount int64) (ledger.TxResult, error) {
	args := m.Called(ctx, tokenID, from, fromKey, to, rawAmount)
	return args.Get(0).(ledger.TxResult), args.Error(1)
}
func (m *MockLedger) TransferUnits(ctx context.Context, tokenID string, serials []int64, from, fromKey, to string) (ledger.TxResult, error) {
	args := m.Called(ctx, tokenID, serials, from, fromKey, to)
	return args.Get(0).(ledger.TxResult), args.Error(1)
}
func (m *MockLedger) Freeze(ctx context.Context, tokenID, accountID, freezeKey string) (ledger.TxResult, error) {
	args := m.Called(ctx, tokenID, accountID, freezeKey)
	return args.Get(0).(ledger.TxResult), args.Error(1)
}
func (m *MockLedger) Unfreeze(ctx context.Context, tokenID, accountID, freezeKey string) (ledger.TxResult, error) {
	args := m.Called(ctx, tokenID, accountID, freezeKey)
	return args.Get(0).(ledger.TxResult), args.Error(1)
}
func (m *MockLedger) Associate(ctx context.Context, tokenID, accountID, accountKey string) (ledger.TxResult, error) {
	args := m.Called(ctx, tokenID, accountID, accountKey)
	return args.Get(0).(ledger.TxResult), args.Error(1)
}
func (m *MockLedger) Balance(ctx context.Context, accountID, tokenID string) (int64, error) {
	args := m.Called(ctx, accountID, tokenID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockLedger) TotalSupply(ctx context.Context, tokenID string) (int64, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockLedger) OwnedUnits(ctx context.Context, tokenID, ownerAccountID string, limit int, order ledger.SortOrder) ([]ledger.OwnedUnit, error) {
	args := m.Called(ctx, tokenID, ownerAccountID, limit, order)
	return args.Get(0).([]ledger.OwnedUnit), args.Error(1)
}
func (m *MockLedger) TokenHolders(ctx context.Context, tokenID string) ([]ledger.Holder, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).([]ledger.Holder), args.Error(1)
}
func (m *MockLedger) Burn(ctx context.Context, tokenID string, serials []int64, supplyKey string) (ledger.TxResult, error) {
	args := m.Called(ctx, tokenID, serials, supplyKey)
	return args.Get(0).(ledger.TxResult), args.Error(1)
}

// MockPublisher is a mock implementation of ipfs.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	args := m.Called(ctx, name, payload)
	return args.String(0), args.Error(1)
}

// MockEvaluator is a mock implementation of services.Evaluator.
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, input services.EvaluationInput) (services.Verdict, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(services.Verdict), args.Error(1)
}
