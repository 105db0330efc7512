package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/jobctx"
	"github.com/silsilat/tokenization-backend/ledger"
	"github.com/silsilat/tokenization-backend/models"
	"github.com/silsilat/tokenization-backend/secrets"
	"github.com/silsilat/tokenization-backend/services"
)

const testMasterKey = "unit-test-master-key"

func encryptedTestKey(t *testing.T, plain string) string {
	t.Helper()
	enc, err := secrets.EncryptPrivateKey(plain, testMasterKey)
	assert.NoError(t, err)
	return enc
}

func newPurchaseService(store *MockStore, lc *MockLedger) *services.PurchaseService {
	log := zap.NewNop()
	return services.NewPurchaseService(store, lc, services.NewReconciler(lc, log),
		services.PurchaseConfig{FungibleTokenID: "0.0.100", MasterKey: testMasterKey}, log)
}

func purchaseAccounts(t *testing.T) (buyer, owner models.Account) {
	t.Helper()
	buyer = models.Account{
		ID:              "buyer-1",
		LedgerAccountID: "0.0.2001",
		EncryptedKey:    encryptedTestKey(t, "buyer-private-key"),
		Balance:         decimal.NewFromInt(1000),
	}
	owner = models.Account{
		ID:              "owner-1",
		LedgerAccountID: "0.0.2002",
		EncryptedKey:    encryptedTestKey(t, "owner-private-key"),
		Balance:         decimal.NewFromInt(0),
	}
	return buyer, owner
}

// expectRecordUpdate wires the bookkeeping transaction: soldShare bump plus
// the three ledger-sourced cache overwrites.
func expectRecordUpdate(store *MockStore, lc *MockLedger, tokenID string) {
	store.On("Transact", mock.Anything).Return()
	store.On("GetSagByTokenID", mock.Anything, tokenID).
		Return(models.Sag{SagID: "sag-1", TokenID: tokenID, Properties: models.SagProperties{MintShare: 100, SoldShare: 10}}, true, nil)
	store.On("UpdateSagProperties", mock.Anything, "sag-1", mock.Anything).Return(nil)

	lc.On("TotalSupply", mock.Anything, "0.0.100").Return(int64(500000), nil)
	store.On("UpdateTokenSupply", mock.Anything, "0.0.100", mock.Anything).Return(nil)
	lc.On("Balance", mock.Anything, "0.0.2001", "0.0.100").Return(int64(85000), nil)
	lc.On("Balance", mock.Anything, "0.0.2002", "0.0.100").Return(int64(15000), nil)
	store.On("UpdateAccountBalance", mock.Anything, "0.0.2001", mock.Anything).Return(nil)
	store.On("UpdateAccountBalance", mock.Anything, "0.0.2002", mock.Anything).Return(nil)
}

func TestPurchaseInsufficientBalanceMakesNoLedgerCalls(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	buyer, _ := purchaseAccounts(t)
	buyer.Balance = decimal.NewFromInt(50)
	store.On("GetAccount", mock.Anything, "user-1").Return(buyer, true, nil)

	_, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:    "0.0.5005",
		Amount:     3,
		TotalValue: decimal.NewFromInt(150),
	}, "user-1")

	assert.ErrorIs(t, err, services.ErrInsufficientBalance)
	assert.Empty(t, lc.Calls)
}

func TestPurchaseSpecificSerialWithAmountRejectedEarly(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	_, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:      "0.0.5005",
		Amount:       3,
		TotalValue:   decimal.NewFromInt(150),
		SerialNumber: 42,
	}, "user-1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "specific serial number")
	assert.Empty(t, lc.Calls)
	assert.Empty(t, store.Calls)
}

func TestPurchaseHappyPathDeliversAndFreezes(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	buyer, owner := purchaseAccounts(t)
	store.On("GetAccount", mock.Anything, "user-1").Return(buyer, true, nil)
	store.On("GetToken", mock.Anything, "0.0.5005").
		Return(models.Token{TokenID: "0.0.5005", CreatedBy: "owner-1"}, true, nil)
	store.On("GetAccount", mock.Anything, "owner-1").Return(owner, true, nil)

	lc.On("OwnedUnits", mock.Anything, "0.0.5005", "0.0.2002", 3, ledger.OrderAsc).
		Return([]ledger.OwnedUnit{{SerialNumber: 1}, {SerialNumber: 2}, {SerialNumber: 3}}, nil)
	lc.On("TransferFungible", mock.Anything, "0.0.100", "0.0.2001", "buyer-private-key", "0.0.2002", int64(15000)).
		Return(ledger.TxResult{TransactionID: "pay-tx"}, nil)
	lc.On("Unfreeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{}, errors.New("ACCOUNT_NOT_FROZEN"))
	lc.On("Associate", mock.Anything, "0.0.5005", "0.0.2001", "buyer-private-key").
		Return(ledger.TxResult{TransactionID: "assoc-tx"}, nil)
	lc.On("TransferUnits", mock.Anything, "0.0.5005", []int64{1, 2, 3}, "0.0.2002", "owner-private-key", "0.0.2001").
		Return(ledger.TxResult{TransactionID: "deliver-tx"}, nil)
	lc.On("Freeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{TransactionID: "freeze-tx"}, nil)
	expectRecordUpdate(store, lc, "0.0.5005")

	result, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:    "0.0.5005",
		Amount:     3,
		TotalValue: decimal.NewFromInt(150),
	}, "user-1")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []int64{1, 2, 3}, result.SerialNumbers)
	assert.Equal(t, "pay-tx", result.PaymentTransactionID)
	assert.Equal(t, "freeze-tx", result.FreezeTransactionID)
	assert.Equal(t, "assoc-tx", result.AssociationTransactionID)
	assert.Empty(t, result.Warnings)
	store.AssertExpectations(t)
	lc.AssertExpectations(t)

	// soldShare is bumped by the allocated unit count.
	assert.Equal(t, 13, recordedSoldShare(t, store))
}

// recordedSoldShare pulls the soldShare written through UpdateSagProperties.
func recordedSoldShare(t *testing.T, store *MockStore) int {
	t.Helper()
	for _, call := range store.Calls {
		if call.Method == "UpdateSagProperties" {
			return call.Arguments.Get(2).(models.SagProperties).SoldShare
		}
	}
	t.Fatal("UpdateSagProperties was never called")
	return 0
}

func TestPurchaseShortfallWarnsAndDeliversAvailable(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	buyer, owner := purchaseAccounts(t)
	store.On("GetAccount", mock.Anything, "user-1").Return(buyer, true, nil)
	store.On("GetToken", mock.Anything, "0.0.5005").
		Return(models.Token{TokenID: "0.0.5005", CreatedBy: "owner-1"}, true, nil)
	store.On("GetAccount", mock.Anything, "owner-1").Return(owner, true, nil)

	// 5 requested, 2 on the ledger; one of the reported units is deleted and
	// must not count as available.
	lc.On("OwnedUnits", mock.Anything, "0.0.5005", "0.0.2002", 5, ledger.OrderAsc).
		Return([]ledger.OwnedUnit{{SerialNumber: 7}, {SerialNumber: 8}, {SerialNumber: 9, Deleted: true}}, nil)
	lc.On("TransferFungible", mock.Anything, "0.0.100", "0.0.2001", "buyer-private-key", "0.0.2002", int64(20000)).
		Return(ledger.TxResult{TransactionID: "pay-tx"}, nil)
	lc.On("Unfreeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("Associate", mock.Anything, "0.0.5005", "0.0.2001", "buyer-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("TransferUnits", mock.Anything, "0.0.5005", []int64{7, 8}, "0.0.2002", "owner-private-key", "0.0.2001").
		Return(ledger.TxResult{TransactionID: "deliver-tx"}, nil)
	lc.On("Freeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{TransactionID: "freeze-tx"}, nil)
	expectRecordUpdate(store, lc, "0.0.5005")

	result, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:    "0.0.5005",
		Amount:     5,
		TotalValue: decimal.NewFromInt(200),
	}, "user-1")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []int64{7, 8}, result.SerialNumbers)
	assert.Contains(t, result.Warnings, "Requested amount (5) exceeded available supply (2)")

	// soldShare grows by the two units actually allocated, not the five asked for.
	assert.Equal(t, 12, recordedSoldShare(t, store))
}

func TestPurchaseFreezeFailureIsNonFatal(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	buyer, owner := purchaseAccounts(t)
	store.On("GetAccount", mock.Anything, "user-1").Return(buyer, true, nil)
	store.On("GetToken", mock.Anything, "0.0.5005").
		Return(models.Token{TokenID: "0.0.5005", CreatedBy: "owner-1"}, true, nil)
	store.On("GetAccount", mock.Anything, "owner-1").Return(owner, true, nil)

	lc.On("OwnedUnits", mock.Anything, "0.0.5005", "0.0.2002", 1, ledger.OrderAsc).
		Return([]ledger.OwnedUnit{{SerialNumber: 4}}, nil)
	lc.On("TransferFungible", mock.Anything, "0.0.100", "0.0.2001", "buyer-private-key", "0.0.2002", int64(5000)).
		Return(ledger.TxResult{TransactionID: "pay-tx"}, nil)
	lc.On("Unfreeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("Associate", mock.Anything, "0.0.5005", "0.0.2001", "buyer-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("TransferUnits", mock.Anything, "0.0.5005", []int64{4}, "0.0.2002", "owner-private-key", "0.0.2001").
		Return(ledger.TxResult{TransactionID: "deliver-tx"}, nil)
	lc.On("Freeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{}, errors.New("FREEZE_KEY_MISMATCH"))
	expectRecordUpdate(store, lc, "0.0.5005")

	result, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:    "0.0.5005",
		Amount:     1,
		TotalValue: decimal.NewFromInt(50),
	}, "user-1")

	assert.NoError(t, err)
	// Delivery succeeded; a failed freeze never fails the purchase.
	assert.True(t, result.Success)
	assert.Empty(t, result.FreezeTransactionID)
	assert.Contains(t, result.Warnings, "Failed to freeze purchased units: FREEZE_KEY_MISMATCH")
}

func TestPurchaseAllBatchesFailedWarnsAndSkipsFreeze(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	buyer, owner := purchaseAccounts(t)
	store.On("GetAccount", mock.Anything, "user-1").Return(buyer, true, nil)
	store.On("GetToken", mock.Anything, "0.0.5005").
		Return(models.Token{TokenID: "0.0.5005", CreatedBy: "owner-1"}, true, nil)
	store.On("GetAccount", mock.Anything, "owner-1").Return(owner, true, nil)

	lc.On("OwnedUnits", mock.Anything, "0.0.5005", "0.0.2002", 2, ledger.OrderAsc).
		Return([]ledger.OwnedUnit{{SerialNumber: 1}, {SerialNumber: 2}}, nil)
	lc.On("TransferFungible", mock.Anything, "0.0.100", "0.0.2001", "buyer-private-key", "0.0.2002", int64(10000)).
		Return(ledger.TxResult{TransactionID: "pay-tx"}, nil)
	lc.On("Unfreeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("Associate", mock.Anything, "0.0.5005", "0.0.2001", "buyer-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("TransferUnits", mock.Anything, "0.0.5005", []int64{1, 2}, "0.0.2002", "owner-private-key", "0.0.2001").
		Return(ledger.TxResult{}, errors.New("INVALID_SIGNATURE"))
	expectRecordUpdate(store, lc, "0.0.5005")

	result, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:    "0.0.5005",
		Amount:     2,
		TotalValue: decimal.NewFromInt(100),
	}, "user-1")

	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.SerialNumbers)
	assert.Contains(t, result.Warnings, "Payment was transferred but no units were delivered; manual reconciliation required")
	lc.AssertNotCalled(t, "Freeze", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseMultipleDeliveryBatchesFreezeOnce(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	buyer, owner := purchaseAccounts(t)
	store.On("GetAccount", mock.Anything, "user-1").Return(buyer, true, nil)
	store.On("GetToken", mock.Anything, "0.0.5005").
		Return(models.Token{TokenID: "0.0.5005", CreatedBy: "owner-1"}, true, nil)
	store.On("GetAccount", mock.Anything, "owner-1").Return(owner, true, nil)

	units := make([]ledger.OwnedUnit, 12)
	for i := range units {
		units[i] = ledger.OwnedUnit{SerialNumber: int64(i + 1)}
	}
	lc.On("OwnedUnits", mock.Anything, "0.0.5005", "0.0.2002", 12, ledger.OrderAsc).Return(units, nil)
	lc.On("TransferFungible", mock.Anything, "0.0.100", "0.0.2001", "buyer-private-key", "0.0.2002", int64(60000)).
		Return(ledger.TxResult{TransactionID: "pay-tx"}, nil)
	lc.On("Unfreeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("Associate", mock.Anything, "0.0.5005", "0.0.2001", "buyer-private-key").
		Return(ledger.TxResult{}, nil)
	lc.On("TransferUnits", mock.Anything, "0.0.5005", []int64{1, 2, 3, 4, 5}, "0.0.2002", "owner-private-key", "0.0.2001").
		Return(ledger.TxResult{TransactionID: "deliver-1"}, nil).Once()
	lc.On("TransferUnits", mock.Anything, "0.0.5005", []int64{6, 7, 8, 9, 10}, "0.0.2002", "owner-private-key", "0.0.2001").
		Return(ledger.TxResult{TransactionID: "deliver-2"}, nil).Once()
	lc.On("TransferUnits", mock.Anything, "0.0.5005", []int64{11, 12}, "0.0.2002", "owner-private-key", "0.0.2001").
		Return(ledger.TxResult{TransactionID: "deliver-3"}, nil).Once()
	lc.On("Freeze", mock.Anything, "0.0.5005", "0.0.2001", "owner-private-key").
		Return(ledger.TxResult{TransactionID: "freeze-tx"}, nil).Once()
	expectRecordUpdate(store, lc, "0.0.5005")

	result, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:    "0.0.5005",
		Amount:     12,
		TotalValue: decimal.NewFromInt(600),
	}, "user-1")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Batches, 3)
	assert.Len(t, result.SerialNumbers, 12)
	lc.AssertNumberOfCalls(t, "Freeze", 1)
}

func TestPurchaseSpecificSerialNotAvailable(t *testing.T) {
	store := new(MockStore)
	lc := new(MockLedger)
	svc := newPurchaseService(store, lc)

	buyer, owner := purchaseAccounts(t)
	store.On("GetAccount", mock.Anything, "user-1").Return(buyer, true, nil)
	store.On("GetToken", mock.Anything, "0.0.5005").
		Return(models.Token{TokenID: "0.0.5005", CreatedBy: "owner-1"}, true, nil)
	store.On("GetAccount", mock.Anything, "owner-1").Return(owner, true, nil)

	// A specific-serial request widens the discovery window.
	lc.On("OwnedUnits", mock.Anything, "0.0.5005", "0.0.2002", 100, ledger.OrderAsc).
		Return([]ledger.OwnedUnit{{SerialNumber: 1}, {SerialNumber: 2}}, nil)

	_, err := svc.Process(context.Background(), jobctx.Context{}, services.PurchaseInput{
		TokenID:      "0.0.5005",
		Amount:       1,
		TotalValue:   decimal.NewFromInt(50),
		SerialNumber: 42,
	}, "user-1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "serial number 42 is not available")
	lc.AssertNotCalled(t, "TransferFungible", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
