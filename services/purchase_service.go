package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/jobctx"
	"github.com/silsilat/tokenization-backend/ledger"
	"github.com/silsilat/tokenization-backend/secrets"
	"github.com/silsilat/tokenization-backend/storage"
)

// DeliveryBatchSize is how many serials one unit-transfer call may carry.
const DeliveryBatchSize = 5

// ErrInsufficientBalance rejects a purchase before any ledger interaction.
var ErrInsufficientBalance = errors.New("insufficient balance")

// PurchaseInput is the buyer's request for fractional units of a SAG token.
// SerialNumber, when non-zero, requests that exact unit and forces Amount 1.
type PurchaseInput struct {
	TokenID      string          `json:"tokenId" validate:"required"`
	Amount       int             `json:"amount" validate:"gt=0"`
	TotalValue   decimal.Decimal `json:"totalValue" validate:"required"`
	SerialNumber int64           `json:"serialNumber,omitempty"`
}

// DeliveryBatchResult records the outcome of one unit-delivery batch.
type DeliveryBatchResult struct {
	BatchNumber   int     `json:"batchNumber"`
	SerialNumbers []int64 `json:"serialNumbers"`
	TransactionID string  `json:"transactionId"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

// PurchaseResult is the structured outcome of one purchase job.
type PurchaseResult struct {
	Success                  bool                  `json:"success"`
	TokenID                  string                `json:"tokenId"`
	SerialNumbers            []int64               `json:"serialNumbers"`
	BuyerAccountID           string                `json:"buyerAccountId,omitempty"`
	PaymentTransactionID     string                `json:"paymentTransactionId,omitempty"`
	FreezeTransactionID      string                `json:"freezeTransactionId,omitempty"`
	AssociationTransactionID string                `json:"associationTransactionId,omitempty"`
	Batches                  []DeliveryBatchResult `json:"batches,omitempty"`
	Warnings                 []string              `json:"warnings,omitempty"`
	Error                    string                `json:"error,omitempty"`
}

// PurchaseConfig holds the fixed platform identities the orchestrator needs.
type PurchaseConfig struct {
	FungibleTokenID string
	MasterKey       string
}

// PurchaseService drives the buyer flow: cached-balance pre-check, serial
// allocation, payment, association/unfreeze, batched delivery, freeze, and
// reconciliation. The payment transfer has no compensating reversal; a
// delivery failure after payment surfaces as warnings, not an automatic
// refund.
type PurchaseService struct {
	store    storage.Store
	ledger   ledger.Client
	recon    *Reconciler
	cfg      PurchaseConfig
	validate *validator.Validate
	log      *zap.Logger
}

func NewPurchaseService(store storage.Store, lc ledger.Client, recon *Reconciler, cfg PurchaseConfig, log *zap.Logger) *PurchaseService {
	return &PurchaseService{
		store:    store,
		ledger:   lc,
		recon:    recon,
		cfg:      cfg,
		validate: validator.New(),
		log:      log,
	}
}

// Process runs one purchase job for the buyer identified by userID.
func (s *PurchaseService) Process(ctx context.Context, jc jobctx.Context, input PurchaseInput, userID string) (PurchaseResult, error) {
	result, err := s.process(ctx, jc, input, userID)
	if err != nil {
		s.log.Error("token purchase failed",
			zap.String("jobId", jc.JobID),
			zap.String("tokenId", input.TokenID),
			zap.Error(err))
		jc.Fail(err.Error())
		return PurchaseResult{Success: false, TokenID: input.TokenID, SerialNumbers: []int64{}, Error: err.Error()}, err
	}

	jc.Progress("complete", 100, "Token purchase completed successfully")
	jc.Complete(map[string]interface{}{
		"jobId":         jc.JobID,
		"tokenId":       result.TokenID,
		"serialNumbers": result.SerialNumbers,
		"accountId":     result.BuyerAccountID,
		"data": map[string]interface{}{
			"paymentTransactionId":     result.PaymentTransactionID,
			"freezeTransactionId":      result.FreezeTransactionID,
			"associationTransactionId": result.AssociationTransactionID,
			"batches":                  result.Batches,
			"warnings":                 result.Warnings,
		},
	})
	return result, nil
}

func (s *PurchaseService) process(ctx context.Context, jc jobctx.Context, input PurchaseInput, userID string) (PurchaseResult, error) {
	jc.Progress("validating", 10, "Validating purchase parameters...")

	if err := s.validate.Struct(input); err != nil {
		return PurchaseResult{}, fmt.Errorf("invalid purchase request: %w", err)
	}
	// A specific serial can only be bought one at a time; rejected before any
	// ledger call.
	if input.SerialNumber > 0 && input.Amount != 1 {
		return PurchaseResult{}, fmt.Errorf("cannot specify both amount > 1 and a specific serial number")
	}

	buyer, found, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !found {
		return PurchaseResult{}, fmt.Errorf("buyer account for user %s not found", userID)
	}

	// Pre-check against the reconciled cached balance: a short buyer is
	// rejected without a single ledger interaction.
	jc.Progress("checking_balance", 20, "Checking wallet balance and available units...")
	if buyer.Balance.LessThan(input.TotalValue) {
		return PurchaseResult{}, fmt.Errorf("%w: %s < %s", ErrInsufficientBalance, buyer.Balance, input.TotalValue)
	}

	token, found, err := s.store.GetToken(ctx, input.TokenID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !found {
		return PurchaseResult{}, fmt.Errorf("token %s not found", input.TokenID)
	}
	owner, found, err := s.store.GetAccount(ctx, token.CreatedBy)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !found {
		return PurchaseResult{}, fmt.Errorf("owning account for token %s not found", input.TokenID)
	}

	serials, warnings, err := s.allocateSerials(ctx, input, owner.LedgerAccountID)
	if err != nil {
		return PurchaseResult{}, err
	}

	buyerKey, err := secrets.DecryptPrivateKey(buyer.EncryptedKey, s.cfg.MasterKey)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to decrypt buyer key: %w", err)
	}
	ownerKey, err := secrets.DecryptPrivateKey(owner.EncryptedKey, s.cfg.MasterKey)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to decrypt owner key: %w", err)
	}

	jc.Progress("processing_payment", 30, "Processing payment transfer...")
	payment, err := s.ledger.TransferFungible(ctx, s.cfg.FungibleTokenID,
		buyer.LedgerAccountID, buyerKey, owner.LedgerAccountID,
		toRaw(input.TotalValue, DefaultTokenDecimals))
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to transfer payment: %w", err)
	}

	// An account that was never frozen will fail to unfreeze; tolerated.
	if _, err := s.ledger.Unfreeze(ctx, input.TokenID, buyer.LedgerAccountID, ownerKey); err != nil {
		s.log.Info("unfreeze skipped",
			zap.String("account", buyer.LedgerAccountID),
			zap.Error(err))
	}

	associationTxID := ""
	if assoc, err := s.ledger.Associate(ctx, input.TokenID, buyer.LedgerAccountID, buyerKey); err != nil {
		// Already-associated accounts land here; tolerated.
		s.log.Info("token association skipped",
			zap.String("account", buyer.LedgerAccountID),
			zap.Error(err))
	} else {
		associationTxID = assoc.TransactionID
	}

	jc.Progress("delivering_nfts", 50, "Transferring units to your account...")
	batches, delivered, allDelivered := s.deliverBatches(ctx, jc, input.TokenID, serials, owner.LedgerAccountID, ownerKey, buyer.LedgerAccountID)
	for _, b := range batches {
		if !b.Success {
			warnings = append(warnings, fmt.Sprintf("Delivery batch %d failed: %s", b.BatchNumber, b.Error))
		}
	}
	if len(delivered) == 0 {
		// Design gap: the payment is not reversed automatically.
		warnings = append(warnings, "Payment was transferred but no units were delivered; manual reconciliation required")
	}

	freezeTxID := ""
	if allDelivered && len(delivered) > 0 {
		jc.Progress("freezing_tokens", 85, "Securing units in your account...")
		if frozen, err := s.ledger.Freeze(ctx, input.TokenID, buyer.LedgerAccountID, ownerKey); err != nil {
			s.log.Warn("failed to freeze purchased units",
				zap.String("account", buyer.LedgerAccountID),
				zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("Failed to freeze purchased units: %s", err))
		} else {
			freezeTxID = frozen.TransactionID
		}
	}

	jc.Progress("updating_database", 95, "Updating records and balances...")
	if err := s.updateRecords(ctx, input, len(serials), buyer.LedgerAccountID, owner.LedgerAccountID); err != nil {
		return PurchaseResult{}, err
	}

	return PurchaseResult{
		Success:                  allDelivered && len(delivered) > 0,
		TokenID:                  input.TokenID,
		SerialNumbers:            delivered,
		BuyerAccountID:           buyer.LedgerAccountID,
		PaymentTransactionID:     payment.TransactionID,
		FreezeTransactionID:      freezeTxID,
		AssociationTransactionID: associationTxID,
		Batches:                  batches,
		Warnings:                 warnings,
	}, nil
}

// allocateSerials discovers the owner's available units and picks the serials
// to deliver. Deleted units are excluded; allocation is ascending by serial.
func (s *PurchaseService) allocateSerials(ctx context.Context, input PurchaseInput, ownerAccountID string) ([]int64, []string, error) {
	limit := input.Amount
	if input.SerialNumber > 0 {
		limit = 100
	}
	units, err := s.ledger.OwnedUnits(ctx, input.TokenID, ownerAccountID, limit, ledger.OrderAsc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query available units: %w", err)
	}

	available := make([]int64, 0, len(units))
	for _, u := range units {
		if !u.Deleted {
			available = append(available, u.SerialNumber)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i] < available[j] })

	if len(available) == 0 {
		return nil, nil, fmt.Errorf("no units available for purchase")
	}

	if input.SerialNumber > 0 {
		for _, serial := range available {
			if serial == input.SerialNumber {
				return []int64{input.SerialNumber}, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("serial number %d is not available", input.SerialNumber)
	}

	var warnings []string
	count := input.Amount
	if count > len(available) {
		count = len(available)
		warnings = append(warnings, fmt.Sprintf("Requested amount (%d) exceeded available supply (%d)", input.Amount, len(available)))
	}
	return available[:count], warnings, nil
}

// deliverBatches transfers the allocated serials owner -> buyer in fixed-size
// batches, continuing past individual failures.
func (s *PurchaseService) deliverBatches(
	ctx context.Context,
	jc jobctx.Context,
	tokenID string,
	serials []int64,
	ownerAccountID, ownerKey, buyerAccountID string,
) (batches []DeliveryBatchResult, delivered []int64, allDelivered bool) {
	delivered = []int64{}
	allDelivered = true
	totalBatches := (len(serials) + DeliveryBatchSize - 1) / DeliveryBatchSize

	for i := 0; i < len(serials); i += DeliveryBatchSize {
		end := i + DeliveryBatchSize
		if end > len(serials) {
			end = len(serials)
		}
		batch := serials[i:end]
		batchNumber := i/DeliveryBatchSize + 1

		jc.ProgressDetails("delivering_nfts", 50+i*30/len(serials),
			fmt.Sprintf("Processing batch %d/%d: %d units", batchNumber, totalBatches, len(batch)),
			map[string]interface{}{
				"currentBatch":  batchNumber,
				"totalBatches":  totalBatches,
				"serialNumbers": batch,
			})

		result, err := s.ledger.TransferUnits(ctx, tokenID, batch, ownerAccountID, ownerKey, buyerAccountID)
		if err != nil {
			s.log.Warn("delivery batch failed",
				zap.String("token", tokenID),
				zap.Int("batch", batchNumber),
				zap.Error(err))
			batches = append(batches, DeliveryBatchResult{
				BatchNumber:   batchNumber,
				SerialNumbers: batch,
				Success:       false,
				Error:         err.Error(),
			})
			allDelivered = false
			continue
		}

		batches = append(batches, DeliveryBatchResult{
			BatchNumber:   batchNumber,
			SerialNumbers: batch,
			TransactionID: result.TransactionID,
			Success:       true,
		})
		delivered = append(delivered, batch...)
	}
	return batches, delivered, allDelivered
}

// updateRecords bumps the SAG's soldShare by the allocated unit count and
// overwrites cached supply and balances from the ledger, in one transaction.
// Incrementing by the allocated (not delivered) count is a known discrepancy
// risk when delivery batches fail after payment.
func (s *PurchaseService) updateRecords(ctx context.Context, input PurchaseInput, allocated int, buyerAccountID, ownerAccountID string) error {
	return s.store.Transact(ctx, func(tx storage.Store) error {
		sag, found, err := tx.GetSagByTokenID(ctx, input.TokenID)
		if err != nil {
			return err
		}
		if found {
			props := sag.Properties
			props.SoldShare += allocated
			if err := tx.UpdateSagProperties(ctx, sag.SagID, props); err != nil {
				return err
			}
		}

		if _, err := s.recon.TokenSupply(ctx, tx, s.cfg.FungibleTokenID, DefaultTokenDecimals); err != nil {
			return err
		}
		if _, err := s.recon.AccountBalance(ctx, tx, buyerAccountID, s.cfg.FungibleTokenID, DefaultTokenDecimals); err != nil {
			return err
		}
		if _, err := s.recon.AccountBalance(ctx, tx, ownerAccountID, s.cfg.FungibleTokenID, DefaultTokenDecimals); err != nil {
			return err
		}
		return nil
	})
}
