package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/jobctx"
	"github.com/silsilat/tokenization-backend/ledger"
	"github.com/silsilat/tokenization-backend/models"
	"github.com/silsilat/tokenization-backend/secrets"
	"github.com/silsilat/tokenization-backend/storage"
)

// BurnBatchSize is how many serials one burn call may carry.
const BurnBatchSize = 5

// RepaymentInput identifies the matured SAG token class to unwind.
type RepaymentInput struct {
	TokenID string `json:"tokenId" validate:"required"`
}

// HolderSettlement records the outcome for one unit holder: the buyback
// payment and the return of their units to the treasury.
type HolderSettlement struct {
	AccountID            string          `json:"accountId"`
	Units                int             `json:"units"`
	Amount               decimal.Decimal `json:"amount"`
	SerialNumbers        []int64         `json:"serialNumbers"`
	PaymentTransactionID string          `json:"paymentTransactionId,omitempty"`
	ReturnTransactionID  string          `json:"returnTransactionId,omitempty"`
	Paid                 bool            `json:"paid"`
	Recovered            bool            `json:"recovered"`
	Error                string          `json:"error,omitempty"`
}

// BurnBatchResult records the outcome of one burn batch.
type BurnBatchResult struct {
	BatchNumber   int     `json:"batchNumber"`
	SerialNumbers []int64 `json:"serialNumbers"`
	TransactionID string  `json:"transactionId"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

// RepaymentResult is the structured outcome of one repayment job.
type RepaymentResult struct {
	Success        bool               `json:"success"`
	TokenID        string             `json:"tokenId"`
	SagID          string             `json:"sagId,omitempty"`
	TotalBuyback   decimal.Decimal    `json:"totalBuyback"`
	Holders        []HolderSettlement `json:"holders"`
	UnitsRecovered int                `json:"unitsRecovered"`
	UnitsBurned    int                `json:"unitsBurned"`
	BurnBatches    []BurnBatchResult  `json:"burnBatches,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// RepaymentConfig holds the fixed platform identities the orchestrator needs.
type RepaymentConfig struct {
	FungibleTokenID string
	MasterKey       string
}

// RepaymentService unwinds a matured SAG: every outside holder is bought
// back at the issuance unit price, the recovered units return to the
// treasury and are burned, and the SAG closes. Per-holder and per-batch
// failures are tolerated and surfaced as warnings; a failed holder keeps
// both their units and the missed payment.
type RepaymentService struct {
	store    storage.Store
	ledger   ledger.Client
	recon    *Reconciler
	cfg      RepaymentConfig
	validate *validator.Validate
	log      *zap.Logger
}

func NewRepaymentService(store storage.Store, lc ledger.Client, recon *Reconciler, cfg RepaymentConfig, log *zap.Logger) *RepaymentService {
	return &RepaymentService{
		store:    store,
		ledger:   lc,
		recon:    recon,
		cfg:      cfg,
		validate: validator.New(),
		log:      log,
	}
}

// Process runs one repayment job. A failed run marks the token
// repayment_failed so a later retry or operator can find it.
func (s *RepaymentService) Process(ctx context.Context, jc jobctx.Context, input RepaymentInput) (RepaymentResult, error) {
	result, err := s.process(ctx, jc, input)
	if err != nil {
		s.log.Error("repayment failed",
			zap.String("jobId", jc.JobID),
			zap.String("tokenId", input.TokenID),
			zap.Error(err))
		if markErr := s.store.UpdateTokenStatus(ctx, input.TokenID, "repayment_failed"); markErr != nil {
			s.log.Warn("failed to mark token repayment_failed",
				zap.String("tokenId", input.TokenID),
				zap.Error(markErr))
		}
		jc.Fail(err.Error())
		return RepaymentResult{Success: false, TokenID: input.TokenID, Error: err.Error()}, err
	}

	jc.Progress("complete", 100, "Repayment completed successfully")
	jc.Complete(map[string]interface{}{
		"jobId":   jc.JobID,
		"tokenId": result.TokenID,
		"sagId":   result.SagID,
		"success": true,
		"data": map[string]interface{}{
			"totalBuyback":   result.TotalBuyback,
			"holders":        result.Holders,
			"unitsRecovered": result.UnitsRecovered,
			"unitsBurned":    result.UnitsBurned,
			"burnBatches":    result.BurnBatches,
			"warnings":       result.Warnings,
		},
	})
	return result, nil
}

func (s *RepaymentService) process(ctx context.Context, jc jobctx.Context, input RepaymentInput) (RepaymentResult, error) {
	jc.Progress("validating", 10, "Validating repayment request...")

	if err := s.validate.Struct(input); err != nil {
		return RepaymentResult{}, fmt.Errorf("invalid repayment request: %w", err)
	}

	sag, found, err := s.store.GetSagByTokenID(ctx, input.TokenID)
	if err != nil {
		return RepaymentResult{}, err
	}
	if !found {
		return RepaymentResult{}, fmt.Errorf("no SAG found for token %s", input.TokenID)
	}
	if sag.Status == "closed" {
		return RepaymentResult{}, fmt.Errorf("SAG %s is already closed", sag.SagID)
	}
	if sag.Properties.MintShare <= 0 {
		return RepaymentResult{}, fmt.Errorf("SAG %s has no minted shares", sag.SagID)
	}

	token, found, err := s.store.GetToken(ctx, input.TokenID)
	if err != nil {
		return RepaymentResult{}, err
	}
	if !found {
		return RepaymentResult{}, fmt.Errorf("token %s not found", input.TokenID)
	}
	treasury, found, err := s.store.GetAccount(ctx, token.CreatedBy)
	if err != nil {
		return RepaymentResult{}, err
	}
	if !found {
		return RepaymentResult{}, fmt.Errorf("treasury account for token %s not found", input.TokenID)
	}
	treasuryKey, err := secrets.DecryptPrivateKey(treasury.EncryptedKey, s.cfg.MasterKey)
	if err != nil {
		return RepaymentResult{}, fmt.Errorf("failed to decrypt treasury key: %w", err)
	}

	jc.Progress("calculating", 30, "Calculating buyback cost per holder...")

	holders, err := s.ledger.TokenHolders(ctx, input.TokenID)
	if err != nil {
		return RepaymentResult{}, fmt.Errorf("failed to discover token holders: %w", err)
	}

	// Units sitting in the treasury were never sold; nothing to buy back.
	pricePerUnit := sag.Properties.Valuation.
		Div(decimal.NewFromInt(int64(sag.Properties.MintShare)))
	settlements := make([]HolderSettlement, 0, len(holders))
	totalBuyback := decimal.Zero
	for _, h := range holders {
		if h.AccountID == treasury.LedgerAccountID {
			continue
		}
		amount := pricePerUnit.Mul(decimal.NewFromInt(int64(len(h.SerialNumbers)))).Round(DefaultTokenDecimals)
		settlements = append(settlements, HolderSettlement{
			AccountID:     h.AccountID,
			Units:         len(h.SerialNumbers),
			Amount:        amount,
			SerialNumbers: h.SerialNumbers,
		})
		totalBuyback = totalBuyback.Add(amount)
	}

	// Pre-check against the reconciled cached balance: a short treasury is
	// rejected before any buyback transfer goes out.
	if treasury.Balance.LessThan(totalBuyback) {
		return RepaymentResult{}, fmt.Errorf("%w: %s < %s", ErrInsufficientBalance, treasury.Balance, totalBuyback)
	}

	jc.Progress("transferring", 60, fmt.Sprintf("Paying out %d holders...", len(settlements)))
	var warnings []string
	for i := range settlements {
		st := &settlements[i]
		pay, err := s.ledger.TransferFungible(ctx, s.cfg.FungibleTokenID,
			treasury.LedgerAccountID, treasuryKey, st.AccountID,
			toRaw(st.Amount, DefaultTokenDecimals))
		if err != nil {
			st.Error = err.Error()
			warnings = append(warnings, fmt.Sprintf("Buyback payment to %s failed: %s", st.AccountID, err))
			s.log.Warn("buyback payment failed",
				zap.String("holder", st.AccountID),
				zap.Error(err))
			continue
		}
		st.Paid = true
		st.PaymentTransactionID = pay.TransactionID
	}

	jc.Progress("processing_nft", 80, "Recovering and burning units...")
	recovered := s.recoverUnits(ctx, input.TokenID, treasury, treasuryKey, settlements, &warnings)
	burnBatches, burned := s.burnBatches(ctx, jc, input.TokenID, treasuryKey, recovered)
	for _, b := range burnBatches {
		if !b.Success {
			warnings = append(warnings, fmt.Sprintf("Burn batch %d failed: %s", b.BatchNumber, b.Error))
		}
	}

	jc.Progress("updating_status", 90, "Closing SAG and updating records...")
	if err := s.closeRecords(ctx, sag, token, treasury, settlements); err != nil {
		return RepaymentResult{}, err
	}

	allPaid := true
	for _, st := range settlements {
		if !st.Paid || (!st.Recovered && st.Units > 0) {
			allPaid = false
		}
	}

	return RepaymentResult{
		Success:        allPaid && burned == len(recovered),
		TokenID:        input.TokenID,
		SagID:          sag.SagID,
		TotalBuyback:   totalBuyback,
		Holders:        settlements,
		UnitsRecovered: len(recovered),
		UnitsBurned:    burned,
		BurnBatches:    burnBatches,
		Warnings:       warnings,
	}, nil
}

// recoverUnits unfreezes each paid holder and transfers their units back to
// the treasury, signed with the holder's own key. Holders without a local
// account record (or whose payout failed) keep their units.
func (s *RepaymentService) recoverUnits(
	ctx context.Context,
	tokenID string,
	treasury models.Account,
	treasuryKey string,
	settlements []HolderSettlement,
	warnings *[]string,
) []int64 {
	var recovered []int64
	for i := range settlements {
		st := &settlements[i]
		if !st.Paid {
			continue
		}

		// An account that was never frozen will fail to unfreeze; tolerated.
		if _, err := s.ledger.Unfreeze(ctx, tokenID, st.AccountID, treasuryKey); err != nil {
			s.log.Info("unfreeze skipped",
				zap.String("account", st.AccountID),
				zap.Error(err))
		}

		holder, found, err := s.store.GetAccountByLedgerID(ctx, st.AccountID)
		if err != nil || !found {
			*warnings = append(*warnings, fmt.Sprintf("No local account for holder %s; units not recovered", st.AccountID))
			continue
		}
		holderKey, err := secrets.DecryptPrivateKey(holder.EncryptedKey, s.cfg.MasterKey)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("Cannot decrypt key for holder %s; units not recovered", st.AccountID))
			continue
		}

		ret, err := s.ledger.TransferUnits(ctx, tokenID, st.SerialNumbers,
			st.AccountID, holderKey, treasury.LedgerAccountID)
		if err != nil {
			st.Error = err.Error()
			*warnings = append(*warnings, fmt.Sprintf("Unit return from %s failed: %s", st.AccountID, err))
			s.log.Warn("unit return failed",
				zap.String("holder", st.AccountID),
				zap.Error(err))
			continue
		}
		st.Recovered = true
		st.ReturnTransactionID = ret.TransactionID
		recovered = append(recovered, st.SerialNumbers...)
	}
	return recovered
}

// burnBatches destroys the recovered serials in fixed-size batches with the
// treasury's supply key. A failing batch is skipped, not fatal.
func (s *RepaymentService) burnBatches(
	ctx context.Context,
	jc jobctx.Context,
	tokenID, supplyKey string,
	serials []int64,
) ([]BurnBatchResult, int) {
	if len(serials) == 0 {
		return nil, 0
	}

	totalBatches := (len(serials) + BurnBatchSize - 1) / BurnBatchSize
	batches := make([]BurnBatchResult, 0, totalBatches)
	burned := 0
	for i := 0; i < len(serials); i += BurnBatchSize {
		end := i + BurnBatchSize
		if end > len(serials) {
			end = len(serials)
		}
		batch := serials[i:end]
		batchNumber := i/BurnBatchSize + 1

		jc.ProgressDetails("processing_nft", 90+batchNumber*5/totalBatches,
			fmt.Sprintf("Burning batch %d/%d...", batchNumber, totalBatches),
			map[string]interface{}{
				"currentBatch": batchNumber,
				"totalBatches": totalBatches,
			})

		result, err := s.ledger.Burn(ctx, tokenID, batch, supplyKey)
		if err != nil {
			s.log.Warn("burn batch failed",
				zap.String("token", tokenID),
				zap.Int("batch", batchNumber),
				zap.Error(err))
			batches = append(batches, BurnBatchResult{
				BatchNumber:   batchNumber,
				SerialNumbers: batch,
				Success:       false,
				Error:         err.Error(),
			})
			continue
		}
		batches = append(batches, BurnBatchResult{
			BatchNumber:   batchNumber,
			SerialNumbers: batch,
			TransactionID: result.TransactionID,
			Success:       true,
		})
		burned += len(batch)
	}
	return batches, burned
}

// closeRecords closes the SAG and overwrites the cached supply and every
// touched balance from the ledger, in one transaction.
func (s *RepaymentService) closeRecords(
	ctx context.Context,
	sag models.Sag,
	token models.Token,
	treasury models.Account,
	settlements []HolderSettlement,
) error {
	return s.store.Transact(ctx, func(tx storage.Store) error {
		if err := tx.UpdateSagStatus(ctx, sag.SagID, "closed"); err != nil {
			return err
		}
		if _, err := s.recon.TokenSupply(ctx, tx, token.TokenID, token.Decimals); err != nil {
			return err
		}
		if _, err := s.recon.AccountBalance(ctx, tx, treasury.LedgerAccountID, s.cfg.FungibleTokenID, DefaultTokenDecimals); err != nil {
			return err
		}
		for _, st := range settlements {
			if !st.Paid {
				continue
			}
			if _, err := s.recon.AccountBalance(ctx, tx, st.AccountID, s.cfg.FungibleTokenID, DefaultTokenDecimals); err != nil {
				return err
			}
		}
		return nil
	})
}
