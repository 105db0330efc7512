package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/ipfs"
	"github.com/silsilat/tokenization-backend/jobctx"
	"github.com/silsilat/tokenization-backend/ledger"
	"github.com/silsilat/tokenization-backend/models"
	"github.com/silsilat/tokenization-backend/secrets"
	"github.com/silsilat/tokenization-backend/storage"
)

// IssuanceInput is the pre-validated request for creating a SAG. Validation
// runs before any side effect.
type IssuanceInput struct {
	SagName        string               `json:"sagName" validate:"required"`
	SagDescription string               `json:"sagDescription" validate:"required"`
	CertNo         string               `json:"certNo" validate:"required"`
	ExpiredAt      string               `json:"expiredAt" validate:"required"`
	Properties     models.SagProperties `json:"sagProperties" validate:"required"`
}

// IssuanceResult is the structured outcome consumed by the queue layer.
type IssuanceResult struct {
	Success       bool        `json:"success"`
	SagID         string      `json:"sagId,omitempty"`
	TokenID       string      `json:"tokenId,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
	TotalMinted   int         `json:"totalMinted"`
	TotalBatches  int         `json:"totalBatches"`
	SerialNumbers []int64     `json:"serialNumbers,omitempty"`
	Minting       MintSummary `json:"minting"`
	Error         string      `json:"error,omitempty"`
}

// IssuanceConfig holds the fixed platform identities the orchestrator needs.
type IssuanceConfig struct {
	FungibleTokenID string
	AdminAccountID  string
	MasterKey       string
}

// IssuanceService drives the end-to-end SAG creation state machine:
// validate -> valuation transfer -> SAG record -> token class -> metadata ->
// batch mint -> risk evaluation -> final persist, with one compensating
// reverse transfer if anything after the valuation transfer fails.
type IssuanceService struct {
	store     storage.Store
	ledger    ledger.Client
	mint      *MintEngine
	evaluator Evaluator
	publisher ipfs.Publisher
	recon     *Reconciler
	cfg       IssuanceConfig
	validate  *validator.Validate
	log       *zap.Logger
}

func NewIssuanceService(
	store storage.Store,
	lc ledger.Client,
	mint *MintEngine,
	evaluator Evaluator,
	publisher ipfs.Publisher,
	recon *Reconciler,
	cfg IssuanceConfig,
	log *zap.Logger,
) *IssuanceService {
	return &IssuanceService{
		store:     store,
		ledger:    lc,
		mint:      mint,
		evaluator: evaluator,
		publisher: publisher,
		recon:     recon,
		cfg:       cfg,
		validate:  validator.New(),
		log:       log,
	}
}

// Process runs one issuance job. userID identifies the pledging account.
// Failures are reported through jc and the returned result; the queue owns
// any retry policy.
func (s *IssuanceService) Process(ctx context.Context, jc jobctx.Context, input IssuanceInput, userID string) (IssuanceResult, error) {
	result, err := s.process(ctx, jc, input, userID)
	if err != nil {
		s.log.Error("SAG creation failed",
			zap.String("jobId", jc.JobID),
			zap.String("sagName", input.SagName),
			zap.Error(err))
		jc.Fail(err.Error())
		return IssuanceResult{Success: false, Error: err.Error()}, err
	}

	jc.Progress("complete", 100, "SAG creation completed successfully")
	jc.Complete(map[string]interface{}{
		"jobId":   jc.JobID,
		"sagId":   result.SagID,
		"success": true,
		"token": map[string]interface{}{
			"tokenId":       result.TokenID,
			"transactionId": result.TransactionID,
		},
		"minting": map[string]interface{}{
			"totalProcessed": result.Minting.TotalProcessed,
			"totalFailed":    result.Minting.TotalFailed,
			"batches":        len(result.Minting.Batches),
			"serialNumbers":  result.Minting.SerialNumbers,
			"summary": fmt.Sprintf("Successfully minted %d units using %d batches",
				result.Minting.TotalProcessed, len(result.Minting.Batches)),
		},
	})
	return result, nil
}

func (s *IssuanceService) process(ctx context.Context, jc jobctx.Context, input IssuanceInput, userID string) (IssuanceResult, error) {
	jc.Progress("validating", 10, "Validating SAG data and checking permissions...")

	// Fails fast before any ledger call.
	if err := s.validate.Struct(input); err != nil {
		return IssuanceResult{}, fmt.Errorf("invalid SAG data: %w", err)
	}

	admin, found, err := s.store.GetAccountByLedgerID(ctx, s.cfg.AdminAccountID)
	if err != nil {
		return IssuanceResult{}, err
	}
	if !found {
		return IssuanceResult{}, fmt.Errorf("admin ledger account %s not found", s.cfg.AdminAccountID)
	}
	pledger, found, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return IssuanceResult{}, err
	}
	if !found {
		return IssuanceResult{}, fmt.Errorf("pledging account for user %s not found", userID)
	}

	adminKey, err := secrets.DecryptPrivateKey(admin.EncryptedKey, s.cfg.MasterKey)
	if err != nil {
		return IssuanceResult{}, fmt.Errorf("failed to decrypt admin key: %w", err)
	}
	pledgerKey, err := secrets.DecryptPrivateKey(pledger.EncryptedKey, s.cfg.MasterKey)
	if err != nil {
		return IssuanceResult{}, fmt.Errorf("failed to decrypt pledger key: %w", err)
	}

	jc.Progress("processing", 20, "Processing valuation transfer...")

	valuation := input.Properties.Valuation
	rawBalance, err := s.ledger.Balance(ctx, admin.LedgerAccountID, s.cfg.FungibleTokenID)
	if err != nil {
		return IssuanceResult{}, err
	}
	if scaleRaw(rawBalance, DefaultTokenDecimals).LessThan(valuation) {
		return IssuanceResult{}, fmt.Errorf("platform balance is less than the valuation amount, please top up the treasury")
	}

	// Associating an already-associated account is tolerated.
	if _, err := s.ledger.Associate(ctx, s.cfg.FungibleTokenID, pledger.LedgerAccountID, pledgerKey); err != nil {
		s.log.Info("fungible token association skipped",
			zap.String("account", pledger.LedgerAccountID),
			zap.Error(err))
	}

	rawValuation := toRaw(valuation, DefaultTokenDecimals)
	valuationTx, err := s.ledger.TransferFungible(ctx, s.cfg.FungibleTokenID,
		admin.LedgerAccountID, adminKey, pledger.LedgerAccountID, rawValuation)
	if err != nil {
		return IssuanceResult{}, fmt.Errorf("failed to transfer valuation: %w", err)
	}
	s.log.Info("valuation transferred",
		zap.String("transactionId", valuationTx.TransactionID),
		zap.String("amount", valuation.String()))

	result, err := s.createAndMint(ctx, jc, input, userID, admin, pledger, adminKey)
	if err != nil {
		// The valuation transfer is already confirmed on the ledger; attempt
		// exactly one compensating reverse transfer.
		s.compensateValuation(ctx, valuationTx.TransactionID, valuation, admin, pledger, pledgerKey)
		return IssuanceResult{}, err
	}
	return result, nil
}

// createAndMint performs the local-transaction part of the flow. The ledger
// calls inside the transaction are not covered by its rollback.
func (s *IssuanceService) createAndMint(
	ctx context.Context,
	jc jobctx.Context,
	input IssuanceInput,
	userID string,
	admin, pledger models.Account,
	adminKey string,
) (IssuanceResult, error) {
	var result IssuanceResult

	err := s.store.Transact(ctx, func(tx storage.Store) error {
		jc.Progress("creating_sag", 30, "Creating SAG record...")

		props := input.Properties
		props.SoldShare = 0
		expiredAt, err := parseExpiry(input.ExpiredAt)
		if err != nil {
			return err
		}

		sag, err := tx.CreateSag(ctx, models.Sag{
			SagID:          uuid.New().String(),
			TokenID:        "",
			SagName:        input.SagName,
			SagDescription: input.SagDescription,
			Properties:     props,
			CertNo:         input.CertNo,
			Status:         "active",
			OriginalOwner:  userID,
			ExpiredAt:      expiredAt,
		})
		if err != nil {
			return err
		}

		jc.Progress("creating_token", 40, "Creating ledger token class...")
		created, err := s.ledger.CreateTokenClass(ctx, ledger.TokenClassParams{
			Name:              input.SagName,
			Symbol:            tokenSymbol(input.SagName),
			TreasuryAccountID: admin.LedgerAccountID,
			TreasuryKey:       adminKey,
			AdminPublicKey:    admin.PublicKey,
			ExpiredAt:         expiredAt,
		})
		if err != nil {
			return err
		}
		if err := tx.CreateToken(ctx, models.Token{
			TokenID:       created.TokenID,
			TransactionID: created.TransactionID,
			Status:        created.Status,
			Decimals:      0,
			Supply:        decimal.Zero,
			CreatedBy:     admin.ID,
			ExpiredAt:     expiredAt,
		}); err != nil {
			return err
		}

		jc.Progress("uploading_metadata", 50, "Publishing SAG metadata...")
		metadataURI, err := s.publisher.PublishJSON(ctx, input.SagName, props)
		if err != nil {
			return fmt.Errorf("failed to publish metadata: %w", err)
		}

		jc.Progress("minting_tokens", 60, fmt.Sprintf("Minting %d units...", props.MintShare))
		summary, err := s.mint.MintBatches(ctx, created.TokenID, props.MintShare, adminKey, []byte(metadataURI),
			func(batch, total int) {
				jc.ProgressDetails("minting_tokens", 60+batch*10/total,
					fmt.Sprintf("Minting batch %d/%d...", batch, total),
					map[string]interface{}{
						"currentBatch": batch,
						"totalBatches": total,
						"totalTokens":  props.MintShare,
					})
			})
		if err != nil {
			return err
		}
		// A SAG must never point at a token class with zero minted units.
		if summary.TotalProcessed == 0 {
			return fmt.Errorf("all %d mint batches failed for token %s", len(summary.Batches), created.TokenID)
		}

		jc.Progress("evaluating_gold", 70, "Evaluating gold collateral...")
		verdict, err := s.evaluator.Evaluate(ctx, EvaluationInput{
			Principal:   props.Loan,
			WeightGrams: props.WeightGrams,
			Purity:      props.Purity,
			TenorDays:   props.TenorMonths * 30,
		})
		if err != nil {
			return fmt.Errorf("risk evaluation failed: %w", err)
		}

		jc.Progress("updating_sag", 80, "Updating SAG with token and evaluation results...")
		props.RiskLevel = string(verdict.RiskLevel)
		props.LTV = verdict.LTV
		props.Action = string(verdict.Action)
		props.Rationale = verdict.Rationale
		props.EvalID = verdict.EvalID
		if err := tx.UpdateSagToken(ctx, sag.SagID, created.TokenID, props); err != nil {
			return err
		}

		// Overwrite both cached balances from the ledger.
		if _, err := s.recon.AccountBalance(ctx, tx, pledger.LedgerAccountID, s.cfg.FungibleTokenID, DefaultTokenDecimals); err != nil {
			return err
		}
		if _, err := s.recon.AccountBalance(ctx, tx, admin.LedgerAccountID, s.cfg.FungibleTokenID, DefaultTokenDecimals); err != nil {
			return err
		}

		result = IssuanceResult{
			Success:       true,
			SagID:         sag.SagID,
			TokenID:       created.TokenID,
			TransactionID: created.TransactionID,
			TotalMinted:   summary.TotalProcessed,
			TotalBatches:  len(summary.Batches),
			SerialNumbers: summary.SerialNumbers,
			Minting:       summary,
		}
		return nil
	})
	if err != nil {
		return IssuanceResult{}, err
	}
	return result, nil
}

// compensateValuation attempts the single reverse transfer. A failed reversal
// is logged as CRITICAL for manual operator intervention and never retried.
func (s *IssuanceService) compensateValuation(
	ctx context.Context,
	originalTxID string,
	amount decimal.Decimal,
	admin, pledger models.Account,
	pledgerKey string,
) {
	s.log.Warn("attempting to reverse valuation transfer after SAG creation failure",
		zap.String("originalTransactionId", originalTxID))

	_, err := s.ledger.TransferFungible(ctx, s.cfg.FungibleTokenID,
		pledger.LedgerAccountID, pledgerKey, admin.LedgerAccountID,
		toRaw(amount, DefaultTokenDecimals))
	if err != nil {
		s.log.Error("CRITICAL: valuation transfer could not be reversed, manual intervention required",
			zap.String("originalTransactionId", originalTxID),
			zap.String("amount", amount.String()),
			zap.String("from", admin.LedgerAccountID),
			zap.String("to", pledger.LedgerAccountID),
			zap.Error(err))
		return
	}
	s.log.Info("valuation transfer reversed", zap.String("originalTransactionId", originalTxID))
}

func parseExpiry(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiredAt %q", value)
}

func tokenSymbol(name string) string {
	symbol := strings.ToUpper(strings.ReplaceAll(name, " ", ""))
	if len(symbol) > 3 {
		symbol = symbol[:3]
	}
	return symbol
}
