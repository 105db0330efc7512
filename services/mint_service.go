package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/ledger"
)

// MintBatchSize is how many units one mint call may produce.
const MintBatchSize = 10

// MintBatchResult records the outcome of one mint batch.
type MintBatchResult struct {
	BatchNumber   int     `json:"batchNumber"`
	SerialNumbers []int64 `json:"serialNumbers"`
	TransactionID string  `json:"transactionId"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

// MintSummary aggregates every batch of one mint request.
// TotalProcessed + TotalFailed always equals the requested amount.
type MintSummary struct {
	Batches        []MintBatchResult `json:"batches"`
	SerialNumbers  []int64           `json:"serialNumbers"`
	TotalProcessed int               `json:"totalProcessed"`
	TotalFailed    int               `json:"totalFailed"`
	Success        bool              `json:"success"`
}

// MintEngine splits a mint request into fixed-size batches and drives them
// sequentially, tolerating per-batch failure. Idempotency is the ledger's
// concern, not this engine's.
type MintEngine struct {
	Ledger    ledger.Client
	BatchSize int
	Log       *zap.Logger
}

func NewMintEngine(lc ledger.Client, log *zap.Logger) *MintEngine {
	return &MintEngine{Ledger: lc, BatchSize: MintBatchSize, Log: log}
}

// MintBatches mints amount units of tokenID in ceil(amount/BatchSize)
// batches. A failing batch is counted and skipped, not fatal. onBatch, when
// non-nil, is called before each batch with (batchNumber, totalBatches).
func (e *MintEngine) MintBatches(ctx context.Context, tokenID string, amount int, supplyKey string, metadata []byte, onBatch func(batch, total int)) (MintSummary, error) {
	if amount <= 0 {
		return MintSummary{}, fmt.Errorf("mint amount must be positive, got %d", amount)
	}

	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = MintBatchSize
	}
	totalBatches := (amount + batchSize - 1) / batchSize

	summary := MintSummary{
		Batches:       make([]MintBatchResult, 0, totalBatches),
		SerialNumbers: []int64{},
	}

	for i := 0; i < amount; i += batchSize {
		batchAmount := batchSize
		if remaining := amount - i; remaining < batchAmount {
			batchAmount = remaining
		}
		batchNumber := i/batchSize + 1

		if onBatch != nil {
			onBatch(batchNumber, totalBatches)
		}

		result, err := e.Ledger.Mint(ctx, tokenID, batchAmount, supplyKey, metadata)
		if err != nil {
			e.Log.Warn("mint batch failed",
				zap.String("token", tokenID),
				zap.Int("batch", batchNumber),
				zap.Int("amount", batchAmount),
				zap.Error(err))
			summary.Batches = append(summary.Batches, MintBatchResult{
				BatchNumber: batchNumber,
				Success:     false,
				Error:       err.Error(),
			})
			summary.TotalFailed += batchAmount
			continue
		}

		summary.Batches = append(summary.Batches, MintBatchResult{
			BatchNumber:   batchNumber,
			SerialNumbers: result.SerialNumbers,
			TransactionID: result.TransactionID,
			Success:       true,
		})
		summary.SerialNumbers = append(summary.SerialNumbers, result.SerialNumbers...)
		summary.TotalProcessed += batchAmount
	}

	summary.Success = summary.TotalFailed == 0
	return summary, nil
}
