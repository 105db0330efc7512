package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskLevel is the tier assigned to a loan-to-value ratio.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// EvaluationAction is the evaluator's recommended handling of the SAG.
type EvaluationAction string

const (
	ActionApprove    EvaluationAction = "approve"
	ActionMonitor    EvaluationAction = "monitor"
	ActionMarginCall EvaluationAction = "margin_call"
	ActionReject     EvaluationAction = "reject"
)

// EvaluationInput holds the derived figures handed to the risk evaluator.
type EvaluationInput struct {
	Principal   decimal.Decimal
	WeightGrams decimal.Decimal
	Purity      int
	TenorDays   int
}

// Verdict is the closed result shape of one evaluation.
type Verdict struct {
	RiskLevel       RiskLevel
	LTV             float64
	CollateralValue decimal.Decimal
	Action          EvaluationAction
	Rationale       string
	EvalID          string
}

// Evaluator produces a risk verdict for a SAG before its final persist.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (Verdict, error)
}

// PriceSource quotes the current gold price per gram in a currency.
type PriceSource interface {
	PricePerGram(ctx context.Context, currency string) (decimal.Decimal, error)
}

// StaticPriceSource quotes one configured price. Stand-in until a live feed
// is wired.
type StaticPriceSource struct {
	Price decimal.Decimal
}

func (s StaticPriceSource) PricePerGram(ctx context.Context, currency string) (decimal.Decimal, error) {
	return s.Price, nil
}

// GoldEvaluator scores collateral coverage of the principal.
type GoldEvaluator struct {
	Prices        PriceSource
	Currency      string
	HaircutBps    int
	MaxSafeLTV    float64
	MarginCallLTV float64
}

func NewGoldEvaluator(prices PriceSource, currency string) *GoldEvaluator {
	return &GoldEvaluator{
		Prices:        prices,
		Currency:      currency,
		HaircutBps:    500,
		MaxSafeLTV:    0.80,
		MarginCallLTV: 0.85,
	}
}

// Evaluate computes collateral value, LTV, tier and recommended action.
// Collateral = weight * (purity/999) * price/g * (1 - haircutBps/10000).
func (g *GoldEvaluator) Evaluate(ctx context.Context, input EvaluationInput) (Verdict, error) {
	if input.Purity <= 0 || input.Purity > 999 {
		return Verdict{}, fmt.Errorf("purity must be in (0, 999], got %d", input.Purity)
	}
	if !input.WeightGrams.IsPositive() {
		return Verdict{}, fmt.Errorf("gold weight must be positive")
	}

	price, err := g.Prices.PricePerGram(ctx, g.Currency)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to fetch gold price: %w", err)
	}

	purityFactor := decimal.NewFromInt(int64(input.Purity)).Div(decimal.NewFromInt(999))
	haircutFactor := decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(g.HaircutBps)).Div(decimal.NewFromInt(10000)))
	collateral := input.WeightGrams.Mul(purityFactor).Mul(price).Mul(haircutFactor)

	if !collateral.IsPositive() {
		return Verdict{}, fmt.Errorf("collateral value is zero")
	}

	ltv, _ := input.Principal.Div(collateral).Float64()
	level := riskLevelForLTV(ltv)
	action := g.actionForLTV(ltv)

	return Verdict{
		RiskLevel:       level,
		LTV:             ltv,
		CollateralValue: collateral.Round(2),
		Action:          action,
		Rationale: fmt.Sprintf("Risk level %s (LTV %.2f%% of %s %s collateral over %d days)",
			level, ltv*100, g.Currency, collateral.Round(2), input.TenorDays),
		EvalID: uuid.New().String(),
	}, nil
}

func riskLevelForLTV(ltv float64) RiskLevel {
	switch {
	case ltv < 0.60:
		return RiskVeryLow
	case ltv <= 0.69:
		return RiskLow
	case ltv <= 0.79:
		return RiskMedium
	case ltv <= 0.85:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

func (g *GoldEvaluator) actionForLTV(ltv float64) EvaluationAction {
	switch {
	case ltv <= g.MaxSafeLTV:
		return ActionApprove
	case ltv <= g.MarginCallLTV:
		return ActionMonitor
	case ltv <= 1.0:
		return ActionMarginCall
	default:
		return ActionReject
	}
}
