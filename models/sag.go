package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SagProperties is the structured payload stored in the sag_properties jsonb
// column. Risk fields are empty until the evaluation step fills them in.
type SagProperties struct {
	AssetType             string          `json:"assetType" validate:"required"`
	Karat                 int             `json:"karat" validate:"gt=0,lte=24"`
	WeightGrams           decimal.Decimal `json:"weightG" validate:"required"`
	Purity                int             `json:"purity" validate:"gt=0,lte=999"`
	Valuation             decimal.Decimal `json:"valuation" validate:"required"`
	Currency              string          `json:"currency" validate:"required,len=3"`
	EnableMinting         bool            `json:"enableMinting"`
	MintShare             int             `json:"mintShare" validate:"gt=0"`
	SoldShare             int             `json:"soldShare"`
	Loan                  decimal.Decimal `json:"loan"`
	LoanPercentage        decimal.Decimal `json:"loanPercentage"`
	TenorMonths           int             `json:"tenorM" validate:"gt=0"`
	InvestorFinancingType string          `json:"investorFinancingType"`
	InvestorROIPercentage decimal.Decimal `json:"investorRoiPercentage"`
	ImageURLs             []string        `json:"imageUrl,omitempty"`

	// Filled in by the risk evaluation step.
	RiskLevel string  `json:"riskLevel,omitempty"`
	LTV       float64 `json:"ltv,omitempty"`
	Action    string  `json:"action,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
	EvalID    string  `json:"evalId,omitempty"`
}

// Value implements driver.Valuer so sqlx can write the jsonb column.
func (p SagProperties) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for the jsonb column.
func (p *SagProperties) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = SagProperties{}
		return nil
	default:
		return fmt.Errorf("unsupported type %T for SagProperties", src)
	}
}

// Sag is a Secured Asset-backed Gold listing. TokenID stays empty until at
// least one mint batch for its token class has succeeded.
type Sag struct {
	SagID          string        `db:"sag_id" json:"sagId"`
	TokenID        string        `db:"token_id" json:"tokenId"`
	SagName        string        `db:"sag_name" json:"sagName"`
	SagDescription string        `db:"sag_description" json:"sagDescription"`
	Properties     SagProperties `db:"sag_properties" json:"sagProperties"`
	CertNo         string        `db:"cert_no" json:"certNo"`
	Status         string        `db:"status" json:"status"`
	OriginalOwner  string        `db:"original_owner" json:"originalOwner"`
	ExpiredAt      time.Time     `db:"expired_at" json:"expiredAt"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}
