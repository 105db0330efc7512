package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/silsilat/tokenization-backend/models"
)

// queries implements every Store lookup/mutation against either the pooled
// connection or an open transaction.
type queries struct {
	ext sqlx.ExtContext
}

func (q queries) CreateSag(ctx context.Context, sag models.Sag) (models.Sag, error) {
	row := q.ext.QueryRowxContext(ctx, `
		INSERT INTO sag (sag_id, token_id, sag_name, sag_description, sag_properties, cert_no, status, original_owner, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING sag_id, token_id, sag_name, sag_description, sag_properties, cert_no, status, original_owner, expired_at, created_at, updated_at`,
		sag.SagID, sag.TokenID, sag.SagName, sag.SagDescription, sag.Properties,
		sag.CertNo, sag.Status, sag.OriginalOwner, sag.ExpiredAt)

	var created models.Sag
	if err := row.StructScan(&created); err != nil {
		return models.Sag{}, fmt.Errorf("failed to create SAG record: %w", err)
	}
	return created, nil
}

func (q queries) GetSag(ctx context.Context, sagID string) (models.Sag, bool, error) {
	var sag models.Sag
	err := sqlx.GetContext(ctx, q.ext, &sag, `SELECT * FROM sag WHERE sag_id = $1`, sagID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sag{}, false, nil
	}
	if err != nil {
		return models.Sag{}, false, fmt.Errorf("failed to get SAG: %w", err)
	}
	return sag, true, nil
}

func (q queries) GetSagByTokenID(ctx context.Context, tokenID string) (models.Sag, bool, error) {
	var sag models.Sag
	err := sqlx.GetContext(ctx, q.ext, &sag, `SELECT * FROM sag WHERE token_id = $1`, tokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sag{}, false, nil
	}
	if err != nil {
		return models.Sag{}, false, fmt.Errorf("failed to get SAG by token id: %w", err)
	}
	return sag, true, nil
}

func (q queries) UpdateSagToken(ctx context.Context, sagID, tokenID string, props models.SagProperties) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE sag SET token_id = $1, sag_properties = $2, updated_at = now() WHERE sag_id = $3`,
		tokenID, props, sagID)
	if err != nil {
		return fmt.Errorf("failed to update SAG token: %w", err)
	}
	return nil
}

func (q queries) UpdateSagProperties(ctx context.Context, sagID string, props models.SagProperties) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE sag SET sag_properties = $1, updated_at = now() WHERE sag_id = $2`,
		props, sagID)
	if err != nil {
		return fmt.Errorf("failed to update SAG properties: %w", err)
	}
	return nil
}

func (q queries) UpdateSagStatus(ctx context.Context, sagID, status string) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE sag SET status = $1, updated_at = now() WHERE sag_id = $2`,
		status, sagID)
	if err != nil {
		return fmt.Errorf("failed to update SAG status: %w", err)
	}
	return nil
}

func (q queries) GetAccount(ctx context.Context, id string) (models.Account, bool, error) {
	var acc models.Account
	err := sqlx.GetContext(ctx, q.ext, &acc, `SELECT * FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, true, nil
}

func (q queries) GetAccountByLedgerID(ctx context.Context, ledgerAccountID string) (models.Account, bool, error) {
	var acc models.Account
	err := sqlx.GetContext(ctx, q.ext, &acc, `SELECT * FROM accounts WHERE ledger_account_id = $1`, ledgerAccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, fmt.Errorf("failed to get account by ledger id: %w", err)
	}
	return acc, true, nil
}

func (q queries) ListAccounts(ctx context.Context) ([]models.Account, error) {
	accounts := []models.Account{}
	if err := sqlx.SelectContext(ctx, q.ext, &accounts, `SELECT * FROM accounts ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (q queries) UpdateAccountBalance(ctx context.Context, ledgerAccountID string, balance decimal.Decimal) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = now() WHERE ledger_account_id = $2`,
		balance, ledgerAccountID)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return nil
}

func (q queries) CreateToken(ctx context.Context, token models.Token) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO tokens (token_id, transaction_id, status, decimals, supply, price, created_by, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		token.TokenID, token.TransactionID, token.Status, token.Decimals,
		token.Supply, token.Price, token.CreatedBy, token.ExpiredAt)
	if err != nil {
		return fmt.Errorf("failed to create token record: %w", err)
	}
	return nil
}

func (q queries) GetToken(ctx context.Context, tokenID string) (models.Token, bool, error) {
	var token models.Token
	err := sqlx.GetContext(ctx, q.ext, &token, `SELECT * FROM tokens WHERE token_id = $1`, tokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Token{}, false, nil
	}
	if err != nil {
		return models.Token{}, false, fmt.Errorf("failed to get token: %w", err)
	}
	return token, true, nil
}

func (q queries) ListTokens(ctx context.Context) ([]models.Token, error) {
	tokens := []models.Token{}
	if err := sqlx.SelectContext(ctx, q.ext, &tokens, `SELECT * FROM tokens ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

func (q queries) UpdateTokenSupply(ctx context.Context, tokenID string, supply decimal.Decimal) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE tokens SET supply = $1, updated_at = now() WHERE token_id = $2`,
		supply, tokenID)
	if err != nil {
		return fmt.Errorf("failed to update token supply: %w", err)
	}
	return nil
}

func (q queries) UpdateTokenStatus(ctx context.Context, tokenID, status string) error {
	_, err := q.ext.ExecContext(ctx,
		`UPDATE tokens SET status = $1, updated_at = now() WHERE token_id = $2`,
		status, tokenID)
	if err != nil {
		return fmt.Errorf("failed to update token status: %w", err)
	}
	return nil
}
