package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"koru/internal/domain/account"
)

const accountSelectColumns = `
	id, connection_id, name, currency, account_type, iban, bban, bic, scan_code,
	external_id, owner_name, usage_type, iso_account_type, notes, balance_offset,
	created_at, updated_at`

// Provider-derived columns. connection_id, notes and balance_offset are
// never overwritten by a re-import.
var accountUpdateColumns = []string{
	"name", "currency", "account_type", "iban", "bban", "bic",
	"scan_code", "owner_name", "usage_type", "iso_account_type",
}

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db       *DB
	upserter *Upserter
}

// Ensure AccountRepository implements account.Repository
var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db, upserter: NewUpserter(db)}
}

// Upsert inserts the account or refreshes its provider-derived columns,
// then reads back the stored row so callers get the stable internal ID.
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	_, err := r.upserter.Upsert(ctx, accountUpsertSpec(params))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	return r.GetByExternalID(ctx, params.ExternalID)
}

func accountUpsertSpec(p account.UpsertParams) UpsertSpec {
	columns := append([]string{"id", "connection_id", "external_id"}, accountUpdateColumns...)
	row := []any{
		p.ID, nullString(p.ConnectionID), p.ExternalID,
		p.Name, p.Currency, string(p.AccountType), p.IBAN, p.BBAN, p.BIC,
		p.ScanCode, p.OwnerName, nullString(string(p.UsageType)), nullString(string(p.ISOAccountType)),
	}

	return UpsertSpec{
		Table:          "accounts",
		Columns:        columns,
		Rows:           [][]any{row},
		ConflictTarget: []string{"external_id"},
		UpdateColumns:  accountUpdateColumns,
		Overrides:      map[string]Override{"updated_at": Expr("now()")},
	}
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return r.getOne(ctx, "id", id)
}

// GetByExternalID retrieves an account by its provider account ID
func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*account.Account, error) {
	return r.getOne(ctx, "external_id", externalID)
}

func (r *AccountRepository) getOne(ctx context.Context, column, value string) (*account.Account, error) {
	query := `SELECT ` + accountSelectColumns + ` FROM accounts WHERE ` + column + ` = $1`

	var acc account.Account
	err := r.db.GetContext(ctx, &acc, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
