package postgres

import (
	"context"
	"fmt"
)

// schemaStatements are idempotent and run in order.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS connections (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		connection_type    TEXT NOT NULL,
		external_reference TEXT UNIQUE,
		institution_id     TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS connections_user_id_idx ON connections (user_id)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id               TEXT PRIMARY KEY,
		connection_id    TEXT REFERENCES connections (id) ON DELETE SET NULL,
		name             TEXT NOT NULL,
		currency         TEXT NOT NULL,
		account_type     TEXT NOT NULL,
		iban             TEXT,
		bban             TEXT,
		bic              TEXT,
		scan_code        TEXT,
		external_id      TEXT UNIQUE,
		owner_name       TEXT,
		usage_type       TEXT,
		iso_account_type TEXT,
		notes            TEXT,
		balance_offset   NUMERIC NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS accounts_iban_idx ON accounts (iban) WHERE iban IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS accounts_bban_idx ON accounts (bban) WHERE bban IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS merchants (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		category     TEXT NOT NULL,
		match_prefix TEXT NOT NULL,
		logo_url     TEXT,
		url          TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS merchants_match_prefix_idx ON merchants (match_prefix)`,

	`CREATE TABLE IF NOT EXISTS counterparties (
		id         TEXT PRIMARY KEY,
		creator_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		notes      TEXT,
		iban       TEXT,
		bban       TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id                       TEXT PRIMARY KEY,
		account_id               TEXT NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		amount                   NUMERIC NOT NULL,
		currency                 TEXT NOT NULL,
		native_amount            NUMERIC NOT NULL,
		processing_status        TEXT NOT NULL DEFAULT 'UNPROCESSED'
		                         CHECK (processing_status IN ('UNPROCESSED', 'PROCESSED')),
		opposing_name            TEXT,
		opposing_iban            TEXT,
		opposing_bban            TEXT,
		opposing_account_id      TEXT REFERENCES accounts (id) ON DELETE SET NULL,
		opposing_merchant_id     TEXT REFERENCES merchants (id) ON DELETE SET NULL,
		opposing_counterparty_id TEXT REFERENCES counterparties (id) ON DELETE SET NULL,
		provider_transaction_id  TEXT,
		internal_reference       TEXT,
		booking_time             TIMESTAMPTZ NOT NULL,
		value_time               TIMESTAMPTZ,
		created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (num_nonnulls(opposing_account_id, opposing_merchant_id, opposing_counterparty_id) <= 1)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_natural_key_idx
		ON transactions ((COALESCE(provider_transaction_id, '')), (COALESCE(internal_reference, '')))`,
	`CREATE INDEX IF NOT EXISTS transactions_account_status_idx ON transactions (account_id, processing_status)`,
	`CREATE INDEX IF NOT EXISTS transactions_booking_time_idx ON transactions (booking_time)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
