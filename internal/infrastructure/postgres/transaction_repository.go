package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"koru/internal/domain/matching"
	"koru/internal/domain/transaction"
)

var transactionInsertColumns = []string{
	"id", "account_id", "processing_status", "provider_transaction_id", "internal_reference",
	"amount", "currency", "native_amount", "opposing_name", "opposing_iban", "opposing_bban",
	"booking_time", "value_time",
}

// Provider-derived columns compared on re-import. Identity columns and the
// matching state are excluded; the latter is reset through overrides.
var transactionUpdateColumns = []string{
	"amount", "currency", "native_amount", "opposing_name", "opposing_iban", "opposing_bban",
	"booking_time", "value_time",
}

// Must match the expressions of transactions_natural_key_idx.
var transactionConflictTarget = []string{
	"(COALESCE(provider_transaction_id, ''))",
	"(COALESCE(internal_reference, ''))",
}

// linkBatchSize bounds the VALUES list of one bulk link statement.
const linkBatchSize = 5000

// TransactionRepository implements transaction.Repository and
// matching.Repository for PostgreSQL
type TransactionRepository struct {
	db       *DB
	upserter *Upserter
}

var (
	_ transaction.Repository = (*TransactionRepository)(nil)
	_ matching.Repository    = (*TransactionRepository)(nil)
)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db, upserter: NewUpserter(db)}
}

// UpsertBatch writes the batch in one transaction. Duplicate natural keys
// are collapsed first since Postgres refuses to update a row twice in one
// statement.
func (r *TransactionRepository) UpsertBatch(ctx context.Context, params []transaction.UpsertParams) (int64, error) {
	params = transaction.Deduplicate(params)
	if len(params) == 0 {
		return 0, nil
	}

	n, err := r.upserter.Upsert(ctx, transactionUpsertSpec(params))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert transactions: %w", err)
	}
	return n, nil
}

func transactionUpsertSpec(params []transaction.UpsertParams) UpsertSpec {
	rows := make([][]any, 0, len(params))
	for _, p := range params {
		rows = append(rows, []any{
			p.ID, p.AccountID, string(transaction.StatusUnprocessed), p.ProviderTransactionID, p.InternalReference,
			p.Amount, p.Currency, p.NativeAmount, p.OpposingName, p.OpposingIBAN, p.OpposingBBAN,
			p.BookingTime, p.ValueTime,
		})
	}

	return UpsertSpec{
		Table:          "transactions",
		Columns:        transactionInsertColumns,
		Rows:           rows,
		ConflictTarget: transactionConflictTarget,
		UpdateColumns:  transactionUpdateColumns,
		Overrides: map[string]Override{
			"processing_status":        Bind(string(transaction.StatusUnprocessed)),
			"opposing_account_id":      Expr("NULL"),
			"opposing_merchant_id":     Expr("NULL"),
			"opposing_counterparty_id": Expr("NULL"),
			"updated_at":               Expr("now()"),
		},
	}
}

// AccountLinkCandidates matches on the opposing IBAN when the transaction
// has one and on the BBAN otherwise.
func (r *TransactionRepository) AccountLinkCandidates(ctx context.Context, accountID string) ([]matching.AccountCandidate, error) {
	query := `
		SELECT DISTINCT t.id AS transaction_id, a.id AS account_id
		FROM transactions t
		JOIN accounts a ON CASE
			WHEN t.opposing_iban IS NOT NULL THEN a.iban = t.opposing_iban
			ELSE t.opposing_bban IS NOT NULL AND a.bban = t.opposing_bban
		END
		WHERE t.account_id = $1
		  AND t.processing_status = 'UNPROCESSED'
	`

	var candidates []matching.AccountCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to select account candidates: %w", err)
	}
	return candidates, nil
}

// MerchantLinkCandidates matches merchant prefixes case-insensitively.
// LIKE wildcards inside a prefix are escaped so they match literally.
func (r *TransactionRepository) MerchantLinkCandidates(ctx context.Context, accountID string) ([]matching.MerchantCandidate, error) {
	query := `
		SELECT t.id AS transaction_id, m.id AS merchant_id, m.match_prefix
		FROM transactions t
		JOIN merchants m ON m.match_prefix <> ''
			AND t.opposing_name ILIKE replace(replace(replace(m.match_prefix, '\', '\\'), '%', '\%'), '_', '\_') || '%'
		WHERE t.account_id = $1
		  AND t.processing_status = 'UNPROCESSED'
		  AND t.opposing_name IS NOT NULL
	`

	var candidates []matching.MerchantCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to select merchant candidates: %w", err)
	}
	return candidates, nil
}

// LinkAccounts sets opposing_account_id and marks the rows PROCESSED.
func (r *TransactionRepository) LinkAccounts(ctx context.Context, links []matching.Link) (int64, error) {
	return r.link(ctx, "opposing_account_id", links)
}

// LinkMerchants sets opposing_merchant_id and marks the rows PROCESSED.
func (r *TransactionRepository) LinkMerchants(ctx context.Context, links []matching.Link) (int64, error) {
	return r.link(ctx, "opposing_merchant_id", links)
}

func (r *TransactionRepository) link(ctx context.Context, column string, links []matching.Link) (int64, error) {
	if len(links) == 0 {
		return 0, nil
	}

	var linked int64
	err := r.db.InTx(ctx, "link "+column, func(tx *sqlx.Tx) error {
		for start := 0; start < len(links); start += linkBatchSize {
			end := min(start+linkBatchSize, len(links))
			query, args := buildLinkQuery(column, links[start:end])

			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			linked += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to link transactions via %s: %w", column, err)
	}
	return linked, nil
}

// buildLinkQuery renders one guarded bulk update. Rows already PROCESSED
// are skipped, which makes concurrent or repeated runs harmless.
func buildLinkQuery(column string, links []matching.Link) (string, []any) {
	args := make([]any, 0, len(links)*2)
	values := make([]string, 0, len(links))
	for _, l := range links {
		args = append(args, l.TransactionID, l.TargetID)
		values = append(values, fmt.Sprintf("($%d, $%d)", len(args)-1, len(args)))
	}

	query := fmt.Sprintf(`UPDATE transactions t
		SET %s = v.target_id, processing_status = 'PROCESSED', updated_at = now()
		FROM (VALUES %s) AS v(transaction_id, target_id)
		WHERE t.id = v.transaction_id
		  AND t.processing_status = 'UNPROCESSED'`, column, strings.Join(values, ", "))

	return query, args
}
