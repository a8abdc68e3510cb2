package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koru/internal/domain/account"
	"koru/internal/domain/matching"
	"koru/internal/domain/transaction"
)

func strRef(s string) *string { return &s }

func TestTransactionUpsertSpec(t *testing.T) {
	booked := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	spec := transactionUpsertSpec([]transaction.UpsertParams{{
		ID:                    "tx-1",
		AccountID:             "acc-1",
		Amount:                decimal.RequireFromString("-50"),
		Currency:              "EUR",
		NativeAmount:          decimal.RequireFromString("-50"),
		OpposingIBAN:          strRef("DE1"),
		ProviderTransactionID: strRef("g-1"),
		BookingTime:           booked,
		ValueTime:             booked,
	}})
	require.NoError(t, spec.validate())

	query, args := spec.build(spec.Rows)

	assert.Contains(t, query, "ON CONFLICT ((COALESCE(provider_transaction_id, '')), (COALESCE(internal_reference, '')))")
	assert.Contains(t, query, "opposing_account_id = NULL, opposing_counterparty_id = NULL, opposing_merchant_id = NULL, processing_status = $14, updated_at = now()")
	assert.NotContains(t, query, "t.processing_status", "matching state must not take part in the change guard")
	assert.NotContains(t, query, "t.updated_at")
	assert.Len(t, args, len(transactionInsertColumns)+1)
	assert.Equal(t, "UNPROCESSED", args[len(args)-1])
	assert.Equal(t, "UNPROCESSED", args[2])
}

func TestTransactionRepository_UpsertBatchEmpty(t *testing.T) {
	repo := NewTransactionRepository(nil)

	n, err := repo.UpsertBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransactionRepository_LinkWithoutLinks(t *testing.T) {
	repo := NewTransactionRepository(nil)

	n, err := repo.LinkAccounts(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildLinkQuery(t *testing.T) {
	query, args := buildLinkQuery("opposing_merchant_id", []matching.Link{
		{TransactionID: "t1", TargetID: "m1"},
		{TransactionID: "t2", TargetID: "m2"},
	})

	assert.Contains(t, query, "SET opposing_merchant_id = v.target_id, processing_status = 'PROCESSED'")
	assert.Contains(t, query, "FROM (VALUES ($1, $2), ($3, $4)) AS v(transaction_id, target_id)")
	assert.True(t, strings.HasSuffix(query, "AND t.processing_status = 'UNPROCESSED'"))
	assert.Equal(t, []any{"t1", "m1", "t2", "m2"}, args)
}

func TestAccountUpsertSpec(t *testing.T) {
	spec := accountUpsertSpec(account.UpsertParams{
		ID:             "acc-1",
		ConnectionID:   "conn-1",
		ExternalID:     "ext-1",
		Name:           "Main",
		Currency:       "EUR",
		AccountType:    account.AccountTypeBankGoCardless,
		IBAN:           strRef("DE1"),
		ISOAccountType: account.ISOCurrent,
	})
	require.NoError(t, spec.validate())

	query, args := spec.build(spec.Rows)

	assert.Contains(t, query, "ON CONFLICT (external_id) DO UPDATE SET name = EXCLUDED.name")
	assert.Contains(t, query, "updated_at = now()")
	assert.NotContains(t, query, "connection_id = EXCLUDED")
	assert.NotContains(t, query, "notes")
	assert.NotContains(t, query, "balance_offset")

	// usage_type is empty and must be stored as NULL
	assert.Nil(t, args[11])
	assert.Equal(t, "CACC", args[12])
}
