// Package ingest imports provider data into the local store and
// orchestrates the per-account import jobs.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"koru/internal/domain/account"
	"koru/internal/domain/transaction"
	"koru/internal/infrastructure/gocardless"
	"koru/internal/shared/logging"
)

const defaultAccountName = "Imported Account"

// ImportResult contains the results of an account import
type ImportResult struct {
	AccountID           string
	ExternalAccountID   string
	TransactionsBooked  int
	TransactionsPending int
	TransactionsWritten int64
}

// AccountImporter materializes one provider account and its booked
// transactions.
type AccountImporter struct {
	client       gocardless.ClientInterface
	accounts     account.Repository
	transactions transaction.Repository
	logger       *zap.Logger
	newID        func() string
}

func NewAccountImporter(
	client gocardless.ClientInterface,
	accounts account.Repository,
	transactions transaction.Repository,
	logger *zap.Logger,
) *AccountImporter {
	return &AccountImporter{
		client:       client,
		accounts:     accounts,
		transactions: transactions,
		logger:       logging.OrNop(logger),
		newID:        uuid.NewString,
	}
}

// ImportAccount fetches the account and its transactions and upserts both.
// A booked transaction without a booking or value date fails the whole call
// with *MissingDataError before any transaction is written; the account row
// itself is kept.
func (i *AccountImporter) ImportAccount(ctx context.Context, externalAccountID, connectionID string) (*ImportResult, error) {
	details, err := i.client.GetAccountDetails(ctx, externalAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account details: %w", err)
	}

	txs, err := i.client.GetTransactions(ctx, externalAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	acc, err := i.accounts.Upsert(ctx, i.accountParams(details, externalAccountID, connectionID))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account %s: %w", externalAccountID, err)
	}

	result := &ImportResult{
		AccountID:           acc.ID,
		ExternalAccountID:   externalAccountID,
		TransactionsBooked:  len(txs.Booked),
		TransactionsPending: len(txs.Pending),
	}

	rows := make([]transaction.UpsertParams, 0, len(txs.Booked))
	for _, tx := range txs.Booked {
		row, err := i.transactionParams(acc.ID, tx)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	written, err := i.transactions.UpsertBatch(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transactions for account %s: %w", acc.ID, err)
	}
	result.TransactionsWritten = written

	i.logger.Info("account imported",
		zap.String("account_id", acc.ID),
		zap.String("external_account_id", externalAccountID),
		zap.Int("booked", result.TransactionsBooked),
		zap.Int("pending_skipped", result.TransactionsPending),
		zap.Int64("written", written),
	)

	return result, nil
}

func (i *AccountImporter) accountParams(d *gocardless.AccountDetails, externalAccountID, connectionID string) account.UpsertParams {
	name := defaultAccountName
	switch {
	case d.DisplayName != nil && *d.DisplayName != "":
		name = *d.DisplayName
	case d.Name != nil && *d.Name != "":
		name = *d.Name
	}

	var isoType account.ISOAccountType
	if d.CashAccountType != nil {
		parsed, err := account.ParseISOAccountType(*d.CashAccountType)
		if errors.Is(err, account.ErrUnknownISOAccountType) {
			i.logger.Warn("unknown cash account type, storing as OTHR",
				zap.String("external_account_id", externalAccountID),
				zap.String("cash_account_type", *d.CashAccountType))
		}
		isoType = parsed
	}

	var usage account.UsageType
	if d.Usage != nil {
		usage = account.ParseUsageType(*d.Usage)
	}

	return account.UpsertParams{
		ID:             i.newID(),
		ConnectionID:   connectionID,
		ExternalID:     externalAccountID,
		Name:           name,
		Currency:       d.Currency,
		AccountType:    account.AccountTypeBankGoCardless,
		IBAN:           d.IBAN,
		BBAN:           d.BBAN,
		BIC:            d.BIC,
		ScanCode:       d.SCAN,
		OwnerName:      d.OwnerName,
		UsageType:      usage,
		ISOAccountType: isoType,
	}
}

func (i *AccountImporter) transactionParams(accountID string, tx gocardless.Transaction) (transaction.UpsertParams, error) {
	booking, err := tx.GetBookingTime()
	if err != nil {
		return transaction.UpsertParams{}, fmt.Errorf("transaction %s: %w", tx.Reference(), err)
	}
	if booking == nil {
		return transaction.UpsertParams{}, &MissingDataError{TransactionID: tx.Reference(), Field: "booking date"}
	}

	value, err := tx.GetValueTime()
	if err != nil {
		return transaction.UpsertParams{}, fmt.Errorf("transaction %s: %w", tx.Reference(), err)
	}
	if value == nil {
		return transaction.UpsertParams{}, &MissingDataError{TransactionID: tx.Reference(), Field: "value date"}
	}

	name, ref := tx.OpposingParty()
	var iban, bban *string
	if ref != nil {
		iban, bban = ref.IBAN, ref.BBAN
	}

	return transaction.UpsertParams{
		ID:                    i.newID(),
		AccountID:             accountID,
		Amount:                tx.TransactionAmount.Amount,
		Currency:              tx.TransactionAmount.Currency,
		NativeAmount:          tx.TransactionAmount.Amount,
		OpposingName:          name,
		OpposingIBAN:          iban,
		OpposingBBAN:          bban,
		ProviderTransactionID: tx.InternalTransactionID,
		InternalReference:     tx.TransactionID,
		BookingTime:           *booking,
		ValueTime:             *value,
	}, nil
}
