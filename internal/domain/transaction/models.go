package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessingStatus tracks whether the matching engine has resolved a
// transaction's counterpart.
type ProcessingStatus string

const (
	StatusUnprocessed ProcessingStatus = "UNPROCESSED"
	StatusProcessed   ProcessingStatus = "PROCESSED"
)

// Transaction is a booked movement on an account. At most one of the
// Opposing*ID fields is set once the transaction is PROCESSED.
type Transaction struct {
	ID                     string           `db:"id" json:"id"`
	AccountID              string           `db:"account_id" json:"accountId"`
	Amount                 decimal.Decimal  `db:"amount" json:"amount"`
	Currency               string           `db:"currency" json:"currency"`
	NativeAmount           decimal.Decimal  `db:"native_amount" json:"nativeAmount"`
	ProcessingStatus       ProcessingStatus `db:"processing_status" json:"processingStatus"`
	OpposingName           *string          `db:"opposing_name" json:"opposingName,omitempty"`
	OpposingIBAN           *string          `db:"opposing_iban" json:"opposingIban,omitempty"`
	OpposingBBAN           *string          `db:"opposing_bban" json:"opposingBban,omitempty"`
	OpposingAccountID      *string          `db:"opposing_account_id" json:"opposingAccountId,omitempty"`
	OpposingMerchantID     *string          `db:"opposing_merchant_id" json:"opposingMerchantId,omitempty"`
	OpposingCounterpartyID *string          `db:"opposing_counterparty_id" json:"opposingCounterpartyId,omitempty"`
	ProviderTransactionID  *string          `db:"provider_transaction_id" json:"providerTransactionId,omitempty"`
	InternalReference      *string          `db:"internal_reference" json:"internalReference,omitempty"`
	BookingTime            time.Time        `db:"booking_time" json:"bookingTime"`
	ValueTime              *time.Time       `db:"value_time" json:"valueTime,omitempty"`
	CreatedAt              time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time        `db:"updated_at" json:"updatedAt"`
}

// UpsertParams is used for syncing transactions from the provider
type UpsertParams struct {
	ID                    string // only used when the row is inserted
	AccountID             string
	Amount                decimal.Decimal
	Currency              string
	NativeAmount          decimal.Decimal
	OpposingName          *string
	OpposingIBAN          *string
	OpposingBBAN          *string
	ProviderTransactionID *string
	InternalReference     *string
	BookingTime           time.Time
	ValueTime             time.Time
}

// NaturalKey identifies a transaction across imports. Missing identifiers
// collapse to the empty string, matching the unique index on the table.
type NaturalKey struct {
	ProviderTransactionID string
	InternalReference     string
}

func (p UpsertParams) NaturalKey() NaturalKey {
	var k NaturalKey
	if p.ProviderTransactionID != nil {
		k.ProviderTransactionID = *p.ProviderTransactionID
	}
	if p.InternalReference != nil {
		k.InternalReference = *p.InternalReference
	}
	return k
}

// Deduplicate drops rows whose natural key repeats. The last occurrence of
// a key wins but keeps the position of the first.
func Deduplicate(params []UpsertParams) []UpsertParams {
	index := make(map[NaturalKey]int, len(params))
	out := make([]UpsertParams, 0, len(params))
	for _, p := range params {
		key := p.NaturalKey()
		if i, ok := index[key]; ok {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}
