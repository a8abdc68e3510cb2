package gocardless

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TokenResponse is returned by POST /token/new/
type TokenResponse struct {
	Access         string `json:"access"`
	AccessExpires  int    `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int    `json:"refresh_expires"`
}

// RefreshResponse is returned by POST /token/refresh/
type RefreshResponse struct {
	Access        string `json:"access"`
	AccessExpires int    `json:"access_expires"`
}

// flexInt accepts both JSON numbers and numeric strings; the institutions
// endpoint returns day counts as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// Institution is a bank supported by the provider.
type Institution struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	BIC                   string   `json:"bic"`
	TransactionTotalDays  flexInt  `json:"transaction_total_days"`
	Countries             []string `json:"countries"`
	Logo                  string   `json:"logo"`
	SupportedFeatures     []string `json:"supported_features,omitempty"`
	IdentificationCodes   []string `json:"identification_codes,omitempty"`
	MaxAccessValidForDays flexInt  `json:"max_access_valid_for_days"`
}

// CreateRequisitionRequest is the body of POST /requisitions/
type CreateRequisitionRequest struct {
	InstitutionID string `json:"institution_id"`
	Redirect      string `json:"redirect"`
}

// CreateRequisitionResponse carries the link the user follows to authorize access.
type CreateRequisitionResponse struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// Requisition is the provider-side grant linking a user's bank accounts.
type Requisition struct {
	ID            string   `json:"id"`
	Status        string   `json:"status,omitempty"`
	InstitutionID string   `json:"institution_id"`
	Accounts      []string `json:"accounts"`
}

// AccountDetails is the "account" object of GET /accounts/{id}/details/
type AccountDetails struct {
	IBAN            *string `json:"iban,omitempty"`
	BBAN            *string `json:"bban,omitempty"`
	BIC             *string `json:"bic,omitempty"`
	CashAccountType *string `json:"cashAccountType,omitempty"`
	Currency        string  `json:"currency"`
	DisplayName     *string `json:"displayName,omitempty"`
	Name            *string `json:"name,omitempty"`
	OwnerName       *string `json:"ownerName,omitempty"`
	SCAN            *string `json:"scan,omitempty"`
	Usage           *string `json:"usage,omitempty"`
}

type AccountDetailsResponse struct {
	Account AccountDetails `json:"account"`
}

// TransactionAmount is signed: negative amounts leave the account.
type TransactionAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// AccountReference identifies the counterpart account of a transaction.
type AccountReference struct {
	IBAN *string `json:"iban,omitempty"`
	BBAN *string `json:"bban,omitempty"`
}

// Transaction is a single booked or pending provider transaction.
type Transaction struct {
	BookingDate           *string           `json:"bookingDate,omitempty"`
	BookingDateTime       *string           `json:"bookingDateTime,omitempty"`
	ValueDate             *string           `json:"valueDate,omitempty"`
	ValueDateTime         *string           `json:"valueDateTime,omitempty"`
	TransactionAmount     TransactionAmount `json:"transactionAmount"`
	CreditorName          *string           `json:"creditorName,omitempty"`
	CreditorAccount       *AccountReference `json:"creditorAccount,omitempty"`
	DebitorName           *string           `json:"debitorName,omitempty"`
	DebitorAccount        *AccountReference `json:"debitorAccount,omitempty"`
	DebtorName            *string           `json:"debtorName,omitempty"`    // Berlin Group spelling
	DebtorAccount         *AccountReference `json:"debtorAccount,omitempty"` // Berlin Group spelling
	TransactionID         *string           `json:"transactionId,omitempty"`
	InternalTransactionID *string           `json:"internalTransactionId,omitempty"`
}

// TransactionsContainer groups booked and pending transactions.
type TransactionsContainer struct {
	Booked  []Transaction `json:"booked"`
	Pending []Transaction `json:"pending"`
}

type TransactionsResponse struct {
	Transactions TransactionsContainer `json:"transactions"`
}

// IsOutgoing reports whether money left the account.
func (t *Transaction) IsOutgoing() bool {
	return t.TransactionAmount.Amount.IsNegative()
}

// OpposingParty returns the counterpart of the transaction: the creditor for
// outgoing payments, the debtor otherwise.
func (t *Transaction) OpposingParty() (name *string, account *AccountReference) {
	if t.IsOutgoing() {
		return t.CreditorName, t.CreditorAccount
	}
	name = t.DebitorName
	if name == nil {
		name = t.DebtorName
	}
	account = t.DebitorAccount
	if account == nil {
		account = t.DebtorAccount
	}
	return name, account
}

// Reference returns the best identifier for log and error messages.
func (t *Transaction) Reference() string {
	if t.TransactionID != nil && *t.TransactionID != "" {
		return *t.TransactionID
	}
	if t.InternalTransactionID != nil {
		return *t.InternalTransactionID
	}
	return ""
}

// GetBookingTime resolves the booking time, preferring the full timestamp
// over the date-only field. Returns nil when neither is present.
func (t *Transaction) GetBookingTime() (*time.Time, error) {
	return resolveTime(t.BookingDateTime, t.BookingDate)
}

// GetValueTime resolves the value time the same way as GetBookingTime.
func (t *Transaction) GetValueTime() (*time.Time, error) {
	return resolveTime(t.ValueDateTime, t.ValueDate)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func resolveTime(dateTime, date *string) (*time.Time, error) {
	if dateTime != nil && *dateTime != "" {
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, *dateTime); err == nil {
				return &parsed, nil
			}
		}
		return nil, fmt.Errorf("failed to parse timestamp '%s'", *dateTime)
	}
	if date != nil && *date != "" {
		parsed, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date '%s': %w", *date, err)
		}
		return &parsed, nil
	}
	return nil, nil
}
