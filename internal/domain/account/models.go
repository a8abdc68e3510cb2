package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType says where an account's data comes from.
type AccountType string

const (
	AccountTypeCash           AccountType = "CASH"
	AccountTypeBankGoCardless AccountType = "BANK_GOCARDLESS"
	AccountTypeBankManual     AccountType = "BANK_MANUAL"
)

// UsageType is the provider's private/business classification.
type UsageType string

const (
	UsagePrivate      UsageType = "PRIV"
	UsageOrganisation UsageType = "ORGA"
)

// ISOAccountType is an ISO 20022 ExternalCashAccountType1Code.
type ISOAccountType string

const (
	ISOCurrent                    ISOAccountType = "CACC"
	ISOCardAccount                ISOAccountType = "CARD"
	ISOCashPayment                ISOAccountType = "CASH"
	ISOCharges                    ISOAccountType = "CHAR"
	ISOCashIncome                 ISOAccountType = "CISH"
	ISOCommission                 ISOAccountType = "COMM"
	ISOClearingParticipant        ISOAccountType = "CPAC"
	ISOLimitedLiquiditySavings    ISOAccountType = "LLSV"
	ISOLoan                       ISOAccountType = "LOAN"
	ISOMarginalLending            ISOAccountType = "MGLD"
	ISOMoneyMarket                ISOAccountType = "MOMA"
	ISONonResidentExternal        ISOAccountType = "NREX"
	ISOOverdraft                  ISOAccountType = "ODFT"
	ISOOverNightDeposit           ISOAccountType = "ONDP"
	ISOOther                      ISOAccountType = "OTHR"
	ISOSettlement                 ISOAccountType = "SACC"
	ISOSalary                     ISOAccountType = "SLRY"
	ISOSavings                    ISOAccountType = "SVGS"
	ISOTax                        ISOAccountType = "TAXE"
	ISOTransacting                ISOAccountType = "TRAN"
	ISOCashTrading                ISOAccountType = "TRAS"
	ISOVirtual                    ISOAccountType = "VACC"
	ISONonResidentForeignCurrency ISOAccountType = "NFCA"
)

var (
	accountTypes = map[AccountType]struct{}{
		AccountTypeCash:           {},
		AccountTypeBankGoCardless: {},
		AccountTypeBankManual:     {},
	}
	isoAccountTypes = map[ISOAccountType]struct{}{
		ISOCurrent: {}, ISOCardAccount: {}, ISOCashPayment: {}, ISOCharges: {},
		ISOCashIncome: {}, ISOCommission: {}, ISOClearingParticipant: {}, ISOLimitedLiquiditySavings: {},
		ISOLoan: {}, ISOMarginalLending: {}, ISOMoneyMarket: {}, ISONonResidentExternal: {},
		ISOOverdraft: {}, ISOOverNightDeposit: {}, ISOOther: {}, ISOSettlement: {},
		ISOSalary: {}, ISOSavings: {}, ISOTax: {}, ISOTransacting: {},
		ISOCashTrading: {}, ISOVirtual: {}, ISONonResidentForeignCurrency: {},
	}
)

// Domain errors
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidAccountType    = errors.New("invalid account type")
	ErrInvalidCurrency       = errors.New("valid ISO 4217 currency is required")
	ErrUnknownISOAccountType = errors.New("unknown ISO account type")
)

// Account is a bank or cash account owned through a connection.
// Notes and BalanceOffset are user-managed and never written by imports.
type Account struct {
	ID             string          `db:"id" json:"id"`
	ConnectionID   *string         `db:"connection_id" json:"connectionId,omitempty"`
	Name           string          `db:"name" json:"name"`
	Currency       string          `db:"currency" json:"currency"`
	AccountType    AccountType     `db:"account_type" json:"accountType"`
	IBAN           *string         `db:"iban" json:"iban,omitempty"`
	BBAN           *string         `db:"bban" json:"bban,omitempty"`
	BIC            *string         `db:"bic" json:"bic,omitempty"`
	ScanCode       *string         `db:"scan_code" json:"scanCode,omitempty"`
	ExternalID     *string         `db:"external_id" json:"externalId,omitempty"`
	OwnerName      *string         `db:"owner_name" json:"ownerName,omitempty"`
	UsageType      *UsageType      `db:"usage_type" json:"usageType,omitempty"`
	ISOAccountType *ISOAccountType `db:"iso_account_type" json:"isoAccountType,omitempty"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	BalanceOffset  decimal.Decimal `db:"balance_offset" json:"balanceOffset"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// UpsertParams carries the provider-derived fields of an imported account.
// Empty UsageType or ISOAccountType are stored as NULL.
type UpsertParams struct {
	ID             string
	ConnectionID   string
	ExternalID     string
	Name           string
	Currency       string
	AccountType    AccountType
	IBAN           *string
	BBAN           *string
	BIC            *string
	ScanCode       *string
	OwnerName      *string
	UsageType      UsageType
	ISOAccountType ISOAccountType
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("account ID is required for upsert")
	}
	if p.ExternalID == "" {
		return errors.New("external ID is required for upsert")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if !IsValidAccountType(p.AccountType) {
		return ErrInvalidAccountType
	}
	if !IsValidCurrency(p.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

// IsValidAccountType checks if the provided account type is valid.
func IsValidAccountType(t AccountType) bool {
	_, ok := accountTypes[t]
	return ok
}

// IsValidCurrency checks for a three-letter upper-case code.
func IsValidCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParseISOAccountType maps a provider cashAccountType to an ISOAccountType.
// An empty value yields "" and no error. Unknown codes yield ISOOther and
// an error wrapping ErrUnknownISOAccountType so callers can log them.
func ParseISOAccountType(raw string) (ISOAccountType, error) {
	code := ISOAccountType(strings.ToUpper(strings.TrimSpace(raw)))
	if code == "" {
		return "", nil
	}
	if _, ok := isoAccountTypes[code]; ok {
		return code, nil
	}
	return ISOOther, fmt.Errorf("%w: %q", ErrUnknownISOAccountType, raw)
}

// ParseUsageType maps a provider usage value; anything unrecognized is "".
func ParseUsageType(raw string) UsageType {
	switch u := UsageType(strings.ToUpper(strings.TrimSpace(raw))); u {
	case UsagePrivate, UsageOrganisation:
		return u
	default:
		return ""
	}
}
