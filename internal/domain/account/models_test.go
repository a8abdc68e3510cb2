package account

import (
	"errors"
	"testing"
)

func TestIsValidAccountType(t *testing.T) {
	tests := []struct {
		input AccountType
		want  bool
	}{
		{AccountTypeCash, true},
		{AccountTypeBankGoCardless, true},
		{AccountTypeBankManual, true},
		{"BANK", false},
		{"bank_manual", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			got := IsValidAccountType(tt.input)
			if got != tt.want {
				t.Errorf("IsValidAccountType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsValidCurrency(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"EUR", true},
		{"GBP", true},
		{"SEK", true},
		{"eur", false},
		{"EU", false},
		{"EURO", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := IsValidCurrency(tt.input)
			if got != tt.want {
				t.Errorf("IsValidCurrency(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseISOAccountType(t *testing.T) {
	tests := []struct {
		input   string
		want    ISOAccountType
		unknown bool
	}{
		{"CACC", ISOCurrent, false},
		{"svgs", ISOSavings, false},
		{" CARD ", ISOCardAccount, false},
		{"NFCA", ISONonResidentForeignCurrency, false},
		{"", "", false},
		{"XXXX", ISOOther, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseISOAccountType(tt.input)
			if got != tt.want {
				t.Errorf("ParseISOAccountType(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if tt.unknown != errors.Is(err, ErrUnknownISOAccountType) {
				t.Errorf("ParseISOAccountType(%q) error = %v, unknown = %v", tt.input, err, tt.unknown)
			}
			if !tt.unknown && err != nil {
				t.Errorf("ParseISOAccountType(%q) unexpected error: %v", tt.input, err)
			}
		})
	}
}

func TestParseUsageType(t *testing.T) {
	tests := []struct {
		input string
		want  UsageType
	}{
		{"PRIV", UsagePrivate},
		{"orga", UsageOrganisation},
		{"", ""},
		{"BUSINESS", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseUsageType(tt.input); got != tt.want {
				t.Errorf("ParseUsageType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestUpsertParams_Validate(t *testing.T) {
	valid := UpsertParams{
		ID:          "acc-1",
		ExternalID:  "ext-1",
		Name:        "Main",
		Currency:    "EUR",
		AccountType: AccountTypeBankGoCardless,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*UpsertParams)
		wantErr error
	}{
		{"missing id", func(p *UpsertParams) { p.ID = "" }, nil},
		{"missing external id", func(p *UpsertParams) { p.ExternalID = "" }, nil},
		{"missing name", func(p *UpsertParams) { p.Name = "" }, nil},
		{"bad type", func(p *UpsertParams) { p.AccountType = "BANK" }, ErrInvalidAccountType},
		{"bad currency", func(p *UpsertParams) { p.Currency = "euro" }, ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
