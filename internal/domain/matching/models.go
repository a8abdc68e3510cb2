package matching

import "context"

// AccountCandidate pairs an unprocessed transaction with an account whose
// IBAN or BBAN equals the transaction's opposing identifier.
type AccountCandidate struct {
	TransactionID string `db:"transaction_id"`
	AccountID     string `db:"account_id"`
}

// MerchantCandidate pairs an unprocessed transaction with a merchant whose
// match prefix begins the transaction's opposing name.
type MerchantCandidate struct {
	TransactionID string `db:"transaction_id"`
	MerchantID    string `db:"merchant_id"`
	MatchPrefix   string `db:"match_prefix"`
}

// Link assigns a counterpart to a transaction.
type Link struct {
	TransactionID string
	TargetID      string
}

// Result reports what a Process run changed.
type Result struct {
	AccountLinks  int64 `json:"accountLinks"`
	MerchantLinks int64 `json:"merchantLinks"`
	Processed     int64 `json:"processed"`
}

// Repository is the storage side of the matching passes. Link methods only
// touch rows that are still UNPROCESSED and mark them PROCESSED.
type Repository interface {
	AccountLinkCandidates(ctx context.Context, accountID string) ([]AccountCandidate, error)
	MerchantLinkCandidates(ctx context.Context, accountID string) ([]MerchantCandidate, error)
	LinkAccounts(ctx context.Context, links []Link) (int64, error)
	LinkMerchants(ctx context.Context, links []Link) (int64, error)
}
