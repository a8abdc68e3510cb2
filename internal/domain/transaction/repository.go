package transaction

import (
	"context"
)

// Repository defines the interface for transaction data access
type Repository interface {
	// UpsertBatch inserts new transactions and updates changed ones, keyed
	// on the natural key. Updated rows go back to UNPROCESSED with their
	// links cleared. Returns the number of rows inserted or changed.
	UpsertBatch(ctx context.Context, params []UpsertParams) (int64, error)
}
