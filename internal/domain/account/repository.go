package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Upsert creates or updates an account keyed on its external ID and
	// returns the stored row.
	Upsert(ctx context.Context, params UpsertParams) (*Account, error)

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByExternalID retrieves an account by its provider account ID
	GetByExternalID(ctx context.Context, externalID string) (*Account, error)
}
