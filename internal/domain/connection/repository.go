package connection

import "context"

// Repository defines the interface for connection data access.
// Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Connection, error)
	GetByExternalReference(ctx context.Context, ref string) (*Connection, error)
	Create(ctx context.Context, params CreateParams) (*Connection, error)
	// ListIDs returns the IDs of all GoCardless connections.
	ListIDs(ctx context.Context) ([]string, error)
}
