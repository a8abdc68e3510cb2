package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"koru/internal/domain/connection"
)

const connectionSelectColumns = `id, user_id, connection_type, external_reference, institution_id, created_at, updated_at`

// ConnectionRepository implements connection.Repository for PostgreSQL
type ConnectionRepository struct {
	db *DB
}

var _ connection.Repository = (*ConnectionRepository)(nil)

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetByID returns (nil, nil) when the connection does not exist.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	return r.getOne(ctx, "id", id)
}

// GetByExternalReference returns (nil, nil) when no connection references ref.
func (r *ConnectionRepository) GetByExternalReference(ctx context.Context, ref string) (*connection.Connection, error) {
	return r.getOne(ctx, "external_reference", ref)
}

func (r *ConnectionRepository) getOne(ctx context.Context, column, value string) (*connection.Connection, error) {
	query := `SELECT ` + connectionSelectColumns + ` FROM connections WHERE ` + column + ` = $1`

	var conn connection.Connection
	err := r.db.GetContext(ctx, &conn, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// Create inserts a new connection.
func (r *ConnectionRepository) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO connections (id, user_id, connection_type, external_reference, institution_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + connectionSelectColumns

	var conn connection.Connection
	err := r.db.GetContext(ctx, &conn, query,
		params.ID, params.UserID, string(params.ConnectionType),
		nullString(params.ExternalReference), nullString(params.InstitutionID),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, connection.ErrDuplicateConnection
		}
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return &conn, nil
}

// ListIDs returns every GoCardless connection ID, oldest first.
func (r *ConnectionRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM connections WHERE connection_type = $1 ORDER BY created_at, id`,
		string(connection.ConnectionTypeGoCardless))
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return ids, nil
}
