package connection

import (
	"errors"
	"time"
)

// ConnectionType identifies the provider behind a connection.
type ConnectionType string

const ConnectionTypeGoCardless ConnectionType = "GOCARDLESS"

// ErrDuplicateConnection is returned when a connection for the same
// external reference already exists.
var ErrDuplicateConnection = errors.New("connection already exists")

// Connection is a user's authorized link to an institution. For GoCardless
// the ExternalReference is the requisition ID.
type Connection struct {
	ID                string         `db:"id" json:"id"`
	UserID            string         `db:"user_id" json:"userId"`
	ConnectionType    ConnectionType `db:"connection_type" json:"connectionType"`
	ExternalReference *string        `db:"external_reference" json:"externalReference,omitempty"`
	InstitutionID     *string        `db:"institution_id" json:"institutionId,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// CreateParams contains parameters for creating a new connection
type CreateParams struct {
	ID                string
	UserID            string
	ConnectionType    ConnectionType
	ExternalReference string
	InstitutionID     string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.ID == "" {
		return errors.New("connection ID is required")
	}
	if p.UserID == "" {
		return errors.New("user ID is required")
	}
	if p.ConnectionType != ConnectionTypeGoCardless {
		return errors.New("unsupported connection type")
	}
	return nil
}
