package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrJobNotFound        = errors.New("import job not found")
	ErrLinkExpired        = errors.New("link reference unknown or expired")
)

// ConnectionNotFoundError matches ErrConnectionNotFound with errors.Is.
type ConnectionNotFoundError struct {
	ConnectionID string
}

func (e *ConnectionNotFoundError) Error() string {
	return fmt.Sprintf("GoCardless connection %s not found", e.ConnectionID)
}

func (e *ConnectionNotFoundError) Is(target error) bool {
	return target == ErrConnectionNotFound
}

// ConnectionMissingDataError is returned when a connection lacks a field
// the import needs, typically the requisition reference.
type ConnectionMissingDataError struct {
	ConnectionID string
	Field        string
}

func (e *ConnectionMissingDataError) Error() string {
	return fmt.Sprintf("GoCardless connection %s has no %s", e.ConnectionID, e.Field)
}

// MissingDataError aborts an account import when a booked transaction lacks
// a required date.
type MissingDataError struct {
	TransactionID string
	Field         string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("transaction %s has no %s", e.TransactionID, e.Field)
}

// JobNotFoundError matches ErrJobNotFound with errors.Is.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("import job %s not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}
