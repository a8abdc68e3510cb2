package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"koru/internal/domain/connection"
	"koru/internal/infrastructure/gocardless"
	"koru/internal/shared/logging"
)

// Coordinator starts connection imports and reports on them.
type Coordinator struct {
	connections connection.Repository
	client      gocardless.ClientInterface
	queue       TaskQueue
	logger      *zap.Logger
}

func NewCoordinator(connections connection.Repository, client gocardless.ClientInterface, queue TaskQueue, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		connections: connections,
		client:      client,
		queue:       queue,
		logger:      logging.OrNop(logger),
	}
}

// ImportConnection fans out one ImportAccountTask per account granted by
// the connection's requisition and returns the job ID right away.
func (c *Coordinator) ImportConnection(ctx context.Context, connectionID string) (string, error) {
	conn, err := c.connections.GetByID(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("failed to load connection: %w", err)
	}
	if conn == nil {
		return "", &ConnectionNotFoundError{ConnectionID: connectionID}
	}
	if conn.ExternalReference == nil || *conn.ExternalReference == "" {
		return "", &ConnectionMissingDataError{ConnectionID: connectionID, Field: "external reference"}
	}

	requisition, err := c.client.GetRequisition(ctx, *conn.ExternalReference)
	if err != nil {
		return "", fmt.Errorf("failed to fetch requisition: %w", err)
	}

	tasks := make([]ImportAccountTask, 0, len(requisition.Accounts))
	for _, accountID := range requisition.Accounts {
		tasks = append(tasks, ImportAccountTask{AccountID: accountID, ConnectionID: connectionID})
	}

	jobID, err := c.queue.SubmitGroup(ctx, tasks)
	if err != nil {
		return "", fmt.Errorf("failed to submit import tasks: %w", err)
	}

	c.logger.Info("connection import started",
		zap.String("connection_id", connectionID),
		zap.String("job_id", jobID),
		zap.Int("accounts", len(tasks)),
	)

	return jobID, nil
}

// GetStatus reports the progress of an import job. Polling never affects
// the running subtasks.
func (c *Coordinator) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	progress, err := c.queue.Progress(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job progress: %w", err)
	}
	if progress == nil {
		return nil, &JobNotFoundError{JobID: jobID}
	}
	return NewJobStatus(jobID, *progress), nil
}
