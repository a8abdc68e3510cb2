// Package jobstore keeps the per-group counters behind import job status.
package jobstore

import (
	"context"

	"koru/internal/domain/ingest"
)

// GroupStore tracks how many subtasks of a group finished and how.
// MarkDone must be atomic: subtasks of one group complete concurrently,
// possibly in different processes.
type GroupStore interface {
	Create(ctx context.Context, groupID string, total int) error
	MarkDone(ctx context.Context, groupID string, taskErr error) error
	// Status returns (nil, nil) for unknown or expired groups.
	Status(ctx context.Context, groupID string) (*ingest.GroupProgress, error)
}
