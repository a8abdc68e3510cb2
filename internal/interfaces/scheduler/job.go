package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
type Job interface {
	// Execute runs the job. The context carries the per-job timeout.
	Execute(ctx context.Context) error

	// Key identifies what the job works on, e.g. a provider account ID.
	Key() string

	// Description returns a human-readable description for logs and spans.
	Description() string
}
