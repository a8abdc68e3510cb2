package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"koru/internal/domain/ingest"
	"koru/internal/infrastructure/jobstore"
	"koru/internal/shared/logging"
)

// Dispatcher hands a task to whatever runs it: the in-process pool or
// the broker feeding remote workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, task ingest.ImportAccountTask) error
}

// TaskQueue implements ingest.TaskQueue on top of a GroupStore and a
// Dispatcher.
type TaskQueue struct {
	groups     jobstore.GroupStore
	dispatcher Dispatcher
	logger     *zap.Logger
	newID      func() string
}

var _ ingest.TaskQueue = (*TaskQueue)(nil)

func NewTaskQueue(groups jobstore.GroupStore, dispatcher Dispatcher, logger *zap.Logger) *TaskQueue {
	return &TaskQueue{
		groups:     groups,
		dispatcher: dispatcher,
		logger:     logging.OrNop(logger),
		newID:      uuid.NewString,
	}
}

// SubmitGroup records the group before dispatching so status polls never
// see a half-created job. A task that cannot be dispatched counts as a
// failed subtask; the group still completes.
func (q *TaskQueue) SubmitGroup(ctx context.Context, tasks []ingest.ImportAccountTask) (string, error) {
	groupID := q.newID()
	if err := q.groups.Create(ctx, groupID, len(tasks)); err != nil {
		return "", err
	}

	for _, task := range tasks {
		task.GroupID = groupID
		if err := q.dispatcher.Dispatch(ctx, task); err != nil {
			q.logger.Error("failed to dispatch import task",
				zap.String("group_id", groupID),
				zap.String("account_id", task.AccountID),
				zap.Error(err))
			if markErr := q.groups.MarkDone(ctx, groupID, err); markErr != nil {
				return "", fmt.Errorf("failed to record dispatch failure: %w", markErr)
			}
		}
	}

	return groupID, nil
}

// Submit dispatches a single task outside of any group.
func (q *TaskQueue) Submit(ctx context.Context, task ingest.ImportAccountTask) error {
	task.GroupID = ""
	if err := q.dispatcher.Dispatch(ctx, task); err != nil {
		return fmt.Errorf("failed to dispatch import task: %w", err)
	}
	return nil
}

func (q *TaskQueue) Progress(ctx context.Context, groupID string) (*ingest.GroupProgress, error) {
	return q.groups.Status(ctx, groupID)
}

// PoolDispatcher runs tasks on the in-process worker pool, waiting for
// room in the buffer rather than dropping work.
type PoolDispatcher struct {
	pool   *WorkerPool
	runner *ImportRunner
}

var _ Dispatcher = (*PoolDispatcher)(nil)

func NewPoolDispatcher(pool *WorkerPool, runner *ImportRunner) *PoolDispatcher {
	return &PoolDispatcher{pool: pool, runner: runner}
}

func (d *PoolDispatcher) Dispatch(ctx context.Context, task ingest.ImportAccountTask) error {
	return d.pool.SubmitWait(ctx, d.runner.NewJob(task))
}
