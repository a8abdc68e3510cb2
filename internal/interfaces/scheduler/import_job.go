package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"koru/internal/domain/ingest"
	"koru/internal/domain/matching"
	"koru/internal/infrastructure/jobstore"
	"koru/internal/shared/logging"
)

// AccountImporter is the slice of ingest.AccountImporter the jobs need.
type AccountImporter interface {
	ImportAccount(ctx context.Context, externalAccountID, connectionID string) (*ingest.ImportResult, error)
}

// Matcher runs the linking pass over an account's new transactions.
type Matcher interface {
	Process(ctx context.Context, accountID string) (*matching.Result, error)
}

// ImportRunner turns ImportAccountTasks into Jobs for the worker pool.
type ImportRunner struct {
	importer         AccountImporter
	matcher          Matcher
	groups           jobstore.GroupStore
	matchAfterImport bool
	logger           *zap.Logger
}

// NewImportRunner builds a runner. matcher may be nil, which disables the
// follow-up matching pass.
func NewImportRunner(importer AccountImporter, matcher Matcher, groups jobstore.GroupStore, matchAfterImport bool, logger *zap.Logger) *ImportRunner {
	return &ImportRunner{
		importer:         importer,
		matcher:          matcher,
		groups:           groups,
		matchAfterImport: matchAfterImport && matcher != nil,
		logger:           logging.OrNop(logger),
	}
}

func (r *ImportRunner) NewJob(task ingest.ImportAccountTask) *ImportJob {
	return &ImportJob{task: task, runner: r}
}

// ImportJob imports one provider account and reports its outcome to the
// task's group.
type ImportJob struct {
	task   ingest.ImportAccountTask
	runner *ImportRunner
}

var _ Job = (*ImportJob)(nil)

func (j *ImportJob) Execute(ctx context.Context) (err error) {
	defer func() {
		if j.task.GroupID == "" {
			return
		}
		// The group must hear about the result even if ctx timed out.
		if markErr := j.runner.groups.MarkDone(context.WithoutCancel(ctx), j.task.GroupID, err); markErr != nil {
			j.runner.logger.Error("failed to record task result",
				zap.String("group_id", j.task.GroupID),
				zap.String("account_id", j.task.AccountID),
				zap.Error(markErr))
		}
	}()

	if err = ctx.Err(); err != nil {
		return fmt.Errorf("import of account %s not started: %w", j.task.AccountID, err)
	}

	result, err := j.runner.importer.ImportAccount(ctx, j.task.AccountID, j.task.ConnectionID)
	if err != nil {
		return fmt.Errorf("import of account %s failed: %w", j.task.AccountID, err)
	}

	if !j.runner.matchAfterImport {
		return nil
	}

	// Matching is a follow-up; the account import itself already succeeded.
	matched, matchErr := j.runner.matcher.Process(ctx, result.AccountID)
	if matchErr != nil {
		j.runner.logger.Warn("matching after import failed",
			zap.String("account_id", result.AccountID),
			zap.Error(matchErr))
		return nil
	}
	j.runner.logger.Debug("matching after import",
		zap.String("account_id", result.AccountID),
		zap.Int64("account_links", matched.AccountLinks),
		zap.Int64("merchant_links", matched.MerchantLinks))

	return nil
}

func (j *ImportJob) Key() string {
	return j.task.AccountID
}

func (j *ImportJob) Description() string {
	return fmt.Sprintf("import of account %s (connection %s)", j.task.AccountID, j.task.ConnectionID)
}
