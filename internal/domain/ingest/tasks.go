package ingest

import "context"

// ImportAccountTask is the unit of work fanned out per provider account.
type ImportAccountTask struct {
	GroupID      string `json:"group_id"`
	AccountID    string `json:"account_id"` // provider account ID
	ConnectionID string `json:"connection_id"`
}

// GroupProgress counts the subtasks of a job group. Completed counts only
// successful subtasks.
type GroupProgress struct {
	Total     int
	Completed int
	Failed    int
}

// TaskQueue fans tasks out to workers and tracks their group.
type TaskQueue interface {
	// SubmitGroup records a new group for tasks, dispatches them and
	// returns the group ID without waiting for any of them.
	SubmitGroup(ctx context.Context, tasks []ImportAccountTask) (string, error)

	// Progress returns (nil, nil) for unknown or expired groups.
	Progress(ctx context.Context, groupID string) (*GroupProgress, error)
}

type JobState string

const (
	JobPending JobState = "PENDING"
	JobSuccess JobState = "SUCCESS"
	JobFailure JobState = "FAILURE"
)

// JobStatus is the externally visible state of an import job.
type JobStatus struct {
	JobID          string   `json:"jobId"`
	Ready          bool     `json:"ready"`
	Status         JobState `json:"status"`
	CompletedCount int      `json:"completedCount"`
	FailedCount    int      `json:"failedCount"`
	TotalCount     int      `json:"totalCount"`
}

// NewJobStatus derives the job state from group counters. A group is ready
// once every subtask has finished either way; an empty group is ready and
// successful immediately.
func NewJobStatus(jobID string, p GroupProgress) *JobStatus {
	ready := p.Completed+p.Failed >= p.Total

	state := JobPending
	switch {
	case ready && p.Failed == 0:
		state = JobSuccess
	case ready:
		state = JobFailure
	}

	return &JobStatus{
		JobID:          jobID,
		Ready:          ready,
		Status:         state,
		CompletedCount: p.Completed,
		FailedCount:    p.Failed,
		TotalCount:     p.Total,
	}
}
