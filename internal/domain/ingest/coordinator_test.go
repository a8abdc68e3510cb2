package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koru/internal/domain/connection"
	"koru/internal/infrastructure/gocardless"
)

func storedConnection(id, ref string) *connection.Connection {
	return &connection.Connection{
		ID:                id,
		UserID:            "user-1",
		ConnectionType:    connection.ConnectionTypeGoCardless,
		ExternalReference: strPtr(ref),
	}
}

func TestCoordinator_ImportConnection(t *testing.T) {
	connections := &MockConnectionRepository{
		GetByIDFunc: func(_ context.Context, id string) (*connection.Connection, error) {
			return storedConnection(id, "req-1"), nil
		},
	}
	client := &MockClient{
		GetRequisitionFunc: func(_ context.Context, id string) (*gocardless.Requisition, error) {
			assert.Equal(t, "req-1", id)
			return &gocardless.Requisition{ID: id, Accounts: []string{"ext-a", "ext-b"}}, nil
		},
	}
	queue := NewMockTaskQueue()

	c := NewCoordinator(connections, client, queue, nil)
	jobID, err := c.ImportConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	assert.Equal(t, []ImportAccountTask{
		{AccountID: "ext-a", ConnectionID: "conn-1"},
		{AccountID: "ext-b", ConnectionID: "conn-1"},
	}, queue.Submitted[jobID])

	status, err := c.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, status.Ready)
	assert.Equal(t, JobPending, status.Status)
	assert.Equal(t, 2, status.TotalCount)
}

func TestCoordinator_ImportConnection_NoAccounts(t *testing.T) {
	connections := &MockConnectionRepository{
		GetByIDFunc: func(_ context.Context, id string) (*connection.Connection, error) {
			return storedConnection(id, "req-1"), nil
		},
	}
	c := NewCoordinator(connections, &MockClient{}, NewMockTaskQueue(), nil)

	jobID, err := c.ImportConnection(context.Background(), "conn-1")
	require.NoError(t, err)

	status, err := c.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, JobSuccess, status.Status)
	assert.Zero(t, status.TotalCount)
}

func TestCoordinator_ImportConnection_Errors(t *testing.T) {
	t.Run("unknown connection", func(t *testing.T) {
		c := NewCoordinator(&MockConnectionRepository{}, &MockClient{}, NewMockTaskQueue(), nil)
		_, err := c.ImportConnection(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrConnectionNotFound)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("no requisition reference", func(t *testing.T) {
		connections := &MockConnectionRepository{
			GetByIDFunc: func(_ context.Context, id string) (*connection.Connection, error) {
				return &connection.Connection{ID: id}, nil
			},
		}
		c := NewCoordinator(connections, &MockClient{}, NewMockTaskQueue(), nil)
		_, err := c.ImportConnection(context.Background(), "conn-1")
		var missing *ConnectionMissingDataError
		assert.ErrorAs(t, err, &missing)
	})

	t.Run("provider failure submits nothing", func(t *testing.T) {
		connections := &MockConnectionRepository{
			GetByIDFunc: func(_ context.Context, id string) (*connection.Connection, error) {
				return storedConnection(id, "req-1"), nil
			},
		}
		client := &MockClient{
			GetRequisitionFunc: func(context.Context, string) (*gocardless.Requisition, error) {
				return nil, &gocardless.ExternalAPIError{Operation: "fetch requisition", StatusCode: 404}
			},
		}
		queue := NewMockTaskQueue()
		c := NewCoordinator(connections, client, queue, nil)

		_, err := c.ImportConnection(context.Background(), "conn-1")
		var apiErr *gocardless.ExternalAPIError
		assert.ErrorAs(t, err, &apiErr)
		assert.Empty(t, queue.Submitted)
	})

	t.Run("queue failure", func(t *testing.T) {
		connections := &MockConnectionRepository{
			GetByIDFunc: func(_ context.Context, id string) (*connection.Connection, error) {
				return storedConnection(id, "req-1"), nil
			},
		}
		queue := NewMockTaskQueue()
		queue.SubmitErr = errors.New("broker down")
		c := NewCoordinator(connections, &MockClient{}, queue, nil)

		_, err := c.ImportConnection(context.Background(), "conn-1")
		assert.ErrorContains(t, err, "broker down")
	})
}

func TestCoordinator_GetStatus_UnknownJob(t *testing.T) {
	c := NewCoordinator(&MockConnectionRepository{}, &MockClient{}, NewMockTaskQueue(), nil)
	_, err := c.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestNewJobStatus(t *testing.T) {
	tests := []struct {
		name      string
		progress  GroupProgress
		wantReady bool
		wantState JobState
	}{
		{"empty group", GroupProgress{}, true, JobSuccess},
		{"nothing finished", GroupProgress{Total: 3}, false, JobPending},
		{"partially done", GroupProgress{Total: 3, Completed: 2}, false, JobPending},
		{"failure while others run", GroupProgress{Total: 3, Completed: 1, Failed: 1}, false, JobPending},
		{"all succeeded", GroupProgress{Total: 3, Completed: 3}, true, JobSuccess},
		{"finished with a failure", GroupProgress{Total: 3, Completed: 2, Failed: 1}, true, JobFailure},
		{"all failed", GroupProgress{Total: 2, Failed: 2}, true, JobFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := NewJobStatus("job", tt.progress)
			assert.Equal(t, tt.wantReady, status.Ready)
			assert.Equal(t, tt.wantState, status.Status)
			assert.Equal(t, tt.progress.Completed, status.CompletedCount)
			assert.Equal(t, tt.progress.Failed, status.FailedCount)
		})
	}
}
