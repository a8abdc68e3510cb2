package ingest

import (
	"context"
	"sync"

	"koru/internal/domain/account"
	"koru/internal/domain/connection"
	"koru/internal/domain/transaction"
	"koru/internal/infrastructure/gocardless"
)

type MockClient struct {
	ListInstitutionsFunc  func(ctx context.Context, country string) ([]gocardless.Institution, error)
	CreateRequisitionFunc func(ctx context.Context, institutionID, redirectURL string) (*gocardless.CreateRequisitionResponse, error)
	GetRequisitionFunc    func(ctx context.Context, requisitionID string) (*gocardless.Requisition, error)
	GetAccountDetailsFunc func(ctx context.Context, accountID string) (*gocardless.AccountDetails, error)
	GetTransactionsFunc   func(ctx context.Context, accountID string) (*gocardless.TransactionsContainer, error)
}

var _ gocardless.ClientInterface = (*MockClient)(nil)

func (m *MockClient) ListInstitutions(ctx context.Context, country string) ([]gocardless.Institution, error) {
	if m.ListInstitutionsFunc != nil {
		return m.ListInstitutionsFunc(ctx, country)
	}
	return nil, nil
}

func (m *MockClient) CreateRequisition(ctx context.Context, institutionID, redirectURL string) (*gocardless.CreateRequisitionResponse, error) {
	if m.CreateRequisitionFunc != nil {
		return m.CreateRequisitionFunc(ctx, institutionID, redirectURL)
	}
	return &gocardless.CreateRequisitionResponse{}, nil
}

func (m *MockClient) GetRequisition(ctx context.Context, requisitionID string) (*gocardless.Requisition, error) {
	if m.GetRequisitionFunc != nil {
		return m.GetRequisitionFunc(ctx, requisitionID)
	}
	return &gocardless.Requisition{ID: requisitionID}, nil
}

func (m *MockClient) GetAccountDetails(ctx context.Context, accountID string) (*gocardless.AccountDetails, error) {
	if m.GetAccountDetailsFunc != nil {
		return m.GetAccountDetailsFunc(ctx, accountID)
	}
	return &gocardless.AccountDetails{Currency: "EUR"}, nil
}

func (m *MockClient) GetTransactions(ctx context.Context, accountID string) (*gocardless.TransactionsContainer, error) {
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, accountID)
	}
	return &gocardless.TransactionsContainer{}, nil
}

type MockAccountRepository struct {
	UpsertFunc func(ctx context.Context, params account.UpsertParams) (*account.Account, error)
}

var _ account.Repository = (*MockAccountRepository)(nil)

func (m *MockAccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	ext := params.ExternalID
	return &account.Account{ID: params.ID, ExternalID: &ext}, nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByExternalID(ctx context.Context, externalID string) (*account.Account, error) {
	return nil, account.ErrAccountNotFound
}

type MockTransactionRepository struct {
	UpsertBatchFunc func(ctx context.Context, params []transaction.UpsertParams) (int64, error)
}

var _ transaction.Repository = (*MockTransactionRepository)(nil)

func (m *MockTransactionRepository) UpsertBatch(ctx context.Context, params []transaction.UpsertParams) (int64, error) {
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, params)
	}
	return int64(len(params)), nil
}

type MockConnectionRepository struct {
	GetByIDFunc                func(ctx context.Context, id string) (*connection.Connection, error)
	GetByExternalReferenceFunc func(ctx context.Context, ref string) (*connection.Connection, error)
	CreateFunc                 func(ctx context.Context, params connection.CreateParams) (*connection.Connection, error)
	ListIDsFunc                func(ctx context.Context) ([]string, error)
}

var _ connection.Repository = (*MockConnectionRepository)(nil)

func (m *MockConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockConnectionRepository) GetByExternalReference(ctx context.Context, ref string) (*connection.Connection, error) {
	if m.GetByExternalReferenceFunc != nil {
		return m.GetByExternalReferenceFunc(ctx, ref)
	}
	return nil, nil
}

func (m *MockConnectionRepository) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	ref, inst := params.ExternalReference, params.InstitutionID
	return &connection.Connection{
		ID:                params.ID,
		UserID:            params.UserID,
		ConnectionType:    params.ConnectionType,
		ExternalReference: &ref,
		InstitutionID:     &inst,
	}, nil
}

func (m *MockConnectionRepository) ListIDs(ctx context.Context) ([]string, error) {
	if m.ListIDsFunc != nil {
		return m.ListIDsFunc(ctx)
	}
	return nil, nil
}

// MockTaskQueue records submitted groups in memory.
type MockTaskQueue struct {
	mu        sync.Mutex
	Submitted map[string][]ImportAccountTask
	Counters  map[string]*GroupProgress
	SubmitErr error
}

func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{
		Submitted: make(map[string][]ImportAccountTask),
		Counters:  make(map[string]*GroupProgress),
	}
}

func (q *MockTaskQueue) SubmitGroup(_ context.Context, tasks []ImportAccountTask) (string, error) {
	if q.SubmitErr != nil {
		return "", q.SubmitErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	id := "job-1"
	q.Submitted[id] = tasks
	q.Counters[id] = &GroupProgress{Total: len(tasks)}
	return id, nil
}

func (q *MockTaskQueue) Progress(_ context.Context, groupID string) (*GroupProgress, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.Counters[groupID]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

type MockConnectionImporter struct {
	ImportConnectionFunc func(ctx context.Context, connectionID string) (string, error)
}

func (m *MockConnectionImporter) ImportConnection(ctx context.Context, connectionID string) (string, error) {
	if m.ImportConnectionFunc != nil {
		return m.ImportConnectionFunc(ctx, connectionID)
	}
	return "job-" + connectionID, nil
}

func strPtr(s string) *string { return &s }
