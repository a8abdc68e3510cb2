package gocardless

import (
	"context"
)

// ClientInterface defines the methods required from the GoCardless API client
type ClientInterface interface {
	ListInstitutions(ctx context.Context, country string) ([]Institution, error)
	CreateRequisition(ctx context.Context, institutionID, redirectURL string) (*CreateRequisitionResponse, error)
	GetRequisition(ctx context.Context, requisitionID string) (*Requisition, error)
	GetAccountDetails(ctx context.Context, accountID string) (*AccountDetails, error)
	GetTransactions(ctx context.Context, accountID string) (*TransactionsContainer, error)
}
