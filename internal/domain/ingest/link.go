package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"koru/internal/domain/connection"
	"koru/internal/infrastructure/cache"
	"koru/internal/infrastructure/gocardless"
	"koru/internal/shared/logging"
)

const (
	pendingLinkKeyPrefix = "gocardless:requisition:"
	pendingLinkTTL       = 7 * 24 * time.Hour
	callbackPath         = "/api/connection/gocardless/callback"
)

// ConnectionImporter starts the import of a stored connection.
type ConnectionImporter interface {
	ImportConnection(ctx context.Context, connectionID string) (string, error)
}

// LinkResult describes the outcome of a completed bank link.
type LinkResult struct {
	Connection *connection.Connection
	Created    bool
	JobID      string // empty when the connection already existed
}

// LinkService walks a user through authorizing bank access: StartLink
// hands out the provider's consent link, CompleteLink turns the returned
// requisition into a Connection and imports it.
type LinkService struct {
	client      gocardless.ClientInterface
	store       cache.Store
	connections connection.Repository
	importer    ConnectionImporter
	appURL      string
	logger      *zap.Logger
	newID       func() string
}

func NewLinkService(
	client gocardless.ClientInterface,
	store cache.Store,
	connections connection.Repository,
	importer ConnectionImporter,
	appURL string,
	logger *zap.Logger,
) *LinkService {
	return &LinkService{
		client:      client,
		store:       store,
		connections: connections,
		importer:    importer,
		appURL:      appURL,
		logger:      logging.OrNop(logger),
		newID:       uuid.NewString,
	}
}

// StartLink creates a requisition for institutionID and remembers which
// user started it for a week.
func (s *LinkService) StartLink(ctx context.Context, userID, institutionID string) (*gocardless.CreateRequisitionResponse, error) {
	if userID == "" || institutionID == "" {
		return nil, errors.New("user ID and institution ID are required")
	}

	requisition, err := s.client.CreateRequisition(ctx, institutionID, s.appURL+callbackPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create requisition: %w", err)
	}

	if err := s.store.Set(ctx, pendingLinkKeyPrefix+requisition.ID, userID, pendingLinkTTL); err != nil {
		return nil, fmt.Errorf("failed to store pending link: %w", err)
	}

	s.logger.Info("bank link started",
		zap.String("user_id", userID),
		zap.String("institution_id", institutionID),
		zap.String("requisition_id", requisition.ID),
	)

	return requisition, nil
}

// CompleteLink handles the provider callback for requisition ref.
func (s *LinkService) CompleteLink(ctx context.Context, ref string) (*LinkResult, error) {
	userID, err := s.store.Get(ctx, pendingLinkKeyPrefix+ref)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrLinkExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending link: %w", err)
	}

	requisition, err := s.client.GetRequisition(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to validate requisition: %w", err)
	}

	existing, err := s.connections.GetByExternalReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to look up connection: %w", err)
	}
	if existing != nil {
		return &LinkResult{Connection: existing}, nil
	}

	conn, err := s.connections.Create(ctx, connection.CreateParams{
		ID:                s.newID(),
		UserID:            userID,
		ConnectionType:    connection.ConnectionTypeGoCardless,
		ExternalReference: ref,
		InstitutionID:     requisition.InstitutionID,
	})
	if err != nil {
		// A concurrent callback may have won the insert.
		if existing, lookupErr := s.connections.GetByExternalReference(ctx, ref); lookupErr == nil && existing != nil {
			return &LinkResult{Connection: existing}, nil
		}
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	jobID, err := s.importer.ImportConnection(ctx, conn.ID)
	if err != nil {
		return &LinkResult{Connection: conn, Created: true}, fmt.Errorf("failed to start import: %w", err)
	}

	s.logger.Info("bank link completed",
		zap.String("user_id", userID),
		zap.String("connection_id", conn.ID),
		zap.String("job_id", jobID),
	)

	return &LinkResult{Connection: conn, Created: true, JobID: jobID}, nil
}
