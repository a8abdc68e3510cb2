package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koru/internal/domain/connection"
	"koru/internal/infrastructure/cache"
	"koru/internal/infrastructure/gocardless"
)

func TestLinkService_StartLink(t *testing.T) {
	store := cache.NewMemoryStore()
	client := &MockClient{
		CreateRequisitionFunc: func(_ context.Context, institutionID, redirectURL string) (*gocardless.CreateRequisitionResponse, error) {
			assert.Equal(t, "SANDBOXFINANCE_SFIN0000", institutionID)
			assert.Equal(t, "https://app.example.com/api/connection/gocardless/callback", redirectURL)
			return &gocardless.CreateRequisitionResponse{ID: "req-1", Link: "https://bank.example.com/consent"}, nil
		},
	}

	svc := NewLinkService(client, store, &MockConnectionRepository{}, &MockConnectionImporter{}, "https://app.example.com", nil)
	resp, err := svc.StartLink(context.Background(), "user-1", "SANDBOXFINANCE_SFIN0000")
	require.NoError(t, err)
	assert.Equal(t, "https://bank.example.com/consent", resp.Link)

	userID, err := store.Get(context.Background(), "gocardless:requisition:req-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	ttl, ok := store.TTL("gocardless:requisition:req-1")
	require.True(t, ok)
	assert.InDelta(t, (7 * 24 * time.Hour).Seconds(), ttl.Seconds(), 5)
}

func TestLinkService_StartLink_RequiresIDs(t *testing.T) {
	svc := NewLinkService(&MockClient{}, cache.NewMemoryStore(), &MockConnectionRepository{}, &MockConnectionImporter{}, "", nil)
	_, err := svc.StartLink(context.Background(), "", "inst")
	assert.Error(t, err)
}

func TestLinkService_CompleteLink(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "gocardless:requisition:req-1", "user-1", time.Hour))

	client := &MockClient{
		GetRequisitionFunc: func(_ context.Context, id string) (*gocardless.Requisition, error) {
			return &gocardless.Requisition{ID: id, InstitutionID: "INST_1", Accounts: []string{"ext-a"}}, nil
		},
	}
	var created connection.CreateParams
	connections := &MockConnectionRepository{
		CreateFunc: func(_ context.Context, params connection.CreateParams) (*connection.Connection, error) {
			created = params
			return storedConnection(params.ID, params.ExternalReference), nil
		},
	}
	importer := &MockConnectionImporter{}

	svc := NewLinkService(client, store, connections, importer, "https://app.example.com", nil)
	svc.newID = func() string { return "conn-1" }

	result, err := svc.CompleteLink(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "job-conn-1", result.JobID)
	assert.Equal(t, "conn-1", result.Connection.ID)

	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "req-1", created.ExternalReference)
	assert.Equal(t, "INST_1", created.InstitutionID)
	assert.Equal(t, connection.ConnectionTypeGoCardless, created.ConnectionType)
}

func TestLinkService_CompleteLink_ExistingConnection(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "gocardless:requisition:req-1", "user-1", time.Hour))

	connections := &MockConnectionRepository{
		GetByExternalReferenceFunc: func(_ context.Context, ref string) (*connection.Connection, error) {
			return storedConnection("conn-old", ref), nil
		},
		CreateFunc: func(context.Context, connection.CreateParams) (*connection.Connection, error) {
			t.Fatal("existing connection must not be recreated")
			return nil, nil
		},
	}
	importer := &MockConnectionImporter{
		ImportConnectionFunc: func(context.Context, string) (string, error) {
			t.Fatal("existing connection must not be re-imported")
			return "", nil
		},
	}

	svc := NewLinkService(&MockClient{}, store, connections, importer, "", nil)
	result, err := svc.CompleteLink(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Empty(t, result.JobID)
	assert.Equal(t, "conn-old", result.Connection.ID)
}

func TestLinkService_CompleteLink_LostCreateRace(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "gocardless:requisition:req-1", "user-1", time.Hour))

	lookups := 0
	connections := &MockConnectionRepository{
		GetByExternalReferenceFunc: func(_ context.Context, ref string) (*connection.Connection, error) {
			lookups++
			if lookups == 1 {
				return nil, nil
			}
			return storedConnection("conn-winner", ref), nil
		},
		CreateFunc: func(context.Context, connection.CreateParams) (*connection.Connection, error) {
			return nil, connection.ErrDuplicateConnection
		},
	}

	svc := NewLinkService(&MockClient{}, store, connections, &MockConnectionImporter{}, "", nil)
	result, err := svc.CompleteLink(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "conn-winner", result.Connection.ID)
	assert.False(t, result.Created)
}

func TestLinkService_CompleteLink_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown reference", func(t *testing.T) {
		svc := NewLinkService(&MockClient{}, cache.NewMemoryStore(), &MockConnectionRepository{}, &MockConnectionImporter{}, "", nil)
		_, err := svc.CompleteLink(ctx, "req-x")
		assert.ErrorIs(t, err, ErrLinkExpired)
	})

	t.Run("import failure keeps the connection", func(t *testing.T) {
		store := cache.NewMemoryStore()
		require.NoError(t, store.Set(ctx, "gocardless:requisition:req-1", "user-1", time.Hour))
		importer := &MockConnectionImporter{
			ImportConnectionFunc: func(context.Context, string) (string, error) {
				return "", errors.New("queue unavailable")
			},
		}

		svc := NewLinkService(&MockClient{}, store, &MockConnectionRepository{}, importer, "", nil)
		result, err := svc.CompleteLink(ctx, "req-1")
		require.Error(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Created)
	})
}
