package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"koru/internal/infrastructure/cache"
	"koru/internal/shared/logging"
)

const (
	DefaultBaseURL = "https://bankaccountdata.gocardless.com/api/v2"
	defaultTimeout = 60 * time.Second

	institutionsKey = "gocardless:institutions"
	institutionsTTL = 24 * time.Hour
)

// TokenProvider supplies bearer tokens for provider calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client handles communication with the GoCardless Bank Account Data API
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	cache      cache.Store
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new provider client. store may be nil, in which case
// institution lists are never cached.
func NewClient(baseURL string, tokens TokenProvider, store cache.Store, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		tokens:     tokens,
		cache:      store,
		logger:     logging.OrNop(logger),
		tracer:     otel.Tracer("gocardless"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListInstitutions returns the banks available in country (all countries
// when empty). Results are cached for a day; cache failures never fail the call.
func (c *Client) ListInstitutions(ctx context.Context, country string) ([]Institution, error) {
	key := institutionsKey
	if country != "" {
		key += ":" + country
	}

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			var institutions []Institution
			if err := json.Unmarshal([]byte(cached), &institutions); err == nil {
				return institutions, nil
			}
			c.logger.Warn("discarding unreadable cached institutions", zap.String("key", key))
		case !errors.Is(err, cache.ErrMiss):
			c.logger.Warn("failed to read cached institutions", zap.String("key", key), zap.Error(err))
		}
	}

	query := url.Values{}
	if country != "" {
		query.Set("country", country)
	}

	var institutions []Institution
	if err := c.call(ctx, "list institutions", http.MethodGet, "/institutions/", query, nil, &institutions); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(institutions); err == nil {
			if err := c.cache.Set(ctx, key, string(encoded), institutionsTTL); err != nil {
				c.logger.Warn("failed to cache institutions", zap.String("key", key), zap.Error(err))
			}
		}
	}

	return institutions, nil
}

// CreateRequisition starts a bank link for institutionID. The user is sent
// back to redirectURL after authorizing.
func (c *Client) CreateRequisition(ctx context.Context, institutionID, redirectURL string) (*CreateRequisitionResponse, error) {
	body := CreateRequisitionRequest{InstitutionID: institutionID, Redirect: redirectURL}

	var resp CreateRequisitionResponse
	if err := c.call(ctx, "create requisition", http.MethodPost, "/requisitions/", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRequisition fetches a requisition and the accounts it grants access to.
func (c *Client) GetRequisition(ctx context.Context, requisitionID string) (*Requisition, error) {
	var resp Requisition
	path := "/requisitions/" + url.PathEscape(requisitionID) + "/"
	if err := c.call(ctx, "fetch requisition", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccountDetails fetches the descriptive details of a provider account.
func (c *Client) GetAccountDetails(ctx context.Context, accountID string) (*AccountDetails, error) {
	var resp AccountDetailsResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/details/"
	if err := c.call(ctx, "fetch account details", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Account, nil
}

// GetTransactions fetches booked and pending transactions of a provider account.
func (c *Client) GetTransactions(ctx context.Context, accountID string) (*TransactionsContainer, error) {
	var resp TransactionsResponse
	path := "/accounts/" + url.PathEscape(accountID) + "/transactions/"
	if err := c.call(ctx, "fetch transactions", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Transactions, nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, query url.Values, body any, out any) error {
	ctx, span := c.tracer.Start(ctx, "gocardless."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token")
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	status, respBody, err := doJSON(ctx, c.httpClient, method, endpoint, token, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to %s: %w", operation, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status < 200 || status > 299 {
		apiErr := &ExternalAPIError{Operation: operation, StatusCode: status, Body: string(respBody)}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, http.StatusText(status))
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return fmt.Errorf("failed to unmarshal %s response: %w", operation, err)
	}
	return nil
}

// doJSON performs a request with an optional JSON body and bearer token and
// returns the raw response.
func doJSON(ctx context.Context, hc *http.Client, method, endpoint, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
