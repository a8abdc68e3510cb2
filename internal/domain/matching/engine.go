package matching

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"koru/internal/shared/logging"
)

var ErrAccountIDRequired = errors.New("account ID is required")

// Engine links imported transactions to their counterpart. Passes run in
// order of confidence: own accounts by IBAN/BBAN, then merchants by name
// prefix. A transaction linked by one pass is PROCESSED and skipped by the
// next. Counterparty linking is not implemented yet.
type Engine struct {
	repo   Repository
	logger *zap.Logger
}

func NewEngine(repo Repository, logger *zap.Logger) *Engine {
	return &Engine{repo: repo, logger: logging.OrNop(logger)}
}

// Process runs every pass over the UNPROCESSED transactions of accountID.
// Running it again is a no-op for rows it already linked.
func (e *Engine) Process(ctx context.Context, accountID string) (*Result, error) {
	if accountID == "" {
		return nil, ErrAccountIDRequired
	}

	result := &Result{}

	accountCandidates, err := e.repo.AccountLinkCandidates(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account candidates: %w", err)
	}
	if links := resolveAccountLinks(accountCandidates); len(links) > 0 {
		n, err := e.repo.LinkAccounts(ctx, links)
		if err != nil {
			return nil, fmt.Errorf("failed to link accounts: %w", err)
		}
		result.AccountLinks = n
	}

	merchantCandidates, err := e.repo.MerchantLinkCandidates(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("failed to load merchant candidates: %w", err)
	}
	if links := resolveMerchantLinks(merchantCandidates); len(links) > 0 {
		n, err := e.repo.LinkMerchants(ctx, links)
		if err != nil {
			return result, fmt.Errorf("failed to link merchants: %w", err)
		}
		result.MerchantLinks = n
	}

	result.Processed = result.AccountLinks + result.MerchantLinks

	e.logger.Info("matching complete",
		zap.String("account_id", accountID),
		zap.Int64("account_links", result.AccountLinks),
		zap.Int64("merchant_links", result.MerchantLinks),
		zap.Int("account_candidates", len(accountCandidates)),
		zap.Int("merchant_candidates", len(merchantCandidates)),
	)

	return result, nil
}
