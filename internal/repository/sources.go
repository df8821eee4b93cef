package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
)

type ledgerReader interface {
	Balances(ctx context.Context, accountID string) ([]domain.Balance, error)
	Assets(ctx context.Context) ([]domain.Asset, error)
	Polls(ctx context.Context, accountID string) ([]domain.Poll, error)
	Movements(ctx context.Context, accountID string, req domain.PageRequest) (domain.Page[domain.Movement], error)
}

// NewBalancesRepository creates the repository of the account balances.
func NewBalancesRepository(ctx context.Context, api ledgerReader, accountID string, l *zap.Logger) *Repository[domain.Balance] {
	return New(ctx, "balances", func(ctx context.Context) ([]domain.Balance, error) {
		return api.Balances(ctx, accountID)
	}, l)
}

// NewAssetsRepository creates the repository of all ledger assets.
func NewAssetsRepository(ctx context.Context, api ledgerReader, l *zap.Logger) *Repository[domain.Asset] {
	return New(ctx, "assets", api.Assets, l)
}

// NewPollsRepository creates the repository of polls visible to the account.
func NewPollsRepository(ctx context.Context, api ledgerReader, accountID string, l *zap.Logger) *Repository[domain.Poll] {
	return New(ctx, "polls", func(ctx context.Context) ([]domain.Poll, error) {
		return api.Polls(ctx, accountID)
	}, l)
}

// NewMovementsRepository creates the paged repository of the account movements, newest first.
func NewMovementsRepository(ctx context.Context, api ledgerReader, accountID string, pageSize int, l *zap.Logger) *PagedRepository[domain.Movement] {
	first := domain.PageRequest{Limit: pageSize, Order: domain.PageOrderDesc}
	return NewPaged(ctx, "movements", first, func(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Movement], error) {
		return api.Movements(ctx, accountID, req)
	}, l)
}
