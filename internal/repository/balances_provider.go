package repository

import (
	"sync"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/reactive"
)

// LogoResolver turns an opaque asset logo key into a displayable URL.
type LogoResolver interface {
	LogoURL(key string) string
}

// BalancesProvider joins balances with asset metadata. The join is recomputed
// whenever either repository emits; balances whose asset is not known yet are dropped
// and show up once the assets snapshot catches up.
type BalancesProvider struct {
	balances *Repository[domain.Balance]
	assets   *Repository[domain.Asset]
	logos    LogoResolver

	started reactive.Gate
	mu      sync.Mutex
	joined  *reactive.Cell[[]domain.BalanceDetails]
	stop    func()
}

// NewBalancesProvider creates a provider over the two repositories.
func NewBalancesProvider(balances *Repository[domain.Balance], assets *Repository[domain.Asset], logos LogoResolver) *BalancesProvider {
	return &BalancesProvider{
		balances: balances,
		assets:   assets,
		logos:    logos,
	}
}

// Observe returns a replaying stream of joined balances. The first call starts
// both upstream repositories.
func (p *BalancesProvider) Observe() (<-chan []domain.BalanceDetails, func()) {
	p.mu.Lock()
	if p.started.Open() {
		p.joined, p.stop = reactive.CombineLatest[[]domain.Balance, []domain.Asset, []domain.BalanceDetails](
			p.balances, p.assets, p.join)
	}
	joined := p.joined
	p.mu.Unlock()

	return joined.Observe()
}

// Close detaches the provider from its repositories.
func (p *BalancesProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		p.stop()
	}
}

func (p *BalancesProvider) join(balances []domain.Balance, assets []domain.Asset) []domain.BalanceDetails {
	return JoinBalances(balances, assets, p.logos)
}

// JoinBalances resolves every balance against its asset. Balances with an unknown asset are skipped.
func JoinBalances(balances []domain.Balance, assets []domain.Asset, logos LogoResolver) []domain.BalanceDetails {
	byCode := make(map[string]domain.Asset, len(assets))
	for _, a := range assets {
		byCode[a.Code] = a
	}

	out := make([]domain.BalanceDetails, 0, len(balances))
	for _, b := range balances {
		asset, ok := byCode[b.AssetCode]
		if !ok {
			continue
		}
		details := domain.BalanceDetails{Balance: b, Asset: asset}
		if logos != nil && asset.LogoKey != "" {
			details.LogoURL = logos.LogoURL(asset.LogoKey)
		}
		out = append(out, details)
	}

	return out
}
