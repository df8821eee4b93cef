// Package fees quotes sender and recipient payment fees.
package fees

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/reactive"
)

// DefaultDebounce delay applied to RequestQuote.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrIncompleteQuote at least one fee leg failed; no partial quote is returned.
	ErrIncompleteQuote = errors.New("incomplete fee quote")
	// ErrNoFeeData the API answered without a fee.
	ErrNoFeeData = errors.New("no fee data")
	// ErrSuperseded a newer quote was requested before this one finished.
	ErrSuperseded = errors.New("fee quote superseded")
)

type feeFetcher interface {
	Fee(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error)
}

// Leg side of a payment a fee is calculated for.
type Leg string

const (
	LegSender    Leg = "sender"
	LegRecipient Leg = "recipient"
)

// LegError failure of one fee leg. It matches ErrIncompleteQuote.
type LegError struct {
	Leg Leg
	Err error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("%s fee fetch failed: %v", e.Leg, e.Err)
}

func (e *LegError) Unwrap() error { return e.Err }

func (e *LegError) Is(target error) bool { return target == ErrIncompleteQuote }

// Key identifies a cached quote.
type Key struct {
	Amount             string
	AssetCode          string
	RecipientAccountID string
}

func NewKey(recipientAccountID string, amount decimal.Decimal, assetCode string) Key {
	return Key{
		Amount:             amount.String(),
		AssetCode:          assetCode,
		RecipientAccountID: recipientAccountID,
	}
}

// QuoteResult outcome of the most recent quote.
type QuoteResult struct {
	Key  Key
	Fees domain.Fees
	Err  error
}

type Option func(*Engine)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debouncer = NewDebouncer(d)
	}
}

// Engine quotes fees for payments sent by one account. Only the latest
// request is ever reported: starting a quote cancels the previous one.
type Engine struct {
	api       feeFetcher
	accountID string
	l         *zap.Logger
	debouncer *Debouncer

	mu         sync.Mutex
	cache      map[Key]domain.Fees
	generation uint64
	cancel     context.CancelFunc

	results *reactive.Cell[QuoteResult]

	ctx  context.Context
	stop context.CancelFunc
}

// NewEngine creates an engine quoting payments from accountID.
func NewEngine(ctx context.Context, api feeFetcher, accountID string, l *zap.Logger, opts ...Option) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	ctx, stop := context.WithCancel(ctx)

	e := &Engine{
		api:       api,
		accountID: accountID,
		l:         l.With(zap.String("component", "fees")),
		debouncer: NewDebouncer(DefaultDebounce),
		cache:     make(map[Key]domain.Fees),
		results:   reactive.NewCell[QuoteResult](),
		ctx:       ctx,
		stop:      stop,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Quote returns the sender and recipient fees of a payment, from cache if
// this exact payment was quoted before. Any quote still in flight is cancelled
// and returns ErrSuperseded.
func (e *Engine) Quote(ctx context.Context, recipientAccountID string, amount decimal.Decimal, assetCode string) (domain.Fees, error) {
	key := NewKey(recipientAccountID, amount, assetCode)

	e.mu.Lock()
	e.generation++
	gen := e.generation
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	if fees, ok := e.cache[key]; ok {
		e.results.Set(QuoteResult{Key: key, Fees: fees})
		e.mu.Unlock()
		e.l.Debug("fee quote served from cache", zap.String("amount", key.Amount), zap.String("asset", assetCode))
		return fees, nil
	}

	qctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	fees, err := e.fetch(qctx, recipientAccountID, amount, assetCode)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		return domain.Fees{}, errors.Wrapf(ErrSuperseded, "amount %s", key.Amount)
	}
	e.cancel = nil

	if err != nil {
		e.l.Warn("failed to quote fees", zap.String("amount", key.Amount), zap.String("asset", assetCode), zap.Error(err))
		e.results.Set(QuoteResult{Key: key, Err: err})
		return domain.Fees{}, err
	}

	e.cache[key] = fees
	e.results.Set(QuoteResult{Key: key, Fees: fees})

	return fees, nil
}

// RequestQuote schedules a debounced Quote; the outcome is published on Results.
func (e *Engine) RequestQuote(recipientAccountID string, amount decimal.Decimal, assetCode string) {
	e.debouncer.Do(func() {
		_, err := e.Quote(e.ctx, recipientAccountID, amount, assetCode)
		if err != nil && !errors.Is(err, ErrSuperseded) && e.ctx.Err() == nil {
			e.l.Debug("debounced fee quote failed", zap.Error(err))
		}
	})
}

// Results streams the outcome of the latest quote.
func (e *Engine) Results() (<-chan QuoteResult, func()) {
	return e.results.Observe()
}

// Latest returns the outcome of the latest finished quote.
func (e *Engine) Latest() (QuoteResult, bool) {
	return e.results.Value()
}

// Close cancels pending and in-flight quotes.
func (e *Engine) Close() {
	e.debouncer.Stop()

	e.mu.Lock()
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()

	e.stop()
}

func (e *Engine) fetch(ctx context.Context, recipientAccountID string, amount decimal.Decimal, assetCode string) (domain.Fees, error) {
	var fees domain.Fees

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fee, err := e.leg(gctx, LegSender, domain.FeeRequest{
			AccountID: e.accountID,
			AssetCode: assetCode,
			Amount:    amount,
			Type:      domain.FeeTypePayment,
			Subtype:   domain.FeeSubtypeOutgoing,
		})
		fees.Sender = fee
		return err
	})
	g.Go(func() error {
		fee, err := e.leg(gctx, LegRecipient, domain.FeeRequest{
			AccountID: recipientAccountID,
			AssetCode: assetCode,
			Amount:    amount,
			Type:      domain.FeeTypePayment,
			Subtype:   domain.FeeSubtypeIncoming,
		})
		fees.Recipient = fee
		return err
	})

	if err := g.Wait(); err != nil {
		return domain.Fees{}, err
	}

	return fees, nil
}

func (e *Engine) leg(ctx context.Context, leg Leg, req domain.FeeRequest) (fee domain.Fee, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &LegError{Leg: leg, Err: errors.Errorf("panic: %v", r)}
		}
	}()

	res, err := e.api.Fee(ctx, req)
	if err != nil {
		return domain.Fee{}, &LegError{Leg: leg, Err: err}
	}
	if res == nil {
		return domain.Fee{}, &LegError{Leg: leg, Err: ErrNoFeeData}
	}

	return *res, nil
}
