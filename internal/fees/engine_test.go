package fees

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
)

type fakeFees struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error)
}

func (f *fakeFees) Fee(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error) {
	f.calls.Add(1)
	return f.fn(ctx, req)
}

func flatFee(_ context.Context, req domain.FeeRequest) (*domain.Fee, error) {
	fixed := decimal.NewFromInt(1)
	if req.Subtype == domain.FeeSubtypeIncoming {
		fixed = decimal.NewFromInt(2)
	}
	return &domain.Fee{Fixed: fixed, Percent: req.Amount.Div(decimal.NewFromInt(100))}, nil
}

func newTestEngine(t *testing.T, api feeFetcher, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(context.Background(), api, "GSENDER", zap.NewNop(), opts...)
	t.Cleanup(e.Close)
	return e
}

func TestQuote_Legs(t *testing.T) {
	var mu sync.Mutex
	var requests []domain.FeeRequest
	api := &fakeFees{fn: func(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error) {
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		return flatFee(ctx, req)
	}}
	e := newTestEngine(t, api)

	fees, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(10), "USD")
	require.NoError(t, err)
	assert.True(t, fees.Sender.Fixed.Equal(decimal.NewFromInt(1)))
	assert.True(t, fees.Recipient.Fixed.Equal(decimal.NewFromInt(2)))
	assert.True(t, fees.Sender.Percent.Equal(decimal.RequireFromString("0.1")))

	require.Len(t, requests, 2)
	bySubtype := map[domain.FeeSubtype]domain.FeeRequest{}
	for _, r := range requests {
		bySubtype[r.Subtype] = r
		assert.Equal(t, domain.FeeTypePayment, r.Type)
		assert.Equal(t, "USD", r.AssetCode)
	}
	assert.Equal(t, "GSENDER", bySubtype[domain.FeeSubtypeOutgoing].AccountID)
	assert.Equal(t, "GRECIPIENT", bySubtype[domain.FeeSubtypeIncoming].AccountID)
}

func TestQuote_CacheHit(t *testing.T) {
	api := &fakeFees{fn: flatFee}
	e := newTestEngine(t, api)

	first, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(10), "USD")
	require.NoError(t, err)
	require.EqualValues(t, 2, api.calls.Load())

	second, err := e.Quote(context.Background(), "GRECIPIENT", decimal.RequireFromString("10.00"), "USD")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 2, api.calls.Load(), "cache hit must not reach the network")

	latest, ok := e.Latest()
	require.True(t, ok)
	assert.Equal(t, NewKey("GRECIPIENT", decimal.NewFromInt(10), "USD"), latest.Key)
}

func TestQuote_CacheKeyIncludesAssetAndRecipient(t *testing.T) {
	api := &fakeFees{fn: flatFee}
	e := newTestEngine(t, api)

	_, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(10), "USD")
	require.NoError(t, err)
	_, err = e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(10), "EUR")
	require.NoError(t, err)
	_, err = e.Quote(context.Background(), "GOTHER", decimal.NewFromInt(10), "USD")
	require.NoError(t, err)

	assert.EqualValues(t, 6, api.calls.Load())
}

func TestQuote_AllOrNothing(t *testing.T) {
	failRecipient := atomic.Bool{}
	failRecipient.Store(true)
	api := &fakeFees{fn: func(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error) {
		if req.Subtype == domain.FeeSubtypeIncoming && failRecipient.Load() {
			return nil, errors.New("connection reset")
		}
		return flatFee(ctx, req)
	}}
	e := newTestEngine(t, api)

	_, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(10), "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteQuote)
	assert.Contains(t, err.Error(), "recipient fee fetch failed")

	var legErr *LegError
	require.ErrorAs(t, err, &legErr)
	assert.Equal(t, LegRecipient, legErr.Leg)

	latest, ok := e.Latest()
	require.True(t, ok)
	assert.Error(t, latest.Err)

	// nothing was cached, both legs are requested again
	failRecipient.Store(false)
	_, err = e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(10), "USD")
	require.NoError(t, err)
	assert.EqualValues(t, 4, api.calls.Load())
}

func TestQuote_EmptyPayload(t *testing.T) {
	api := &fakeFees{fn: func(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error) {
		if req.Subtype == domain.FeeSubtypeOutgoing {
			return nil, nil
		}
		return flatFee(ctx, req)
	}}
	e := newTestEngine(t, api)

	_, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(1), "USD")
	assert.ErrorIs(t, err, ErrNoFeeData)
	assert.ErrorIs(t, err, ErrIncompleteQuote)
	assert.Contains(t, err.Error(), "sender fee fetch failed")
}

func TestQuote_PanickingLeg(t *testing.T) {
	api := &fakeFees{fn: func(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error) {
		if req.Subtype == domain.FeeSubtypeIncoming {
			panic("boom")
		}
		return flatFee(ctx, req)
	}}
	e := newTestEngine(t, api)

	_, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(1), "USD")
	assert.ErrorIs(t, err, ErrIncompleteQuote)
}

func TestQuote_LastRequestWins(t *testing.T) {
	for _, honorsCancel := range []bool{true, false} {
		t.Run(map[bool]string{true: "cancelled", false: "late"}[honorsCancel], func(t *testing.T) {
			entered := make(chan struct{})
			release := make(chan struct{})
			var once sync.Once

			api := &fakeFees{fn: func(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error) {
				if req.Amount.Equal(decimal.NewFromInt(5)) {
					once.Do(func() { close(entered) })
					if honorsCancel {
						<-ctx.Done()
						return nil, ctx.Err()
					}
					<-release
				}
				return flatFee(ctx, req)
			}}
			e := newTestEngine(t, api)

			first := make(chan error, 1)
			go func() {
				_, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(5), "USD")
				first <- err
			}()
			<-entered

			fees, err := e.Quote(context.Background(), "GRECIPIENT", decimal.NewFromInt(6), "USD")
			require.NoError(t, err)
			close(release)

			assert.ErrorIs(t, <-first, ErrSuperseded)

			latest, ok := e.Latest()
			require.True(t, ok)
			assert.Equal(t, "6", latest.Key.Amount)
			assert.Equal(t, fees, latest.Fees)
			assert.NoError(t, latest.Err)

			// the superseded quote was not cached
			e.mu.Lock()
			_, cached := e.cache[NewKey("GRECIPIENT", decimal.NewFromInt(5), "USD")]
			e.mu.Unlock()
			assert.False(t, cached)
		})
	}
}

func TestRequestQuote_Debounced(t *testing.T) {
	api := &fakeFees{fn: flatFee}
	e := newTestEngine(t, api, WithDebounce(30*time.Millisecond))

	results, stop := e.Results()
	defer stop()

	for i := 1; i <= 5; i++ {
		e.RequestQuote("GRECIPIENT", decimal.NewFromInt(int64(i)), "USD")
	}

	select {
	case res := <-results:
		require.NoError(t, res.Err)
		assert.Equal(t, "5", res.Key.Amount)
	case <-time.After(2 * time.Second):
		t.Fatal("no quote published")
	}

	assert.EqualValues(t, 2, api.calls.Load(), "only the last request of a burst reaches the network")
}

func TestClose_DropsPendingRequest(t *testing.T) {
	api := &fakeFees{fn: flatFee}
	e := NewEngine(context.Background(), api, "GSENDER", zap.NewNop(), WithDebounce(20*time.Millisecond))

	e.RequestQuote("GRECIPIENT", decimal.NewFromInt(1), "USD")
	e.Close()

	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 0, api.calls.Load())
}
