// Package repository keeps local snapshots of ledger-derived collections in sync
// with the remote API and exposes them as replaying streams.
package repository

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/reactive"
)

// Fetcher loads a full snapshot of a collection.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Repository owns one snapshot collection. Nothing is fetched until the first
// Observe or Reload. A failed fetch keeps the last known good items.
type Repository[T any] struct {
	name  string
	fetch Fetcher[T]
	l     *zap.Logger

	items  *reactive.Cell[[]T]
	status *statusTracker
	errs   *reactive.Cell[error]

	started reactive.Gate

	// issued numbers loads in start order, committed is the number of the
	// load whose snapshot is published.
	mu        sync.Mutex
	issued    uint64
	committed uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a repository bound to ctx: cancelling ctx (or calling Close)
// cancels in-flight fetches.
func New[T any](ctx context.Context, name string, fetch Fetcher[T], l *zap.Logger) *Repository[T] {
	if l == nil {
		l = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Repository[T]{
		name:   name,
		fetch:  fetch,
		l:      l.With(zap.String("repository", name)),
		items:  reactive.NewCellWithValue([]T{}),
		status: newStatusTracker(),
		errs:   reactive.NewCell[error](),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Observe returns a replaying stream of snapshots. The first call starts the initial load.
func (r *Repository[T]) Observe() (<-chan []T, func()) {
	if r.started.Open() {
		go func() {
			_ = r.load(r.ctx)
		}()
	}
	return r.items.Observe()
}

// ObserveLoadingStatus returns a replaying stream of loading states.
func (r *Repository[T]) ObserveLoadingStatus() (<-chan domain.LoadingStatus, func()) {
	return r.status.cell.Observe()
}

// ObserveErrors returns a stream of fetch errors. The latest error is replayed.
func (r *Repository[T]) ObserveErrors() (<-chan error, func()) {
	return r.errs.Observe()
}

// Items returns the current snapshot.
func (r *Repository[T]) Items() []T {
	items, _ := r.items.Value()
	return items
}

// Reload refetches the collection unconditionally. Items stay untouched until
// the new snapshot arrives; on failure they are kept as is.
func (r *Repository[T]) Reload(ctx context.Context) error {
	r.started.Open()
	return r.load(ctx)
}

// Close cancels in-flight fetches.
func (r *Repository[T]) Close() {
	r.cancel()
}

func (r *Repository[T]) load(ctx context.Context) error {
	r.mu.Lock()
	r.issued++
	gen := r.issued
	r.mu.Unlock()

	r.status.begin()
	defer r.status.end()

	items, err := r.fetch(ctx)
	if err != nil {
		r.l.Warn("failed to load collection, keeping last known snapshot", zap.Error(err))
		r.errs.Set(err)
		return errors.Wrapf(err, "failed to load %s", r.name)
	}

	if items == nil {
		items = []T{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen < r.committed {
		r.l.Debug("dropping snapshot of a load overtaken by a newer one")
		return nil
	}
	r.committed = gen
	r.items.Set(items)
	r.l.Debug("collection loaded", zap.Int("items", len(items)))

	return nil
}

// statusTracker publishes Loading while at least one fetch is in flight.
type statusTracker struct {
	mu       sync.Mutex
	inflight int
	cell     *reactive.Cell[domain.LoadingStatus]
}

func newStatusTracker() *statusTracker {
	return &statusTracker{cell: reactive.NewCellWithValue(domain.Loaded)}
}

func (s *statusTracker) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	if s.inflight == 1 {
		s.cell.Set(domain.Loading)
	}
}

func (s *statusTracker) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		s.cell.Set(domain.Loaded)
	}
}
