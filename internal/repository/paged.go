package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/reactive"
)

// PageFetcher loads a single page of a collection.
type PageFetcher[T any] func(ctx context.Context, req domain.PageRequest) (domain.Page[T], error)

// PagedRepository drives incremental loading of a server-side paged collection.
type PagedRepository[T any] struct {
	name      string
	fetch     PageFetcher[T]
	firstPage domain.PageRequest
	l         *zap.Logger

	items  *reactive.Cell[[]T]
	status *statusTracker
	errs   *reactive.Cell[error]

	started reactive.Gate

	mu                  sync.Mutex
	previousPageRequest *domain.PageRequest
	links               domain.Links
	// generation changes whenever a first page is committed so that a load-more
	// started against an older snapshot is discarded. firstIssued numbers
	// first-page loads in start order, firstCommitted is the published one.
	generation     uint64
	firstIssued    uint64
	firstCommitted uint64

	isLoadingMore atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPaged creates a paged repository. firstPage is the request used for the
// first page; later pages reuse it with the cursor taken from links.next.
func NewPaged[T any](ctx context.Context, name string, firstPage domain.PageRequest, fetch PageFetcher[T], l *zap.Logger) *PagedRepository[T] {
	if l == nil {
		l = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &PagedRepository[T]{
		name:      name,
		fetch:     fetch,
		firstPage: firstPage,
		l:         l.With(zap.String("repository", name)),
		items:     reactive.NewCellWithValue([]T{}),
		status:    newStatusTracker(),
		errs:      reactive.NewCell[error](),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Observe returns a replaying stream of the accumulated pages. The first call loads the first page.
func (r *PagedRepository[T]) Observe() (<-chan []T, func()) {
	if r.started.Open() {
		go func() {
			_ = r.loadFirstPage(r.ctx)
		}()
	}
	return r.items.Observe()
}

// ObserveLoadingStatus returns a replaying stream of loading states.
func (r *PagedRepository[T]) ObserveLoadingStatus() (<-chan domain.LoadingStatus, func()) {
	return r.status.cell.Observe()
}

// ObserveErrors returns a stream of fetch errors.
func (r *PagedRepository[T]) ObserveErrors() (<-chan error, func()) {
	return r.errs.Observe()
}

// Items returns the current accumulated snapshot.
func (r *PagedRepository[T]) Items() []T {
	items, _ := r.items.Value()
	return items
}

// HasMore reports whether the last loaded page advertised a next page.
func (r *PagedRepository[T]) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previousPageRequest != nil && r.links.Next != ""
}

// LoadFirstPage (re)loads the first page and replaces the snapshot with it.
func (r *PagedRepository[T]) LoadFirstPage(ctx context.Context) error {
	r.started.Open()
	return r.loadFirstPage(ctx)
}

func (r *PagedRepository[T]) loadFirstPage(ctx context.Context) error {
	req := r.firstPage

	r.mu.Lock()
	r.firstIssued++
	seq := r.firstIssued
	r.mu.Unlock()

	r.status.begin()
	defer r.status.end()

	page, err := r.fetch(ctx, req)
	if err != nil {
		r.l.Warn("failed to load first page", zap.Error(err))
		r.errs.Set(err)
		return errors.Wrapf(err, "failed to load first page of %s", r.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < r.firstCommitted {
		return nil
	}
	r.firstCommitted = seq
	r.generation++

	items := page.Items
	if items == nil {
		items = []T{}
	}
	r.previousPageRequest = &req
	r.links = page.Links
	r.items.Set(items)

	return nil
}

// LoadMore appends the next page. It is a no-op when no page was loaded yet,
// when the last page had no next link, or when a load-more is already running.
func (r *PagedRepository[T]) LoadMore(ctx context.Context) error {
	r.mu.Lock()
	if r.previousPageRequest == nil || r.links.Next == "" {
		r.mu.Unlock()
		return nil
	}
	if !r.isLoadingMore.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return nil
	}
	req := r.previousPageRequest.WithNext(r.links.Next)
	gen := r.generation
	r.mu.Unlock()

	defer r.isLoadingMore.Store(false)

	r.status.begin()
	defer r.status.end()

	page, err := r.fetch(ctx, req)
	if err != nil {
		r.l.Warn("failed to load next page", zap.String("cursor", req.Cursor), zap.Error(err))
		r.errs.Set(err)
		return errors.Wrapf(err, "failed to load next page of %s", r.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		r.l.Debug("dropping page loaded for a replaced snapshot", zap.String("cursor", req.Cursor))
		return nil
	}

	current, _ := r.items.Value()
	next := make([]T, 0, len(current)+len(page.Items))
	next = append(next, current...)
	next = append(next, page.Items...)

	r.previousPageRequest = &req
	r.links = page.Links
	r.items.Set(next)

	return nil
}

// Close cancels in-flight fetches.
func (r *PagedRepository[T]) Close() {
	r.cancel()
}
