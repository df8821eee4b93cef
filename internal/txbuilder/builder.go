// Package txbuilder turns wallet intents into ledger transactions, submits
// them and interprets the outcome.
package txbuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/ledgerxdr"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
	"github.com/vadiminshakov/ledgerwallet/internal/txpipeline"
)

var (
	ErrInvalidSourceAccount      = errors.New("invalid source account id")
	ErrInvalidSourceBalance      = errors.New("invalid source balance id")
	ErrInvalidDestinationAccount = errors.New("invalid destination account id")
	ErrInvalidSignerKey          = errors.New("invalid signer public key")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrNoAssets                  = errors.New("no assets to create balances for")
	ErrDuplicateAsset            = errors.New("duplicate asset")
	// ErrMetaDecode the transaction was applied but its metadata could not be interpreted.
	ErrMetaDecode = errors.New("failed to decode transaction meta")
	// ErrNoCreatedBalances the metadata contains no created balance.
	ErrNoCreatedBalances = errors.New("no created balances in transaction meta")
)

// ChainSuccessDecodeError the transaction succeeded on chain, but its result
// could not be decoded. Callers must not resubmit.
type ChainSuccessDecodeError struct {
	Hash string
	Err  error
}

func (e *ChainSuccessDecodeError) Error() string {
	return fmt.Sprintf("transaction %s succeeded but its meta is unusable: %v", e.Hash, e.Err)
}

func (e *ChainSuccessDecodeError) Unwrap() error { return e.Err }

func (e *ChainSuccessDecodeError) Is(target error) bool { return target == ErrMetaDecode }

type networkInfoProvider interface {
	NetworkInfo(ctx context.Context) (domain.NetworkInfo, error)
}

type transactionPipeline interface {
	Build(sourceAccount string, ops []ledgerxdr.Operation, timestamp time.Time) (*txpipeline.Model, error)
	Submit(ctx context.Context, m *txpipeline.Model) (*txpipeline.SubmitResult, error)
}

// Result outcome of a successful submission.
type Result struct {
	SubmissionID string
	Hash         string
	BalanceIDs   []string
}

type Option func(*Builder)

func WithJournal(j SubmissionJournal) Option {
	return func(b *Builder) {
		b.journal = j
	}
}

func WithStateObserver(o StateObserver) Option {
	return func(b *Builder) {
		b.observer = o
	}
}

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// Builder holds what every submission needs.
type Builder struct {
	network  networkInfoProvider
	pipeline transactionPipeline
	journal  SubmissionJournal
	observer StateObserver
	now      func() time.Time
	l        *zap.Logger
}

func NewBuilder(network networkInfoProvider, pipeline transactionPipeline, l *zap.Logger, opts ...Option) *Builder {
	if l == nil {
		l = zap.NewNop()
	}
	b := &Builder{
		network:  network,
		pipeline: pipeline,
		now:      time.Now,
		l:        l.With(zap.String("component", "txbuilder")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// submit builds and submits ops, moving s through building and submitting.
func (b *Builder) submit(ctx context.Context, s *submission, source string, ops []ledgerxdr.Operation) (*txpipeline.SubmitResult, error) {
	model, err := b.pipeline.Build(source, ops, b.now())
	if err != nil {
		return nil, s.fail(errors.Wrap(err, "failed to build transaction"), "")
	}

	s.enter(StateSubmitting)
	res, err := b.pipeline.Submit(ctx, model)
	if err != nil {
		return nil, s.fail(err, "")
	}
	return res, nil
}

func decodeKey(version strkey.VersionByte, id string, named error) (ledgerxdr.Key, error) {
	raw, err := strkey.Decode32(version, id)
	if err != nil {
		if got, verr := strkey.Version(id); verr == nil && got != version {
			return ledgerxdr.Key{}, errors.Wrapf(named, "%q: expected %s, got %s", id, version, got)
		}
		return ledgerxdr.Key{}, errors.Wrapf(named, "%q: %v", id, err)
	}
	return raw, nil
}
