// Package txpipeline builds, signs and submits ledger transactions.
package txpipeline

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/clients"
	"github.com/vadiminshakov/ledgerwallet/internal/ledgerxdr"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
)

// DefaultLifetime how long a built transaction stays valid.
const DefaultLifetime = 7 * 24 * time.Hour

type submitter interface {
	SubmitTransaction(ctx context.Context, envelope string) (*clients.SubmitResponse, error)
}

// Model built but not yet signed transaction.
type Model struct {
	Tx ledgerxdr.Transaction
}

// SubmitResult accepted transaction.
type SubmitResult struct {
	Hash      string
	ResultXDR string
	MetaXDR   string
}

// Pipeline signs transactions with a single signer and submits them to the API.
type Pipeline struct {
	api       submitter
	signer    *Signer
	networkID [32]byte
	lifetime  time.Duration
	l         *zap.Logger
}

func NewPipeline(api submitter, signer *Signer, networkPassphrase string, l *zap.Logger) (*Pipeline, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if networkPassphrase == "" {
		return nil, errors.New("network passphrase is required")
	}
	if l == nil {
		l = zap.NewNop()
	}

	return &Pipeline{
		api:       api,
		signer:    signer,
		networkID: ledgerxdr.NetworkID(networkPassphrase),
		lifetime:  DefaultLifetime,
		l:         l,
	}, nil
}

// Build assembles a transaction from sourceAccount valid from timestamp for the pipeline lifetime.
func (p *Pipeline) Build(sourceAccount string, ops []ledgerxdr.Operation, timestamp time.Time) (*Model, error) {
	source, err := strkey.Decode32(strkey.VersionByteAccountID, sourceAccount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode source account")
	}

	salt := uuid.New()
	tx := ledgerxdr.Transaction{
		SourceAccount: source,
		Salt:          binary.BigEndian.Uint64(salt[:8]),
		TimeBounds: ledgerxdr.TimeBounds{
			MaxTime: uint64(timestamp.Add(p.lifetime).Unix()),
		},
		Operations: ops,
	}
	if _, err := tx.MarshalBinary(); err != nil {
		return nil, errors.Wrap(err, "failed to build transaction")
	}

	return &Model{Tx: tx}, nil
}

// Submit signs the transaction and submits it. Submissions are never retried.
func (p *Pipeline) Submit(ctx context.Context, m *Model) (*SubmitResult, error) {
	hash, err := m.Tx.Hash(p.networkID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash transaction")
	}

	envelope := ledgerxdr.Envelope{
		Tx:         m.Tx,
		Signatures: []ledgerxdr.DecoratedSignature{p.signer.Sign(hash)},
	}
	encoded, err := envelope.Base64()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope")
	}

	localHash := hex.EncodeToString(hash[:])
	p.l.Info("submitting transaction", zap.String("hash", localHash), zap.Int("operations", len(m.Tx.Operations)))

	res, err := p.api.SubmitTransaction(ctx, encoded)
	if err != nil {
		return nil, err
	}

	out := &SubmitResult{Hash: res.Hash, ResultXDR: res.ResultXDR, MetaXDR: res.MetaXDR}
	if out.Hash == "" {
		out.Hash = localHash
	}
	return out, nil
}
