package ledgerxdr

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

const (
	// MaxOperations per transaction.
	MaxOperations = 100
	maxMemoText   = 28

	envelopeTypeTx int32 = 2
	memoTypeNone   int32 = 0
	memoTypeText   int32 = 1
)

var (
	ErrNoOperations       = errors.New("transaction has no operations")
	ErrTooManyOperations  = errors.New("too many operations")
	errUnknownDestination = errors.New("unknown payment destination type")
)

type TimeBounds struct {
	MinTime uint64
	MaxTime uint64
}

// Transaction unsigned transaction body.
type Transaction struct {
	SourceAccount Key
	Salt          uint64
	TimeBounds    TimeBounds
	Memo          string
	Operations    []Operation
}

// MarshalBinary encodes the transaction as XDR.
func (tx Transaction) MarshalBinary() ([]byte, error) {
	if err := tx.validate(); err != nil {
		return nil, err
	}
	return marshal(tx.encode)
}

func (tx Transaction) validate() error {
	if len(tx.Operations) == 0 {
		return ErrNoOperations
	}
	if len(tx.Operations) > MaxOperations {
		return errors.Wrapf(ErrTooManyOperations, "%d > %d", len(tx.Operations), MaxOperations)
	}
	if len(tx.Memo) > maxMemoText {
		return errors.Errorf("memo longer than %d bytes", maxMemoText)
	}
	return nil
}

func (tx Transaction) encode(w *writer) {
	writePublicKey(w, tx.SourceAccount)
	w.uint64(tx.Salt)
	w.uint64(tx.TimeBounds.MinTime)
	w.uint64(tx.TimeBounds.MaxTime)
	if tx.Memo == "" {
		w.int32(memoTypeNone)
	} else {
		w.int32(memoTypeText)
		w.string(tx.Memo)
	}
	w.length(len(tx.Operations))
	for _, op := range tx.Operations {
		// no per-operation source account
		w.bool(false)
		w.int32(int32(op.Type()))
		op.encode(w)
	}
	w.emptyExt()
}

// NetworkID identifies the network a transaction is signed for.
func NetworkID(passphrase string) [32]byte {
	return sha256.Sum256([]byte(passphrase))
}

// Hash returns the transaction hash signed by the source account.
func (tx Transaction) Hash(networkID [32]byte) ([32]byte, error) {
	if err := tx.validate(); err != nil {
		return [32]byte{}, err
	}
	payload, err := marshal(func(w *writer) {
		w.key(networkID)
		w.int32(envelopeTypeTx)
		tx.encode(w)
	})
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "failed to encode signature payload")
	}
	return sha256.Sum256(payload), nil
}

// DecoratedSignature signature with the last four bytes of the signer key as hint.
type DecoratedSignature struct {
	Hint      [4]byte
	Signature []byte
}

// SignatureHint returns the hint of a public key.
func SignatureHint(publicKey Key) (hint [4]byte) {
	copy(hint[:], publicKey[len(publicKey)-4:])
	return hint
}

// Envelope signed transaction.
type Envelope struct {
	Tx         Transaction
	Signatures []DecoratedSignature
}

// MarshalBinary encodes the envelope as XDR.
func (e Envelope) MarshalBinary() ([]byte, error) {
	if err := e.Tx.validate(); err != nil {
		return nil, err
	}
	return marshal(func(w *writer) {
		e.Tx.encode(w)
		w.length(len(e.Signatures))
		for _, s := range e.Signatures {
			w.fixed(s.Hint[:])
			w.opaque(s.Signature)
		}
	})
}

// Base64 returns the envelope in the form accepted by the submission endpoint.
func (e Envelope) Base64() (string, error) {
	raw, err := e.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
