package ledgerxdr

import (
	"encoding/base64"

	"github.com/pkg/errors"
)

// EntryType ledger entry discriminant.
type EntryType int32

const (
	EntryTypeAccount EntryType = 2
	EntryTypeBalance EntryType = 4
	EntryTypeAsset   EntryType = 5
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeAccount:
		return "account"
	case EntryTypeBalance:
		return "balance"
	case EntryTypeAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// ChangeKind kind of a ledger entry change.
type ChangeKind int32

const (
	ChangeCreated ChangeKind = 0
	ChangeUpdated ChangeKind = 1
	ChangeRemoved ChangeKind = 2
	ChangeState   ChangeKind = 3
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	case ChangeState:
		return "state"
	default:
		return "unknown"
	}
}

// Key raw 32 byte ed25519 public key or balance identifier.
type Key [32]byte

type AccountEntry struct {
	AccountID    Key
	RoleID       uint64
	SequentialID uint32
}

type BalanceEntry struct {
	BalanceID    Key
	Asset        string
	AccountID    Key
	Amount       uint64
	Locked       uint64
	SequentialID uint64
}

type AssetEntry struct {
	Code           string
	Owner          Key
	Details        string
	Policies       uint32
	MaxIssuance    uint64
	Issued         uint64
	TrailingDigits uint32
}

// LedgerEntry tagged union, exactly one of the pointers matching Type is set.
type LedgerEntry struct {
	LastModifiedLedgerSeq uint32
	Type                  EntryType
	Account               *AccountEntry
	Balance               *BalanceEntry
	Asset                 *AssetEntry
}

// LedgerKey identifies a removed entry.
type LedgerKey struct {
	Type      EntryType
	AccountID Key
	BalanceID Key
	AssetCode string
}

// LedgerEntryChange Entry is set for every kind except removed, which carries RemovedKey.
type LedgerEntryChange struct {
	Kind       ChangeKind
	Entry      *LedgerEntry
	RemovedKey *LedgerKey
}

type OperationMeta struct {
	Changes []LedgerEntryChange
}

// TransactionMeta change-set produced by applying a transaction.
// Version 0 carries operations only, version 1 also carries
// transaction level changes applied before the operations.
type TransactionMeta struct {
	Version    int32
	TxChanges  []LedgerEntryChange
	Operations []OperationMeta
}

// Changes returns the changes of all operations in application order.
func (m TransactionMeta) Changes() []LedgerEntryChange {
	var out []LedgerEntryChange
	for _, op := range m.Operations {
		out = append(out, op.Changes...)
	}
	return out
}

// DecodeMeta decodes base64 encoded transaction metadata.
func DecodeMeta(encoded string) (TransactionMeta, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return TransactionMeta{}, err
	}
	return UnmarshalMeta(raw)
}

// UnmarshalMeta decodes raw XDR transaction metadata.
func UnmarshalMeta(raw []byte) (TransactionMeta, error) {
	var m TransactionMeta
	err := unmarshal(raw, func(r *reader) {
		m.Version = r.int32()
		if r.err != nil {
			return
		}
		switch m.Version {
		case 0:
		case 1:
			m.TxChanges = readChanges(r)
		default:
			r.fail(errors.Wrapf(ErrUnsupportedMetaVersion, "%d", m.Version))
			return
		}

		n := r.length()
		for i := 0; i < n && r.err == nil; i++ {
			m.Operations = append(m.Operations, OperationMeta{Changes: readChanges(r)})
		}
	})
	if err != nil {
		return TransactionMeta{}, errors.Wrap(err, "failed to decode transaction meta")
	}
	return m, nil
}

// EncodeMeta is the inverse of DecodeMeta.
func EncodeMeta(m TransactionMeta) (string, error) {
	raw, err := MarshalMeta(m)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// MarshalMeta encodes m as XDR.
func MarshalMeta(m TransactionMeta) ([]byte, error) {
	switch m.Version {
	case 0, 1:
	default:
		return nil, errors.Wrapf(ErrUnsupportedMetaVersion, "%d", m.Version)
	}

	return marshal(func(w *writer) {
		w.int32(m.Version)
		if m.Version == 1 {
			writeChanges(w, m.TxChanges)
		}
		w.length(len(m.Operations))
		for _, op := range m.Operations {
			writeChanges(w, op.Changes)
		}
	})
}

func readChanges(r *reader) []LedgerEntryChange {
	n := r.length()
	changes := make([]LedgerEntryChange, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		c := LedgerEntryChange{Kind: ChangeKind(r.int32())}
		if r.err != nil {
			break
		}
		switch c.Kind {
		case ChangeCreated, ChangeUpdated, ChangeState:
			c.Entry = readEntry(r)
		case ChangeRemoved:
			c.RemovedKey = readLedgerKey(r)
		default:
			r.fail(errors.Wrapf(ErrUnknownChangeKind, "%d", c.Kind))
		}
		changes = append(changes, c)
	}
	return changes
}

func writeChanges(w *writer, changes []LedgerEntryChange) {
	w.length(len(changes))
	for _, c := range changes {
		w.int32(int32(c.Kind))
		switch c.Kind {
		case ChangeCreated, ChangeUpdated, ChangeState:
			if c.Entry == nil {
				w.fail(errors.Errorf("%s change without entry", c.Kind))
				return
			}
			writeEntry(w, c.Entry)
		case ChangeRemoved:
			if c.RemovedKey == nil {
				w.fail(errors.New("removed change without key"))
				return
			}
			writeLedgerKey(w, c.RemovedKey)
		default:
			w.fail(errors.Wrapf(ErrUnknownChangeKind, "%d", c.Kind))
		}
	}
}

func readEntry(r *reader) *LedgerEntry {
	e := &LedgerEntry{
		LastModifiedLedgerSeq: r.uint32(),
		Type:                  EntryType(r.int32()),
	}
	if r.err != nil {
		return nil
	}

	switch e.Type {
	case EntryTypeAccount:
		e.Account = &AccountEntry{
			AccountID:    readPublicKey(r),
			RoleID:       r.uint64(),
			SequentialID: r.uint32(),
		}
		r.emptyExt()
	case EntryTypeBalance:
		e.Balance = &BalanceEntry{
			BalanceID:    readPublicKey(r),
			Asset:        r.string(16),
			AccountID:    readPublicKey(r),
			Amount:       r.uint64(),
			Locked:       r.uint64(),
			SequentialID: r.uint64(),
		}
		r.emptyExt()
	case EntryTypeAsset:
		e.Asset = &AssetEntry{
			Code:           r.string(16),
			Owner:          readPublicKey(r),
			Details:        r.string(maxString),
			Policies:       r.uint32(),
			MaxIssuance:    r.uint64(),
			Issued:         r.uint64(),
			TrailingDigits: r.uint32(),
		}
		r.emptyExt()
	default:
		// union arms are not length prefixed, the rest of the stream cannot be delimited
		r.fail(errors.Wrapf(ErrUnknownEntryType, "%d", e.Type))
		return nil
	}

	// entry extension
	r.emptyExt()
	return e
}

func writeEntry(w *writer, e *LedgerEntry) {
	w.uint32(e.LastModifiedLedgerSeq)
	w.int32(int32(e.Type))

	switch {
	case e.Type == EntryTypeAccount && e.Account != nil:
		writePublicKey(w, e.Account.AccountID)
		w.uint64(e.Account.RoleID)
		w.uint32(e.Account.SequentialID)
	case e.Type == EntryTypeBalance && e.Balance != nil:
		writePublicKey(w, e.Balance.BalanceID)
		w.string(e.Balance.Asset)
		writePublicKey(w, e.Balance.AccountID)
		w.uint64(e.Balance.Amount)
		w.uint64(e.Balance.Locked)
		w.uint64(e.Balance.SequentialID)
	case e.Type == EntryTypeAsset && e.Asset != nil:
		w.string(e.Asset.Code)
		writePublicKey(w, e.Asset.Owner)
		w.string(e.Asset.Details)
		w.uint32(e.Asset.Policies)
		w.uint64(e.Asset.MaxIssuance)
		w.uint64(e.Asset.Issued)
		w.uint32(e.Asset.TrailingDigits)
	default:
		w.fail(errors.Wrapf(ErrUnknownEntryType, "%d", e.Type))
		return
	}

	w.emptyExt()
	w.emptyExt()
}

func readLedgerKey(r *reader) *LedgerKey {
	k := &LedgerKey{Type: EntryType(r.int32())}
	if r.err != nil {
		return nil
	}
	switch k.Type {
	case EntryTypeAccount:
		k.AccountID = readPublicKey(r)
	case EntryTypeBalance:
		k.BalanceID = readPublicKey(r)
	case EntryTypeAsset:
		k.AssetCode = r.string(16)
	default:
		r.fail(errors.Wrapf(ErrUnknownEntryType, "%d", k.Type))
		return nil
	}
	r.emptyExt()
	return k
}

func writeLedgerKey(w *writer, k *LedgerKey) {
	w.int32(int32(k.Type))
	switch k.Type {
	case EntryTypeAccount:
		writePublicKey(w, k.AccountID)
	case EntryTypeBalance:
		writePublicKey(w, k.BalanceID)
	case EntryTypeAsset:
		w.string(k.AssetCode)
	default:
		w.fail(errors.Wrapf(ErrUnknownEntryType, "%d", k.Type))
		return
	}
	w.emptyExt()
}

// public keys and balance ids share the ed25519 union layout
const keyTypeEd25519 int32 = 0

func readPublicKey(r *reader) Key {
	if t := r.int32(); r.err == nil && t != keyTypeEd25519 {
		r.fail(errors.Errorf("unsupported key type %d", t))
		return Key{}
	}
	return r.key()
}

func writePublicKey(w *writer, k Key) {
	w.int32(keyTypeEd25519)
	w.key(k)
}
