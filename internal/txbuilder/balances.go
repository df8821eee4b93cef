package txbuilder

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/ledgerxdr"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
)

// BalanceCreator creates balances in several assets with one transaction,
// so either all of them are created or none.
type BalanceCreator struct {
	b *Builder
}

func (b *Builder) BalanceCreator() *BalanceCreator {
	return &BalanceCreator{b: b}
}

// Create creates one balance of accountID per asset code and returns the ids
// of the created balances in the order the ledger reports them.
//
// The precision is not needed here, so the submission goes straight from idle
// to building, then submitting and succeeded or failed.
//
// When the transaction is applied but its meta cannot be decoded the error is
// a *ChainSuccessDecodeError matching ErrMetaDecode.
func (c *BalanceCreator) Create(ctx context.Context, accountID string, assetCodes []string) (*Result, error) {
	s := c.b.newSubmission(domain.SubmissionBalanceCreation)

	s.enter(StateBuilding)
	ops, err := manageBalanceOps(accountID, assetCodes)
	if err != nil {
		return nil, s.fail(err, "")
	}

	res, err := c.b.submit(ctx, s, accountID, ops)
	if err != nil {
		return nil, err
	}

	ids, err := createdBalanceIDs(res.MetaXDR)
	if err != nil {
		return nil, s.fail(&ChainSuccessDecodeError{Hash: res.Hash, Err: err}, res.Hash)
	}

	s.succeed(res.Hash, ids)
	return &Result{SubmissionID: s.id, Hash: res.Hash, BalanceIDs: ids}, nil
}

func manageBalanceOps(accountID string, assetCodes []string) ([]ledgerxdr.Operation, error) {
	if len(assetCodes) == 0 {
		return nil, ErrNoAssets
	}
	if len(assetCodes) > ledgerxdr.MaxOperations {
		return nil, errors.Wrapf(ledgerxdr.ErrTooManyOperations, "%d assets", len(assetCodes))
	}

	account, err := decodeKey(strkey.VersionByteAccountID, accountID, ErrInvalidSourceAccount)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(assetCodes))
	ops := make([]ledgerxdr.Operation, 0, len(assetCodes))
	for _, code := range assetCodes {
		if _, ok := seen[code]; ok {
			return nil, errors.Wrap(ErrDuplicateAsset, code)
		}
		seen[code] = struct{}{}

		ops = append(ops, ledgerxdr.ManageBalanceOp{
			Action:      ledgerxdr.ManageBalanceCreateUnique,
			Destination: account,
			Asset:       code,
		})
	}
	return ops, nil
}

// createdBalanceIDs decodes meta and returns the encoded ids of created balance entries.
func createdBalanceIDs(metaXDR string) ([]string, error) {
	meta, err := ledgerxdr.DecodeMeta(metaXDR)
	if err != nil {
		return nil, err
	}

	ids := CreatedBalanceIDs(meta)
	if len(ids) == 0 {
		return nil, ErrNoCreatedBalances
	}
	return ids, nil
}

// CreatedBalanceIDs returns the ids of balances created by the operations of meta.
// Other entry kinds and other change kinds are ignored.
func CreatedBalanceIDs(meta ledgerxdr.TransactionMeta) []string {
	var ids []string
	for _, change := range meta.Changes() {
		if change.Kind != ledgerxdr.ChangeCreated || change.Entry == nil {
			continue
		}
		if change.Entry.Type != ledgerxdr.EntryTypeBalance || change.Entry.Balance == nil {
			continue
		}
		id := change.Entry.Balance.BalanceID
		ids = append(ids, strkey.MustEncode(strkey.VersionByteBalanceID, id[:]))
	}
	return ids
}
