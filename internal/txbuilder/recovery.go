package txbuilder

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/ledgerxdr"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
)

const (
	defaultSignerWeight   = 1000
	defaultSignerIdentity = 1
)

// RecoveryRequest asks to replace the signers of TargetAccountID with NewSigner.
type RecoveryRequest struct {
	SourceAccountID string
	TargetAccountID string
	// NewSigner G... encoded public key of the signer to install.
	NewSigner      string
	SignerRoleID   uint64
	CreatorDetails map[string]any
}

// RecoveryRequester submits KYC recovery requests.
type RecoveryRequester struct {
	b *Builder
}

func (b *Builder) RecoveryRequester() *RecoveryRequester {
	return &RecoveryRequester{b: b}
}

// Request submits a single create-KYC-recovery-request operation.
func (r *RecoveryRequester) Request(ctx context.Context, req RecoveryRequest) (*Result, error) {
	s := r.b.newSubmission(domain.SubmissionKYCRecovery)

	s.enter(StateBuilding)
	op, err := recoveryOp(req)
	if err != nil {
		return nil, s.fail(err, "")
	}

	res, err := r.b.submit(ctx, s, req.SourceAccountID, []ledgerxdr.Operation{op})
	if err != nil {
		return nil, err
	}

	s.succeed(res.Hash, nil)
	return &Result{SubmissionID: s.id, Hash: res.Hash}, nil
}

func recoveryOp(req RecoveryRequest) (ledgerxdr.CreateKYCRecoveryRequestOp, error) {
	if _, err := decodeKey(strkey.VersionByteAccountID, req.SourceAccountID, ErrInvalidSourceAccount); err != nil {
		return ledgerxdr.CreateKYCRecoveryRequestOp{}, err
	}
	target, err := decodeKey(strkey.VersionByteAccountID, req.TargetAccountID, ErrInvalidDestinationAccount)
	if err != nil {
		return ledgerxdr.CreateKYCRecoveryRequestOp{}, err
	}
	signer, err := decodeKey(strkey.VersionByteAccountID, req.NewSigner, ErrInvalidSignerKey)
	if err != nil {
		return ledgerxdr.CreateKYCRecoveryRequestOp{}, err
	}

	details := req.CreatorDetails
	if details == nil {
		details = map[string]any{}
	}
	creatorDetails, err := json.Marshal(details)
	if err != nil {
		return ledgerxdr.CreateKYCRecoveryRequestOp{}, errors.Wrap(err, "failed to marshal creator details")
	}

	return ledgerxdr.CreateKYCRecoveryRequestOp{
		TargetAccount: target,
		Signers: []ledgerxdr.SignerData{{
			PublicKey: signer,
			RoleID:    req.SignerRoleID,
			Weight:    defaultSignerWeight,
			Identity:  defaultSignerIdentity,
			Details:   "{}",
		}},
		CreatorDetails: string(creatorDetails),
	}, nil
}
