package txbuilder

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ledgerwallet/internal/amount"
	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/ledgerxdr"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
)

// PaymentRequest payment from one of the wallet balances to another account.
type PaymentRequest struct {
	SourceAccountID      string
	SourceBalanceID      string
	DestinationAccountID string
	Amount               decimal.Decimal
	SenderFee            domain.Fee
	RecipientFee         domain.Fee
	// PayForRecipient makes the sender pay the recipient fee too.
	PayForRecipient bool
	Description     string
	Reference       string
}

// PaymentSender submits single payment transactions.
type PaymentSender struct {
	b *Builder
}

func (b *Builder) PaymentSender() *PaymentSender {
	return &PaymentSender{b: b}
}

// Send fetches the network precision, validates identifiers, converts amounts
// and submits one payment operation. Failures are not retried.
func (p *PaymentSender) Send(ctx context.Context, req PaymentRequest) (*Result, error) {
	s := p.b.newSubmission(domain.SubmissionPayment)

	s.enter(StatePrecisionFetching)
	info, err := p.b.network.NetworkInfo(ctx)
	if err != nil {
		return nil, s.fail(errors.Wrap(err, "failed to fetch network precision"), "")
	}

	s.enter(StateBuilding)
	op, err := paymentOp(req, info.Precision)
	if err != nil {
		return nil, s.fail(err, "")
	}

	res, err := p.b.submit(ctx, s, req.SourceAccountID, []ledgerxdr.Operation{op})
	if err != nil {
		return nil, err
	}

	s.succeed(res.Hash, nil)
	return &Result{SubmissionID: s.id, Hash: res.Hash}, nil
}

func paymentOp(req PaymentRequest, precision int32) (ledgerxdr.PaymentOp, error) {
	if _, err := decodeKey(strkey.VersionByteAccountID, req.SourceAccountID, ErrInvalidSourceAccount); err != nil {
		return ledgerxdr.PaymentOp{}, err
	}
	sourceBalance, err := decodeKey(strkey.VersionByteBalanceID, req.SourceBalanceID, ErrInvalidSourceBalance)
	if err != nil {
		return ledgerxdr.PaymentOp{}, err
	}
	destination, err := decodeKey(strkey.VersionByteAccountID, req.DestinationAccountID, ErrInvalidDestinationAccount)
	if err != nil {
		return ledgerxdr.PaymentOp{}, err
	}

	if !req.Amount.IsPositive() {
		return ledgerxdr.PaymentOp{}, errors.Wrapf(ErrInvalidAmount, "amount %s must be positive", req.Amount)
	}

	op := ledgerxdr.PaymentOp{
		SourceBalanceID: sourceBalance,
		Destination: ledgerxdr.PaymentDestination{
			Type:      ledgerxdr.PaymentDestinationAccount,
			AccountID: destination,
		},
		FeeData:   ledgerxdr.PaymentFeeData{SourcePaysForDest: req.PayForRecipient},
		Subject:   req.Description,
		Reference: req.Reference,
	}

	values := []struct {
		name  string
		value decimal.Decimal
		out   *uint64
	}{
		{"amount", req.Amount, &op.Amount},
		{"sender fixed fee", req.SenderFee.Fixed, &op.FeeData.SourceFee.Fixed},
		{"sender percent fee", req.SenderFee.Percent, &op.FeeData.SourceFee.Percent},
		{"recipient fixed fee", req.RecipientFee.Fixed, &op.FeeData.DestinationFee.Fixed},
		{"recipient percent fee", req.RecipientFee.Percent, &op.FeeData.DestinationFee.Percent},
	}
	for _, v := range values {
		fixed, err := amount.ToFixedUnsigned(v.value, precision)
		if err != nil {
			return ledgerxdr.PaymentOp{}, errors.Wrapf(ErrInvalidAmount, "%s: %v", v.name, err)
		}
		*v.out = fixed
	}

	return op, nil
}
