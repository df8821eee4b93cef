package domain

import "github.com/shopspring/decimal"

// FeeType ledger fee type.
type FeeType int32

// FeeTypePayment fee charged for payments.
const FeeTypePayment FeeType = 2

// FeeSubtype direction of a payment fee.
type FeeSubtype int64

const (
	FeeSubtypeOutgoing FeeSubtype = 1
	FeeSubtypeIncoming FeeSubtype = 2
)

// String returns the string representation.
func (s FeeSubtype) String() string {
	switch s {
	case FeeSubtypeOutgoing:
		return "outgoing"
	case FeeSubtypeIncoming:
		return "incoming"
	default:
		return "unknown"
	}
}

// Fee fixed plus percent fee amounts, both expressed in asset units.
type Fee struct {
	Fixed   decimal.Decimal
	Percent decimal.Decimal
}

// Total returns fixed plus percent fee.
func (f Fee) Total() decimal.Decimal {
	return f.Fixed.Add(f.Percent)
}

// Fees sender and recipient side fees of one payment.
type Fees struct {
	Sender    Fee
	Recipient Fee
}

// FeeRequest parameters of a single fee calculation.
type FeeRequest struct {
	AccountID string
	AssetCode string
	Amount    decimal.Decimal
	Type      FeeType
	Subtype   FeeSubtype
}
