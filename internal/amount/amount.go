// Package amount converts decimal amounts to and from on-chain fixed-point integers.
package amount

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// MaxPrecision upper bound on the network precision; 10^18 is the largest power of ten in int64.
const MaxPrecision int32 = 18

var (
	ErrInvalidPrecision = errors.New("invalid precision")
	ErrOverflow         = errors.New("amount does not fit into 64 bits")
	ErrNegative         = errors.New("negative amount")
)

// ToFixed scales value by 10^precision and rounds half away from zero
// (round-half-up for positive amounts): ToFixed(0.005, 2) == 1.
func ToFixed(value decimal.Decimal, precision int32) (int64, error) {
	if precision < 0 || precision > MaxPrecision {
		return 0, errors.Wrapf(ErrInvalidPrecision, "precision %d", precision)
	}

	scaled := value.Shift(precision).Round(0)
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, errors.Wrapf(ErrOverflow, "%s with precision %d", value.String(), precision)
	}

	return bi.Int64(), nil
}

// ToFixedUnsigned is ToFixed for amounts that must not be negative on chain.
func ToFixedUnsigned(value decimal.Decimal, precision int32) (uint64, error) {
	if value.IsNegative() {
		return 0, errors.Wrap(ErrNegative, value.String())
	}
	v, err := ToFixed(value, precision)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// FromFixed converts an on-chain integer back to a decimal amount.
func FromFixed(v int64, precision int32) decimal.Decimal {
	return decimal.New(v, -precision)
}
