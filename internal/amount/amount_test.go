package amount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFixed(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		precision int32
		expected  int64
	}{
		{name: "fraction with precision 6", value: "1.5", precision: 6, expected: 1500000},
		{name: "integer with precision 0", value: "7", precision: 0, expected: 7},
		{name: "half rounds up", value: "0.005", precision: 2, expected: 1},
		{name: "below half rounds down", value: "0.0049999", precision: 2, expected: 0},
		{name: "above half rounds up", value: "0.0051", precision: 2, expected: 1},
		{name: "precision 0 half", value: "2.5", precision: 0, expected: 3},
		{name: "negative half rounds away from zero", value: "-0.005", precision: 2, expected: -1},
		{name: "negative below half", value: "-1.234", precision: 2, expected: -123},
		{name: "zero", value: "0", precision: 6, expected: 0},
		{name: "exact", value: "123.456789", precision: 6, expected: 123456789},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToFixed(decimal.RequireFromString(tt.value), tt.precision)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToFixed_IsDeterministic(t *testing.T) {
	v := decimal.RequireFromString("0.1234565")
	first, err := ToFixed(v, 6)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		got, err := ToFixed(v, 6)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, int64(123457), first)
}

func TestToFixed_Errors(t *testing.T) {
	_, err := ToFixed(decimal.NewFromInt(1), -1)
	assert.ErrorIs(t, err, ErrInvalidPrecision)

	_, err = ToFixed(decimal.NewFromInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)

	_, err = ToFixed(decimal.RequireFromString("92233720368548"), 6)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestToFixedUnsigned(t *testing.T) {
	got, err := ToFixedUnsigned(decimal.RequireFromString("2.000001"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000001), got)

	_, err = ToFixedUnsigned(decimal.RequireFromString("-1"), 6)
	assert.ErrorIs(t, err, ErrNegative)
}

func TestFromFixed(t *testing.T) {
	assert.True(t, FromFixed(1500000, 6).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, FromFixed(7, 0).Equal(decimal.NewFromInt(7)))
}
