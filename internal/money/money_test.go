package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentCommissionOnTotalBeforeDiscount(t *testing.T) {
	total := FromMajor(decimal.RequireFromString("249.00"))
	discount := FromMajor(decimal.RequireFromString("24.90"))

	assert.Equal(t, int64(41_09), Percent(total+discount, decimal.NewFromInt(15)))
}

func TestPercentRoundsHalfUp(t *testing.T) {
	cases := []struct {
		name    string
		amount  int64
		percent string
		want    int64
	}{
		{"exact", 10000, "10", 1000},
		{"half rounds up", 50, "1", 1},
		{"below half rounds down", 49, "1", 0},
		{"fractional percent", 1999, "12.5", 250},
		{"zero percent", 1999, "0", 0},
		{"zero amount", 0, "15", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Percent(tc.amount, decimal.RequireFromString(tc.percent)))
		})
	}
}

func TestDiscountNeverExceedsTotal(t *testing.T) {
	discount, net := Discount(2490, decimal.NewFromInt(10))
	assert.Equal(t, int64(249), discount)
	assert.Equal(t, int64(2241), net)

	discount, net = Discount(100, decimal.NewFromInt(100))
	assert.Equal(t, int64(100), discount)
	assert.Equal(t, int64(0), net)
}

func TestParseAndFormat(t *testing.T) {
	amount, err := ParseMajor("41.09")
	require.NoError(t, err)
	assert.Equal(t, int64(4109), amount)
	assert.Equal(t, "41.09 EUR", FormatMinor(amount, "eur"))
	assert.Equal(t, "60.00", FormatMinor(6000, ""))

	_, err = ParseMajor("-1")
	assert.ErrorIs(t, err, ErrNegativeAmount)
	_, err = ParseMajor("abc")
	assert.Error(t, err)
}

func TestValidatePercent(t *testing.T) {
	assert.NoError(t, ValidatePercent(decimal.NewFromInt(15)))
	assert.ErrorIs(t, ValidatePercent(decimal.NewFromInt(101)), ErrInvalidPercent)
	assert.ErrorIs(t, ValidatePercent(decimal.NewFromInt(-1)), ErrInvalidPercent)
}

func TestNormalizeCurrency(t *testing.T) {
	currency, err := NormalizeCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", currency)

	_, err = NormalizeCurrency("EURO")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestSum(t *testing.T) {
	assert.Equal(t, int64(6000), Sum(1000, 2000, 3000))
	assert.Equal(t, int64(0), Sum())
}
