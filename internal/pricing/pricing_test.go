package pricing

import (
	"testing"

	"github.com/ariefcatur/go-realtime-market/internal/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformFee(t *testing.T) {
	cases := []struct {
		amount, fee, seller string
	}{
		{"100.00", "5.00", "95.00"},
		{"10.00", "1.00", "9.00"},
		{"20.00", "1.00", "19.00"},
		{"20.10", "1.01", "19.09"},
		{"33.33", "1.67", "31.66"},
		{"0.50", "0.50", "0"},
		{"0", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.amount, func(t *testing.T) {
			s := PlatformFee(money.MustParse(tc.amount))
			assert.True(t, s.Fee.Equal(money.MustParse(tc.fee)), "fee=%s", s.Fee)
			assert.True(t, s.SellerAmount.Equal(money.MustParse(tc.seller)), "seller=%s", s.SellerAmount)
			assert.True(t, s.Fee.Add(s.SellerAmount).Equal(s.Amount))
		})
	}
}

func TestPlatformFee_SumAlwaysMatches(t *testing.T) {
	for cents := int64(1); cents < 50000; cents += 37 {
		amount := decimal.New(cents, -2)
		s := PlatformFee(amount)
		require.True(t, s.Fee.Add(s.SellerAmount).Equal(amount), "amount=%s", amount)
		require.True(t, s.SellerAmount.Sign() >= 0, "amount=%s", amount)
		require.True(t, money.HasCents(s.Fee), "amount=%s", amount)
	}
}

func TestOrderTotals(t *testing.T) {
	lines := []Line{
		{UnitPrice: money.MustParse("19.99"), Quantity: 2},
		{UnitPrice: money.MustParse("5.00"), Quantity: 1},
	}
	totals, err := OrderTotals(lines, money.MustParse("3.50"), money.MustParse("7.25"))
	require.NoError(t, err)
	assert.Equal(t, "44.98", totals.TotalAmount.StringFixed(2))
	assert.Equal(t, "55.73", totals.FinalAmount.StringFixed(2))
}

func TestTotalsCheck(t *testing.T) {
	bad := Totals{
		TotalAmount:    money.MustParse("10"),
		TaxAmount:      money.MustParse("1"),
		ShippingAmount: money.MustParse("1"),
		FinalAmount:    money.MustParse("13"),
	}
	assert.Error(t, bad.Check())
}
