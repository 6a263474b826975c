package pricing

import (
	"fmt"

	"github.com/ariefcatur/go-realtime-market/internal/money"
	"github.com/shopspring/decimal"
)

var (
	// FeeRate is the marketplace cut of a peer-to-peer sale.
	FeeRate = decimal.RequireFromString("0.05")
	// MinimumFee is the floor applied to any sale with a positive amount.
	MinimumFee = decimal.RequireFromString("1.00")
)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l Line) Total() decimal.Decimal { return money.Mul(l.UnitPrice, l.Quantity) }

type Totals struct {
	TotalAmount    decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

// Check verifies final == total + tax + shipping.
func (t Totals) Check() error {
	want := money.Sum(t.TotalAmount, t.TaxAmount, t.ShippingAmount)
	if !t.FinalAmount.Equal(want) {
		return fmt.Errorf("final amount %s != total %s + tax %s + shipping %s",
			t.FinalAmount, t.TotalAmount, t.TaxAmount, t.ShippingAmount)
	}
	return nil
}

// OrderTotals recomputes every amount from the lines; the caller only
// supplies tax and shipping.
func OrderTotals(lines []Line, tax, shipping decimal.Decimal) (Totals, error) {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	t := Totals{
		TotalAmount:    total,
		TaxAmount:      money.Round(tax),
		ShippingAmount: money.Round(shipping),
	}
	t.FinalAmount = money.Sum(t.TotalAmount, t.TaxAmount, t.ShippingAmount)
	return t, t.Check()
}

type Split struct {
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	SellerAmount decimal.Decimal
}

// PlatformFee splits a sale amount into the platform fee and the seller payout.
// The fee never exceeds the amount, so SellerAmount is never negative.
func PlatformFee(amount decimal.Decimal) Split {
	amount = money.Round(amount)
	if amount.Sign() <= 0 {
		return Split{Amount: amount, Fee: decimal.Zero, SellerAmount: amount}
	}
	fee := money.Max(money.Round(amount.Mul(FeeRate)), MinimumFee)
	fee = money.Min(fee, amount)
	return Split{Amount: amount, Fee: fee, SellerAmount: amount.Sub(fee)}
}
