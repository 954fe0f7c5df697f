package shared

import "github.com/shopspring/decimal"

// PaymentStatus is derived from an order's total and paid amounts.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentOverpaid      PaymentStatus = "overpaid"
)

// IsSettled reports whether nothing remains owed.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentPaid || s == PaymentOverpaid
}

// DerivePaymentStatus maps the paid/total pair to a payment status.
func DerivePaymentStatus(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentUnpaid
	case paid.LessThan(total):
		return PaymentPartiallyPaid
	case paid.Equal(total):
		return PaymentPaid
	default:
		return PaymentOverpaid
	}
}

// RoundMoney rounds to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Totals holds the header amounts of an order.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount_amount"`
	Tax      decimal.Decimal `json:"tax_amount"`
	Total    decimal.Decimal `json:"total_amount"`
}

// LineAmount describes one priced line.
type LineAmount struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
}

// Gross is quantity times unit price.
func (l LineAmount) Gross() decimal.Decimal {
	return RoundMoney(l.Quantity.Mul(l.UnitPrice))
}

// Total is gross minus discount plus tax, each rounded to cents as SumLines
// rounds them.
func (l LineAmount) Total() decimal.Decimal {
	return l.Gross().Sub(RoundMoney(l.Discount)).Add(RoundMoney(l.Tax))
}

// Validate rejects negative amounts and discounts larger than the line.
func (l LineAmount) Validate() error {
	if !l.Quantity.IsPositive() {
		return Invalid("quantity must be greater than zero")
	}
	if l.UnitPrice.IsNegative() || l.Discount.IsNegative() || l.Tax.IsNegative() {
		return Invalid("line amounts must not be negative")
	}
	if l.Discount.GreaterThan(l.Gross()) {
		return Invalid("discount %s exceeds line amount %s", l.Discount.StringFixed(2), l.Gross().StringFixed(2))
	}
	return nil
}

// SumLines accumulates header totals so that Total = Subtotal - Discount + Tax.
func SumLines(lines []LineAmount) Totals {
	t := Totals{Subtotal: decimal.Zero, Discount: decimal.Zero, Tax: decimal.Zero}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Gross())
		t.Discount = t.Discount.Add(RoundMoney(l.Discount))
		t.Tax = t.Tax.Add(RoundMoney(l.Tax))
	}
	t.Total = t.Subtotal.Sub(t.Discount).Add(t.Tax)
	return t
}

// Balance is total minus paid.
func Balance(total, paid decimal.Decimal) decimal.Decimal {
	return total.Sub(paid)
}
