package shared_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestLineTotalsAgreeWithHeader(t *testing.T) {
	lines := []shared.LineAmount{
		{Quantity: d("1"), UnitPrice: d("10"), Discount: d("0.005"), Tax: decimal.Zero},
		{Quantity: d("3"), UnitPrice: d("2.50"), Discount: d("0.005"), Tax: d("0.004")},
		{Quantity: d("2"), UnitPrice: d("4.125"), Discount: decimal.Zero, Tax: d("0.015")},
	}

	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	totals := shared.SumLines(lines)
	assert.True(t, sum.Equal(totals.Total), "lines %s, header %s", sum, totals.Total)
	assert.True(t, lines[0].Total().Equal(d("9.99")), "got %s", lines[0].Total())
	assert.True(t, totals.Total.Equal(totals.Subtotal.Sub(totals.Discount).Add(totals.Tax)))
}

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		total, paid string
		want        shared.PaymentStatus
	}{
		{"100", "0", shared.PaymentUnpaid},
		{"100", "40", shared.PaymentPartiallyPaid},
		{"100", "100", shared.PaymentPaid},
		{"100", "120", shared.PaymentOverpaid},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, shared.DerivePaymentStatus(d(tc.total), d(tc.paid)), "%s/%s", tc.total, tc.paid)
	}
	assert.True(t, shared.Balance(d("100"), d("120")).Equal(d("-20")))
}
