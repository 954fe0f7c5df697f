// Package credit derives customer credit standing and records every credit
// movement in the customer's credit history.
package credit

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/sales/customers"
)

var (
	blockedThreshold = decimal.NewFromInt(90)
	warningThreshold = decimal.NewFromInt(75)
	hundred          = decimal.NewFromInt(100)
)

// DeriveCreditStatus maps limit, used credit, and overdue amount to a status.
// Any overdue amount blocks; otherwise utilization of at least 90% blocks and
// at least 75% warns. A zero limit means no credit line and is always good.
func DeriveCreditStatus(creditLimit, usedCredit, overdueAmount decimal.Decimal) customers.CreditStatus {
	if overdueAmount.IsPositive() {
		return customers.CreditBlocked
	}
	if creditLimit.IsPositive() {
		utilization := Utilization(creditLimit, usedCredit)
		switch {
		case utilization.GreaterThanOrEqual(blockedThreshold):
			return customers.CreditBlocked
		case utilization.GreaterThanOrEqual(warningThreshold):
			return customers.CreditWarning
		}
	}
	return customers.CreditGood
}

// Utilization is used credit as a percentage of the limit. It is zero when the
// limit is not positive.
func Utilization(creditLimit, usedCredit decimal.Decimal) decimal.Decimal {
	if !creditLimit.IsPositive() {
		return decimal.Zero
	}
	return usedCredit.Div(creditLimit).Mul(hundred)
}

// AvailableCredit is max(0, limit - used).
func AvailableCredit(creditLimit, usedCredit decimal.Decimal) decimal.Decimal {
	available := creditLimit.Sub(usedCredit)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// settle recomputes the derived fields of c. A manually blocked customer keeps
// a blocked credit status until unblocked.
func settle(c *customers.Customer) {
	c.AvailableCredit = AvailableCredit(c.CreditLimit, c.UsedCredit)
	if c.Status == customers.StatusBlocked {
		c.CreditStatus = customers.CreditBlocked
		return
	}
	c.CreditStatus = DeriveCreditStatus(c.CreditLimit, c.UsedCredit, c.OverdueAmount)
}
