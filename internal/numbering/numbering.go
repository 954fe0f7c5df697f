// Package numbering issues human-readable document numbers of the form
// PREFIX-YYYYMM-NNNN from a per-prefix, per-month counter row.
package numbering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Document prefixes.
const (
	PrefixSale      = "SAL"
	PrefixPurchase  = "PUR"
	PrefixQuotation = "QUO"
	PrefixPayment   = "PAY"
)

// Period returns the counter period key for at.
func Period(at time.Time) string {
	return at.UTC().Format("200601")
}

// Format renders a document number.
func Format(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, Period(at), seq)
}

// Counter claims numbers inside the caller's transaction. The counter row stays
// locked until commit, so concurrent creators in the same period queue behind
// each other instead of computing the same number.
type Counter struct {
	db db.DBTX
}

// NewCounter binds the counter to a connection or transaction.
func NewCounter(q db.DBTX) *Counter {
	return &Counter{db: q}
}

// NextNumber returns the next unused number for prefix in the month of at.
func (c *Counter) NextNumber(ctx context.Context, prefix string, at time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", shared.Invalid("number prefix required")
	}
	var seq int64
	err := c.db.QueryRow(ctx, `
		INSERT INTO number_sequences (prefix, period, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, period) DO UPDATE SET last_value = number_sequences.last_value + 1
		RETURNING last_value`, prefix, Period(at)).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("numbering: next %s: %w", prefix, err)
	}
	return Format(prefix, at, seq), nil
}
