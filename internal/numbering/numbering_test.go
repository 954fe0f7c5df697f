package numbering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	at := time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "SAL-202603-0001", Format(PrefixSale, at, 1))
	assert.Equal(t, "PAY-202603-12345", Format(PrefixPayment, at, 12345))
}

func TestPeriodUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	at := time.Date(2026, time.April, 1, 3, 0, 0, 0, loc)
	assert.Equal(t, "202603", Period(at))
}
