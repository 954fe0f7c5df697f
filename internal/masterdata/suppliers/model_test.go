package suppliers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestEnsureActive(t *testing.T) {
	assert.NoError(t, (&Supplier{ID: 1, Status: StatusActive}).EnsureActive())
	assert.ErrorIs(t, (&Supplier{ID: 1, Status: StatusInactive}).EnsureActive(), shared.ErrBlockedCounterparty)
	assert.ErrorIs(t, (&Supplier{ID: 1, Status: StatusBlocked}).EnsureActive(), shared.ErrBlockedCounterparty)
}
