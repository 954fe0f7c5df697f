package suppliers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/testing/memstore"
)

func TestSupplierCreateAndUpdate(t *testing.T) {
	svc := suppliers.NewService(memstore.New(), nil)
	ctx := context.Background()

	s, err := svc.Create(ctx, suppliers.SupplierInput{Code: "ACME", Name: "Acme Metals", Email: "ap@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, suppliers.StatusActive, s.Status)

	s, err = svc.Update(ctx, s.ID, suppliers.SupplierInput{Code: "ACME", Name: "Acme Metals Ltd"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Metals Ltd", s.Name)

	_, err = svc.Create(ctx, suppliers.SupplierInput{Code: "ACME", Name: "Copycat"})
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Update(ctx, 404, suppliers.SupplierInput{Code: "X", Name: "Ghost"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSupplierInputValidation(t *testing.T) {
	svc := suppliers.NewService(memstore.New(), nil)

	for name, in := range map[string]suppliers.SupplierInput{
		"blank code": {Code: "   ", Name: "Spaces"},
		"no name":    {Code: "N-1"},
		"bad email":  {Code: "E-1", Name: "Mail", Email: "nope"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestSupplierSetStatus(t *testing.T) {
	store := memstore.New()
	svc := suppliers.NewService(store, nil)
	ctx := context.Background()
	id := store.SeedSupplier("S-1")

	s, err := svc.SetStatus(ctx, id, suppliers.StatusBlocked)
	require.NoError(t, err)
	assert.ErrorIs(t, s.EnsureActive(), shared.ErrBlockedCounterparty)

	_, err = svc.SetStatus(ctx, id, suppliers.Status("archived"))
	assert.ErrorIs(t, err, shared.ErrValidation)

	blocked, total, err := svc.List(ctx, suppliers.ListFilters{Status: suppliers.StatusBlocked})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, id, blocked[0].ID)
}
