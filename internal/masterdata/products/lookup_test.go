package products

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type finderFunc func(ctx context.Context, ids []int64) ([]Product, error)

func (f finderFunc) FindProductsByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	return f(ctx, ids)
}

func catalog(products ...Product) Finder {
	return finderFunc(func(_ context.Context, ids []int64) ([]Product, error) {
		var out []Product
		for _, p := range products {
			for _, id := range ids {
				if p.ID == id {
					out = append(out, p)
				}
			}
		}
		return out, nil
	})
}

func TestLookupDeduplicatesIDs(t *testing.T) {
	var seen []int64
	f := finderFunc(func(_ context.Context, ids []int64) ([]Product, error) {
		seen = ids
		return []Product{{ID: 1, Name: "Widget", IsActive: true}, {ID: 2, Name: "Gadget", IsActive: true}}, nil
	})

	got, err := Lookup(context.Background(), f, []int64{2, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Len(t, got, 2)
	assert.Equal(t, "Gadget", got[2].Name)
}

func TestLookupMissingProducts(t *testing.T) {
	_, err := Lookup(context.Background(), catalog(Product{ID: 1, IsActive: true}), []int64{1, 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, "Some products not found", err.Error())

	var nf *shared.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, []int64{7}, nf.ID)
}

func TestLookupInactiveProduct(t *testing.T) {
	_, err := Lookup(context.Background(), catalog(Product{ID: 1, IsActive: false}), []int64{1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestLookupPropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	f := finderFunc(func(context.Context, []int64) ([]Product, error) { return nil, boom })
	_, err := Lookup(context.Background(), f, []int64{1})
	assert.ErrorIs(t, err, boom)
}

func TestSnapshotCopiesDisplayFields(t *testing.T) {
	p := Product{ID: 3, SKU: "SKU-3", Name: "Bolt", Description: "M6"}
	assert.Equal(t, Snapshot{Name: "Bolt", SKU: "SKU-3", Description: "M6"}, p.Snapshot())
}
