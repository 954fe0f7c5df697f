package products

import (
	"context"
	"slices"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Finder resolves catalog entries by id.
type Finder interface {
	FindProductsByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

// Lookup resolves every id in ids. Any id the catalog does not return is a hard
// failure; inactive products cannot be put on new lines.
func Lookup(ctx context.Context, f Finder, ids []int64) (map[int64]Product, error) {
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)
	if len(unique) == 0 {
		return map[int64]Product{}, nil
	}

	found, err := f.FindProductsByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	if len(byID) != len(unique) {
		var missing []int64
		for _, id := range unique {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, &shared.NotFoundError{Entity: "product", ID: missing, Message: "Some products not found"}
	}
	for _, id := range unique {
		if !byID[id].IsActive {
			return nil, shared.Invalid("product %d is inactive", id)
		}
	}
	return byID, nil
}
