package product

import (
	"slices"

	"github.com/go-faster/errors"
)

// SortOrder selects how the derived view of the catalog is ordered.
type SortOrder string

const (
	// SortDefault keeps the order received from the source.
	SortDefault SortOrder = "default"
	// SortAscending orders by price, lowest first.
	SortAscending SortOrder = "ascending"
	// SortDescending orders by price, highest first.
	SortDescending SortOrder = "descending"
)

// ErrInvalidSortOrder is returned for values outside the known sort orders.
var ErrInvalidSortOrder = errors.New("invalid sort order")

// ParseSortOrder converts user input into a SortOrder. The empty string is
// the "suggested" choice and maps to SortDefault.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", SortDefault:
		return SortDefault, nil
	case SortAscending, SortDescending:
		return SortOrder(s), nil
	default:
		return "", errors.Wrapf(ErrInvalidSortOrder, "%q", s)
	}
}

// Valid reports whether o is one of the known orders.
func (o SortOrder) Valid() bool {
	switch o {
	case SortDefault, SortAscending, SortDescending:
		return true
	default:
		return false
	}
}

// Sort returns a new slice holding products in the given order. Price ties
// keep their relative input order. The input is never modified.
func Sort(products []Product, order SortOrder) []Product {
	out := make([]Product, len(products))
	copy(out, products)

	switch order {
	case SortAscending:
		slices.SortStableFunc(out, func(a, b Product) int {
			return a.Price.Cmp(b.Price)
		})
	case SortDescending:
		slices.SortStableFunc(out, func(a, b Product) int {
			return b.Price.Cmp(a.Price)
		})
	}
	return out
}
