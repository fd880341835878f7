// Package catalog holds the client-side catalog state machine: the fetch
// lifecycle, the derived sorted view, and the snapshot stream consumers
// render from.
package catalog

import (
	"github.com/xenking/kart-catalog/internal/domain/product"
)

// Status is the fetch lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusLoading, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// State is the full catalog state. DerivedProducts is always
// product.Sort(RawProducts, SortOrder).
type State struct {
	RawProducts     []product.Product
	SortOrder       product.SortOrder
	DerivedProducts []product.Product
	Status          Status
	// Error is set only when Status is StatusFailed.
	Error string
}

// InitialState returns the state of a freshly created store.
func InitialState() State {
	return State{
		RawProducts:     []product.Product{},
		SortOrder:       product.SortDefault,
		DerivedProducts: []product.Product{},
		Status:          StatusIdle,
	}
}

// Rehydrate turns a persisted state into one that is safe to resume from.
// A fetch interrupted by a restart never completes, so a persisted loading
// status becomes idle. A failure without a message is not a valid failure
// and also becomes idle. The derived view is rebuilt rather than trusted.
func Rehydrate(st State) State {
	out := State{
		RawProducts: st.RawProducts,
		SortOrder:   st.SortOrder,
		Status:      st.Status,
		Error:       st.Error,
	}
	if out.RawProducts == nil {
		out.RawProducts = []product.Product{}
	}
	if !out.SortOrder.Valid() {
		out.SortOrder = product.SortDefault
	}
	switch {
	case out.Status == StatusLoading, !out.Status.Valid():
		out.Status = StatusIdle
		out.Error = ""
	case out.Status == StatusFailed && out.Error == "":
		out.Status = StatusIdle
	case out.Status != StatusFailed:
		out.Error = ""
	}
	out.DerivedProducts = product.Sort(out.RawProducts, out.SortOrder)
	return out
}

// Snapshot is an immutable view of the store after a commit. Consumers must
// treat the product slices as read-only.
type Snapshot struct {
	State
	// Revision changes whenever DerivedProducts is rebuilt.
	Revision uint64
	// Version changes on every commit.
	Version uint64
	// Ready is false until hydration has finished.
	Ready bool
}
