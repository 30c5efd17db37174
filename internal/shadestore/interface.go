package shadestore

import "context"

// Directory is the read-only lookup contract the transmitter
// (internal/transmit) and the HTTP facade depend on. No side effects; see spec.md §4.1.
type Directory interface {
	// Lookup returns the record for shadeID, ErrNotFound if absent, or
	// ErrStoreUnavailable if the backing store could not be read.
	Lookup(ctx context.Context, shadeID int64) (*ShadeRecord, error)

	// ListAll returns every configured shade in ascending shade-id order.
	ListAll(ctx context.Context) ([]*ShadeRecord, error)
}
