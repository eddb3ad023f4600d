package domain

import "errors"

var (
	// ErrVendorConflict means the selected vendor changed after it was read.
	ErrVendorConflict = errors.New("vendor state changed since selection")
	// ErrStaleLead means the lead was not in the expected state.
	ErrStaleLead = errors.New("lead state changed concurrently")
)
