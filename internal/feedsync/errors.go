package feedsync

import "errors"

var (
	// ErrFetch wraps source failures. The cycle ends early and only
	// lastCheckAt is persisted.
	ErrFetch = errors.New("feedsync: fetch failed")
	// ErrDeliver wraps a single item's delivery failure. The item stays pending.
	ErrDeliver = errors.New("feedsync: delivery failed")
	// ErrPersist is returned when state could not be saved.
	ErrPersist = errors.New("feedsync: persist failed")
	// ErrNoDeliverer means the driver was asked to drain without a delivery function.
	ErrNoDeliverer = errors.New("feedsync: no deliverer configured")
	// ErrBusy is returned by TryRun while another cycle is running.
	ErrBusy = errors.New("feedsync: cycle already running")
)
