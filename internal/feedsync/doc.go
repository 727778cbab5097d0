// Package feedsync is the incremental sync core: it normalizes fetched text,
// reconciles a batch against known posts, drains the pending queue through a
// delivery function and orchestrates one cycle at a time.
//
// The cycle owns the only writable copy of post.SyncState. Readers get
// snapshots through Service.Status.
package feedsync
