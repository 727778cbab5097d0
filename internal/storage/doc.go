// Package storage persists the sync state and an append-only audit journal.
//
// Two drivers are available:
//   - file: one JSON document replaced atomically (temp file, fsync, rename)
//     plus <prefix>.audit.jsonl
//   - sqlite: item rows replaced in a single transaction, audit in a table
//
// Both read the legacy single-post record and migrate it on first load.
package storage
