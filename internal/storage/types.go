package storage

import (
	"errors"
	"time"

	"feedbridge/internal/post"
)

var ErrClosed = errors.New("storage: closed")

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON state document
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Retention caps the saved items. 0 means post.DefaultRetention.
	Retention int
	// KeepPending exempts undelivered items from the cap.
	KeepPending bool

	// ImportFrom names a JSON state file (current or legacy layout) loaded
	// when the store itself holds no state yet.
	ImportFrom string
}

func (c Config) retention() int {
	if c.Retention > 0 {
		return c.Retention
	}
	return post.DefaultRetention
}

// Audit event kinds.
const (
	AuditDelivered = "delivered"
	AuditFailed    = "failed"
	AuditEvicted   = "evicted"
	AuditCycle     = "cycle"
)

// AuditEntry is one journal line. Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Cycle  string    `json:"cycle,omitempty"`
	Event  string    `json:"event"`
	ItemID string    `json:"item,omitempty"`
	Detail string    `json:"detail,omitempty"`
}
