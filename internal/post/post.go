// Package post holds the domain types shared by the sync core, the state
// store and the source/delivery collaborators.
package post

import (
	"net/url"
	"strings"
	"time"
)

// RawItem is one entry as produced by a source, before reconciliation.
type RawItem struct {
	ID         string
	Content    string
	MediaRef   string
	ObservedAt time.Time
}

// Item is one observed post tracked in SyncState.
type Item struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	MediaRef   string    `json:"mediaRef,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
	Delivered  bool      `json:"delivered"`
}

// SyncState is the durable progress record.
//
// Items are ordered newest-first and never contain two entries with the same ID.
type SyncState struct {
	LastCheckAt time.Time `json:"lastCheckAt"`
	Items       []Item    `json:"items"`
}

// DefaultRetention is the number of items kept in persisted state.
const DefaultRetention = 20

// CanonicalID reduces a post URL to origin + path so tracking parameters
// and fragments never split identity. Values that don't parse as absolute
// URLs are returned trimmed.
func CanonicalID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// Clone returns a deep copy safe to hand to readers.
func (s SyncState) Clone() SyncState {
	out := SyncState{LastCheckAt: s.LastCheckAt}
	if s.Items != nil {
		out.Items = append([]Item(nil), s.Items...)
	}
	return out
}

// Known reports whether an item with id is tracked, delivered or not.
func (s SyncState) Known(id string) bool {
	for _, it := range s.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Pending returns undelivered items oldest-first.
func (s SyncState) Pending() []Item {
	out := make([]Item, 0, len(s.Items))
	for i := len(s.Items) - 1; i >= 0; i-- {
		if !s.Items[i].Delivered {
			out = append(out, s.Items[i])
		}
	}
	return out
}

// PendingCount returns the number of undelivered items.
func (s SyncState) PendingCount() int {
	n := 0
	for _, it := range s.Items {
		if !it.Delivered {
			n++
		}
	}
	return n
}

// MarkDelivered flips the delivered flag of id in place.
func (s *SyncState) MarkDelivered(id string) bool {
	for i := range s.Items {
		if s.Items[i].ID == id {
			s.Items[i].Delivered = true
			return true
		}
	}
	return false
}

// Trim applies the retention cap and returns the kept state plus the evicted
// items. Oldest entries go first. With keepPending, undelivered items are
// never evicted, so the result may exceed limit by the pending count.
func (s SyncState) Trim(limit int, keepPending bool) (SyncState, []Item) {
	if limit <= 0 {
		limit = DefaultRetention
	}
	out := SyncState{LastCheckAt: s.LastCheckAt}
	if len(s.Items) <= limit {
		out.Items = append([]Item(nil), s.Items...)
		return out, nil
	}
	if !keepPending {
		out.Items = append([]Item(nil), s.Items[:limit]...)
		return out, append([]Item(nil), s.Items[limit:]...)
	}

	var evicted []Item
	kept := make([]Item, 0, limit)
	for i, it := range s.Items {
		if i < limit || !it.Delivered {
			kept = append(kept, it)
			continue
		}
		evicted = append(evicted, it)
	}
	out.Items = kept
	return out, evicted
}

// Latest returns the newest tracked item.
func (s SyncState) Latest() (Item, bool) {
	if len(s.Items) == 0 {
		return Item{}, false
	}
	return s.Items[0], true
}
