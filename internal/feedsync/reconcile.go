package feedsync

import (
	"time"

	"feedbridge/internal/post"
)

// Reconciler diffs fetched batches against known state.
type Reconciler struct {
	// MaxLen is the content budget passed to NormalizeText.
	MaxLen int
	// Now stamps items whose source didn't provide ObservedAt.
	Now func() time.Time
}

// Sync reconciles with default tunables.
func Sync(fetched []post.RawItem, known post.SyncState) ([]post.Item, post.SyncState) {
	return Reconciler{}.Sync(fetched, known)
}

// Sync returns the genuinely new items oldest-first and the state with those
// items prepended newest-first. fetched is expected newest-first. Entries
// with no id or no text after normalization are skipped. known is not
// mutated.
func (r Reconciler) Sync(fetched []post.RawItem, known post.SyncState) ([]post.Item, post.SyncState) {
	seen := make(map[string]struct{}, len(known.Items)+len(fetched))
	for _, it := range known.Items {
		seen[it.ID] = struct{}{}
		seen[post.CanonicalID(it.ID)] = struct{}{}
	}

	var fresh []post.Item // newest-first
	for _, raw := range fetched {
		id := post.CanonicalID(raw.ID)
		if id == "" {
			continue
		}
		content := NormalizeText(raw.Content, r.maxLen())
		if content == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		observed := raw.ObservedAt
		if observed.IsZero() {
			observed = r.now()
		}
		fresh = append(fresh, post.Item{
			ID:         id,
			Content:    content,
			MediaRef:   raw.MediaRef,
			ObservedAt: observed,
		})
	}

	updated := post.SyncState{
		LastCheckAt: known.LastCheckAt,
		Items:       make([]post.Item, 0, len(fresh)+len(known.Items)),
	}
	updated.Items = append(updated.Items, fresh...)
	updated.Items = append(updated.Items, known.Items...)

	newItems := make([]post.Item, len(fresh))
	for i, it := range fresh {
		newItems[len(fresh)-1-i] = it
	}
	return newItems, updated
}

func (r Reconciler) maxLen() int {
	if r.MaxLen > 0 {
		return r.MaxLen
	}
	return DefaultMaxContentLen
}

func (r Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
