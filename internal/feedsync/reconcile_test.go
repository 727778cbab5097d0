package feedsync

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbridge/internal/post"
)

func raw(id, content string) post.RawItem {
	return post.RawItem{ID: id, Content: content}
}

func itemIDs(items []post.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestSyncOrdersNewItemsOldestFirst(t *testing.T) {
	t.Parallel()
	batch := []post.RawItem{
		raw("https://e.com/p/3", "three"),
		raw("https://e.com/p/2", "two"),
		raw("https://e.com/p/1", "one"),
	}
	fresh, st := Sync(batch, post.SyncState{})

	assert.Equal(t, []string{"https://e.com/p/1", "https://e.com/p/2", "https://e.com/p/3"}, itemIDs(fresh))
	assert.Equal(t, []string{"https://e.com/p/3", "https://e.com/p/2", "https://e.com/p/1"}, itemIDs(st.Items))
	for _, it := range fresh {
		assert.False(t, it.Delivered)
		assert.False(t, it.ObservedAt.IsZero())
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()
	batch := []post.RawItem{raw("https://e.com/p/2", "two"), raw("https://e.com/p/1", "one")}
	_, st := Sync(batch, post.SyncState{})

	fresh, again := Sync(batch, st)
	assert.Empty(t, fresh)
	assert.Equal(t, st.Items, again.Items)
}

func TestSyncDedupIgnoresContentAndTracking(t *testing.T) {
	t.Parallel()
	known := post.SyncState{Items: []post.Item{{ID: "https://e.com/p/1", Content: "one", Delivered: true}}}
	batch := []post.RawItem{
		raw("https://E.com/p/1?utm_source=x&fbclid=y#top", "  one, edited\n\n\n"),
		raw("https://e.com/p/2?ref=a", "two"),
		raw("https://e.com/p/2?ref=b", "two again"),
	}
	fresh, st := Sync(batch, known)

	require.Len(t, fresh, 1)
	assert.Equal(t, "https://e.com/p/2", fresh[0].ID)
	assert.Equal(t, "two", fresh[0].Content)
	assert.Len(t, st.Items, 2)
}

func TestSyncSkipsMalformed(t *testing.T) {
	t.Parallel()
	batch := []post.RawItem{
		raw("", "orphan text"),
		raw("https://e.com/p/9", " \n "),
		raw("https://e.com/p/1", "ok"),
	}
	fresh, st := Sync(batch, post.SyncState{})
	assert.Equal(t, []string{"https://e.com/p/1"}, itemIDs(fresh))
	assert.Len(t, st.Items, 1)
}

func TestSyncDoesNotMutateKnown(t *testing.T) {
	t.Parallel()
	known := post.SyncState{Items: make([]post.Item, 1, 8)}
	known.Items[0] = post.Item{ID: "https://e.com/p/1", Content: "one"}
	_, st := Sync([]post.RawItem{raw("https://e.com/p/2", "two")}, known)

	require.Len(t, known.Items, 1)
	assert.Equal(t, "https://e.com/p/1", known.Items[0].ID)
	st.Items[1].Delivered = true
	assert.False(t, known.Items[0].Delivered)
}

func TestSyncStampsObservedAt(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	given := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	r := Reconciler{MaxLen: 5, Now: func() time.Time { return at }}
	fresh, _ := r.Sync([]post.RawItem{
		{ID: "https://e.com/p/2", Content: "second post", ObservedAt: given},
		{ID: "https://e.com/p/1", Content: "first"},
	}, post.SyncState{})

	require.Len(t, fresh, 2)
	assert.Equal(t, at, fresh[0].ObservedAt)
	assert.Equal(t, given, fresh[1].ObservedAt)
	assert.Equal(t, "secon"+ellipsis, fresh[1].Content)
}

func TestRetentionAcrossCycles(t *testing.T) {
	t.Parallel()
	var st post.SyncState
	for i := 1; i <= 25; i++ {
		fresh, next := Sync([]post.RawItem{raw(fmt.Sprintf("https://e.com/p/%d", i), "body")}, st)
		require.Len(t, fresh, 1)
		next.Items[0].Delivered = true
		st, _ = next.Trim(post.DefaultRetention, false)
	}
	require.Len(t, st.Items, post.DefaultRetention)
	assert.Equal(t, "https://e.com/p/25", st.Items[0].ID)
	assert.Equal(t, "https://e.com/p/6", st.Items[19].ID)
}
