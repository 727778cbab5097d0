package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func itemsN(n int, delivered func(i int) bool) []post.Item {
	// Newest-first: index 0 is p<n>.
	out := make([]post.Item, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, post.Item{
			ID:         fmt.Sprintf("https://e.com/p/%d", i),
			Content:    fmt.Sprintf("post %d", i),
			ObservedAt: t0.Add(time.Duration(i) * time.Minute),
			Delivered:  delivered(i),
		})
	}
	return out
}

func allDelivered(int) bool { return true }

func openTestFile(t *testing.T, cfg Config) Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "state.json")
	}
	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileLoadMissingIsFirstRun(t *testing.T) {
	t.Parallel()
	s := openTestFile(t, Config{})
	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Items)
	assert.True(t, st.LastCheckAt.IsZero())
}

func TestFileSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestFile(t, Config{})
	in := post.SyncState{LastCheckAt: t0, Items: itemsN(3, func(i int) bool { return i == 1 })}
	in.Items[0].MediaRef = "https://e.com/img.jpg"
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, out.LastCheckAt.Equal(t0))
	require.Len(t, out.Items, 3)
	assert.Equal(t, "https://e.com/p/3", out.Items[0].ID)
	assert.Equal(t, "https://e.com/img.jpg", out.Items[0].MediaRef)
	assert.True(t, out.Items[2].Delivered)
	assert.False(t, out.Items[0].Delivered)
}

func TestFileSaveIsAtomicAndTrims(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := openTestFile(t, Config{Path: path})
	require.NoError(t, s.Save(context.Background(), post.SyncState{LastCheckAt: t0, Items: itemsN(25, allDelivered)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		LastCheckAt time.Time   `json:"lastCheckAt"`
		Items       []post.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(b, &doc))
	require.Len(t, doc.Items, post.DefaultRetention)
	assert.Equal(t, "https://e.com/p/25", doc.Items[0].ID)
	assert.Equal(t, "https://e.com/p/6", doc.Items[19].ID)
}

func TestFileSaveKeepPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestFile(t, Config{Retention: 5, KeepPending: true})
	require.NoError(t, s.Save(ctx, post.SyncState{Items: itemsN(8, func(i int) bool { return i != 2 })}))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out.Items, 6)
	assert.Equal(t, "https://e.com/p/2", out.Items[5].ID)
	assert.False(t, out.Items[5].Delivered)
}

func TestFileLoadCorruptStartsFresh(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s := openTestFile(t, Config{Path: path})

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Items)
}

func TestFileLoadMigratesLegacy(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
  "lastPostUrl": "https://www.facebook.com/page/posts/123?__cft__=abc",
  "lastCheckTime": "2024-05-01T12:30:00.000Z",
  "lastPostTime": "2024-05-01T12:00:00.000Z",
  "lastPostContent": "hello there"
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))
	s := openTestFile(t, Config{Path: path})

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	it := st.Items[0]
	assert.Equal(t, "https://www.facebook.com/page/posts/123", it.ID)
	assert.Equal(t, "hello there", it.Content)
	assert.True(t, it.Delivered)
	assert.True(t, it.ObservedAt.Equal(t0))
	assert.True(t, st.LastCheckAt.Equal(t0.Add(30*time.Minute)))
}

func TestFileLoadImportsWhenEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "last-post.json")
	require.NoError(t, os.WriteFile(legacyPath, []byte(`{"lastPostUrl":"https://e.com/p/1","lastCheckTime":"","lastPostTime":"","lastPostContent":"x"}`), 0o600))
	s := openTestFile(t, Config{Path: filepath.Join(dir, "state.json"), ImportFrom: legacyPath})

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	assert.True(t, st.Items[0].Delivered)
}

func TestFileAppendAudit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := openTestFile(t, Config{Path: filepath.Join(dir, "state.json")})
	ctx := context.Background()
	require.NoError(t, s.AppendAudit(ctx, AuditEntry{At: t0, Cycle: "c1", Event: AuditDelivered, ItemID: "https://e.com/p/1"}))
	require.NoError(t, s.AppendAudit(ctx, AuditEntry{At: t0, Cycle: "c1", Event: AuditFailed, ItemID: "https://e.com/p/2", Detail: "timeout"}))
	require.NoError(t, s.Close())

	f, err := os.Open(filepath.Join(dir, "state.audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	var got []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, AuditFailed, got[1].Event)
	assert.Equal(t, "timeout", got[1].Detail)

	assert.ErrorIs(t, s.AppendAudit(ctx, AuditEntry{Event: AuditCycle}), ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop())
	require.Error(t, err)
}
