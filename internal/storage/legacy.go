package storage

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"feedbridge/internal/post"
)

// stateDoc accepts both the current layout and the older single-post record
// {lastPostUrl, lastCheckTime, lastPostTime, lastPostContent}.
type stateDoc struct {
	LastCheckAt time.Time   `json:"lastCheckAt"`
	Items       []post.Item `json:"items"`

	LastPostURL     string `json:"lastPostUrl"`
	LastCheckTime   string `json:"lastCheckTime"`
	LastPostTime    string `json:"lastPostTime"`
	LastPostContent string `json:"lastPostContent"`
}

func (d stateDoc) legacy() bool {
	return d.Items == nil && (d.LastPostURL != "" || d.LastCheckTime != "")
}

// toState converts a decoded document. A legacy record becomes a single
// delivered item, since the old scheme only stored what it had sent.
func (d stateDoc) toState() (post.SyncState, bool) {
	if !d.legacy() {
		st := post.SyncState{LastCheckAt: d.LastCheckAt, Items: d.Items}
		if st.Items == nil {
			st.Items = []post.Item{}
		}
		return st, false
	}

	st := post.SyncState{
		LastCheckAt: parseLegacyTime(d.LastCheckTime),
		Items:       []post.Item{},
	}
	id := post.CanonicalID(d.LastPostURL)
	if id == "" {
		return st, true
	}
	observed := parseLegacyTime(d.LastPostTime)
	if observed.IsZero() {
		observed = st.LastCheckAt
	}
	content := strings.TrimSpace(d.LastPostContent)
	if content == "" {
		content = id
	}
	st.Items = append(st.Items, post.Item{
		ID:         id,
		Content:    content,
		ObservedAt: observed,
		Delivered:  true,
	})
	return st, true
}

func parseLegacyTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// readStateFile decodes a JSON state document. found is false when the file
// does not exist; a decode failure is returned as an error.
func readStateFile(path string) (st post.SyncState, migrated, found bool, err error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return post.SyncState{}, false, false, nil
	}
	if err != nil {
		return post.SyncState{}, false, true, err
	}
	var d stateDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return post.SyncState{}, false, true, err
	}
	st, migrated = d.toState()
	return st, migrated, true, nil
}
