package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "feedbridge/pkg/logx"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
  <title>Page</title>
  <item>
    <title>Older</title>
    <link>https://example.com/posts/1?utm_source=rss</link>
    <description>&lt;p&gt;Older &lt;b&gt;body&lt;/b&gt; &amp;amp; more&lt;/p&gt;</description>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    <enclosure url="https://cdn.example.com/1.jpg" type="image/jpeg" length="1"/>
  </item>
  <item>
    <title>Newest</title>
    <link>https://example.com/posts/3</link>
    <description>Fresh body</description>
    <pubDate>Wed, 03 Jan 2024 10:00:00 GMT</pubDate>
    <media:thumbnail url="https://cdn.example.com/3.jpg"/>
  </item>
  <item>
    <title>No link</title>
    <description>dropped</description>
    <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Middle</title>
    <link>https://example.com/posts/2</link>
    <pubDate>Tue, 02 Jan 2024 09:00:00 GMT</pubDate>
    <media:content url="javascript:alert(1)" medium="image"/>
  </item>
</channel>
</rss>`

func TestFeedFetcherNewestFirst(t *testing.T) {
	t.Parallel()
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssDoc))
	}))
	defer srv.Close()

	f, err := New(Config{Kind: KindFeed, URL: srv.URL, UserAgent: "feedbridge-test"}, logx.Nop())
	require.NoError(t, err)
	items, err := f.FetchBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "feedbridge-test", gotUA)
	require.Len(t, items, 3)
	assert.Equal(t, "https://example.com/posts/3", items[0].ID)
	assert.Equal(t, "Newest\n\nFresh body", items[0].Content)
	assert.Equal(t, "https://cdn.example.com/3.jpg", items[0].MediaRef)

	assert.Equal(t, "https://example.com/posts/2", items[1].ID)
	assert.Equal(t, "Middle", items[1].Content)
	assert.Empty(t, items[1].MediaRef)

	assert.Equal(t, "https://example.com/posts/1", items[2].ID)
	// The title repeats the body start, so only the body is kept.
	assert.Equal(t, "Older body & more", items[2].Content)
	assert.Equal(t, "https://cdn.example.com/1.jpg", items[2].MediaRef)
	assert.False(t, items[2].ObservedAt.IsZero())
}

func TestFeedFetcherHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f, err := New(Config{URL: srv.URL, Timeout: 2 * time.Second}, logx.Nop())
	require.NoError(t, err)
	_, err = f.FetchBatch(context.Background())
	require.Error(t, err)
}

const pageDoc = `<html><body>
<div role="feed">
  <div role="article">
    <div data-ad-comet-preview="message"><span>Second post text</span></div>
    <a href="/page/posts/222?__cft__=abc">2h</a>
    <img class="x1ll5mko" src="https://scontent.example.com/b.jpg">
  </div>
  <div role="article">
    <div data-ad-preview="message">First post text</div>
    <a href="https://www.example.com/page/photo/?fbid=111">photo</a>
  </div>
  <div role="article">
    <div data-ad-preview="message">No link here</div>
  </div>
  <div role="article">
    <a href="/page/posts/333">empty</a>
  </div>
</div>
</body></html>`

func TestPageFetcherSelectors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pageDoc))
	}))
	defer srv.Close()

	f, err := New(Config{Kind: KindPage, URL: srv.URL + "/page"}, logx.Nop())
	require.NoError(t, err)
	items, err := f.FetchBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, srv.URL+"/page/posts/222", items[0].ID)
	assert.Equal(t, "Second post text", items[0].Content)
	assert.Equal(t, "https://scontent.example.com/b.jpg", items[0].MediaRef)
	assert.Equal(t, "https://www.example.com/page/photo/", items[1].ID)
	assert.Empty(t, items[1].MediaRef)
}

func TestPageFetcherFallbackContainers(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<ul><li class="entry"><p class="msg">Hello</p><a class="permalink" href="/p/1">x</a></li></ul>`))
	}))
	defer srv.Close()

	f, err := New(Config{
		Kind:     KindPage,
		URL:      srv.URL,
		MaxItems: 5,
		Selectors: Selectors{
			Containers: []string{"article", "li.entry"},
			Messages:   []string{"p.msg"},
			Links:      []string{"a.permalink"},
		},
	}, logx.Nop())
	require.NoError(t, err)
	items, err := f.FetchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, srv.URL+"/p/1", items[0].ID)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Kind: KindFeed}, logx.Nop())
	require.Error(t, err)
	_, err = New(Config{Kind: "ftp", URL: "ftp://x"}, logx.Nop())
	require.Error(t, err)
}
