package source

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

// FeedFetcher reads RSS, Atom or JSON Feed documents.
type FeedFetcher struct {
	cfg    Config
	parser *gofeed.Parser
	strip  *bluemonday.Policy
	log    logx.Logger
	now    func() time.Time
}

func NewFeedFetcher(cfg Config, client *http.Client, log logx.Logger) *FeedFetcher {
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = cfg.UserAgent
	return &FeedFetcher{
		cfg:    cfg,
		parser: p,
		strip:  bluemonday.StrictPolicy(),
		log:    log.With(logx.String("comp", "source.feed")),
		now:    time.Now,
	}
}

func (f *FeedFetcher) FetchBatch(ctx context.Context) ([]post.RawItem, error) {
	feed, err := f.parser.ParseURLWithContext(f.cfg.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", f.cfg.URL, err)
	}

	now := f.now()
	type dated struct {
		item post.RawItem
		at   *time.Time
	}
	rows := make([]dated, 0, len(feed.Items))
	allDated := true
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		id := itemLink(it)
		content := f.itemText(it)
		if id == "" || content == "" {
			f.log.Debug("skipping feed item without link or text", logx.String("title", it.Title))
			continue
		}
		at := it.PublishedParsed
		if at == nil {
			at = it.UpdatedParsed
		}
		if at == nil {
			allDated = false
		}
		rows = append(rows, dated{
			item: post.RawItem{ID: id, Content: content, MediaRef: ExtractImageURL(it), ObservedAt: now},
			at:   at,
		})
	}

	// Feeds are usually newest-first already; only reorder when every item
	// carries a date.
	if allDated {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].at.After(*rows[j].at) })
	}
	out := make([]post.RawItem, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return capBatch(out, f.cfg.MaxItems), nil
}

func itemLink(it *gofeed.Item) string {
	if l := strings.TrimSpace(it.Link); l != "" {
		return post.CanonicalID(l)
	}
	if isHTTPURL(it.GUID) {
		return post.CanonicalID(it.GUID)
	}
	return ""
}

var blockBreaks = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n", "</div>", "\n")

// itemText is the plain-text body: title, then description or content when
// they add something beyond the title.
func (f *FeedFetcher) itemText(it *gofeed.Item) string {
	body := it.Description
	if strings.TrimSpace(body) == "" {
		body = it.Content
	}
	body = f.plain(body)
	title := f.plain(it.Title)

	switch {
	case body == "":
		return title
	case title == "" || strings.HasPrefix(body, title):
		return body
	default:
		return title + "\n\n" + body
	}
}

func (f *FeedFetcher) plain(s string) string {
	s = f.strip.Sanitize(blockBreaks.Replace(s))
	return strings.TrimSpace(html.UnescapeString(s))
}

// ExtractImageURL picks the best image for an item.
// Priority: Item.Image > media:thumbnail > media:content (medium=image) > image enclosure.
// Only http/https URLs are accepted.
func ExtractImageURL(item *gofeed.Item) string {
	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, thumb := range media["thumbnail"] {
			if u := thumb.Attrs["url"]; isHTTPURL(u) {
				return u
			}
		}
		for _, c := range media["content"] {
			if c.Attrs["medium"] == "image" && isHTTPURL(c.Attrs["url"]) {
				return c.Attrs["url"]
			}
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isHTTPURL(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

func isHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
