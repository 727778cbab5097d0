package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

// Default selectors for a social page timeline.
var (
	DefaultContainerSelectors = []string{`[role="article"]`}
	DefaultMessageSelectors   = []string{`div[data-ad-preview="message"]`, `div[data-ad-comet-preview="message"]`}
	DefaultLinkSelectors      = []string{`a[href*="/posts/"], a[href*="/photo"], a[href*="/videos/"], a[href*="/permalink"]`}
	DefaultImageSelectors     = []string{`img.x1ey2m1c, img.x1b1988l, img.x1ll5mko`}
)

const maxPageBytes = 8 << 20

// PageFetcher scrapes posts out of an HTML page with CSS selectors.
// Document order is taken as newest-first.
type PageFetcher struct {
	cfg    Config
	sel    Selectors
	client *http.Client
	log    logx.Logger
	now    func() time.Time
}

func NewPageFetcher(cfg Config, client *http.Client, log logx.Logger) *PageFetcher {
	sel := cfg.Selectors
	if len(sel.Containers) == 0 {
		sel.Containers = DefaultContainerSelectors
	}
	if len(sel.Messages) == 0 {
		sel.Messages = DefaultMessageSelectors
	}
	if len(sel.Links) == 0 {
		sel.Links = DefaultLinkSelectors
	}
	if len(sel.Images) == 0 {
		sel.Images = DefaultImageSelectors
	}
	return &PageFetcher{
		cfg:    cfg,
		sel:    sel,
		client: client,
		log:    log.With(logx.String("comp", "source.page")),
		now:    time.Now,
	}
}

func (p *PageFetcher) FetchBatch(ctx context.Context) ([]post.RawItem, error) {
	base, err := url.Parse(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", p.cfg.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: status %d", p.cfg.URL, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.cfg.URL, err)
	}
	return capBatch(p.extract(doc, base), p.cfg.MaxItems), nil
}

func (p *PageFetcher) extract(doc *goquery.Document, base *url.URL) []post.RawItem {
	containers := firstMatch(doc.Selection, p.sel.Containers)
	if containers == nil {
		p.log.Warn("no post containers matched", logx.Any("selectors", p.sel.Containers))
		return nil
	}

	now := p.now()
	var out []post.RawItem
	containers.Each(func(_ int, el *goquery.Selection) {
		var text string
		if msg := firstMatch(el, p.sel.Messages); msg != nil {
			text = strings.TrimSpace(msg.First().Text())
		}
		var link string
		if a := firstMatch(el, p.sel.Links); a != nil {
			if href, ok := a.First().Attr("href"); ok {
				link = resolve(base, href)
			}
		}
		if link == "" || text == "" {
			return
		}
		var media string
		if img := firstMatch(el, p.sel.Images); img != nil {
			if src, ok := img.First().Attr("src"); ok {
				media = resolve(base, src)
			}
		}
		out = append(out, post.RawItem{
			ID:         post.CanonicalID(link),
			Content:    text,
			MediaRef:   media,
			ObservedAt: now,
		})
	})
	return out
}

// firstMatch returns the matches of the first selector that finds anything.
func firstMatch(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}
