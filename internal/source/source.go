// Package source implements the fetch side of a sync cycle: a feed reader
// and a selector-driven page scraper, both producing newest-first batches.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

// Fetcher yields the current batch of posts, newest-first.
type Fetcher interface {
	FetchBatch(ctx context.Context) ([]post.RawItem, error)
}

const (
	KindFeed = "feed"
	KindPage = "page"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultTimeout   = 30 * time.Second
)

type Config struct {
	Kind      string
	URL       string
	UserAgent string
	Timeout   time.Duration
	// MaxItems caps one batch. 0 keeps everything.
	MaxItems  int
	Selectors Selectors
}

// Selectors drive PageFetcher. Each list is tried in order until one matches.
type Selectors struct {
	Containers []string
	Messages   []string
	Links      []string
	Images     []string
}

// New builds the fetcher for cfg.Kind.
func New(cfg Config, log logx.Logger) (Fetcher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("source: url is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindFeed:
		return NewFeedFetcher(cfg, client, log), nil
	case KindPage:
		return NewPageFetcher(cfg, client, log), nil
	default:
		return nil, fmt.Errorf("source: unknown kind %q", cfg.Kind)
	}
}

func capBatch(items []post.RawItem, limit int) []post.RawItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
