package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"feedbridge/internal/feedsync"
	"feedbridge/internal/post"
	rtsup "feedbridge/internal/runtime/supervisor"
	logx "feedbridge/pkg/logx"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Syncer is the slice of feedsync.Service the API drives.
type Syncer interface {
	Run(ctx context.Context) (feedsync.CycleResult, error)
	Status() feedsync.Status
}

// Previewer fetches a batch without touching sync state.
type Previewer interface {
	FetchBatch(ctx context.Context) ([]post.RawItem, error)
}

// Info is static-ish context added to /api/status.
type Info struct {
	SourceURL string
	Schedule  string
	NextRun   time.Time
	// Runtime lists the app's supervised goroutines; omitted when nothing started.
	Runtime rtsup.Snapshot
}

type Deps struct {
	Sync     Syncer
	Source   Previewer
	Info     func() Info
	MaxLen   func() int
	Gatherer prometheus.Gatherer
	Log      logx.Logger
}

// PreviewItem is one entry of /api/latest-posts.
type PreviewItem struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	MediaRef   string    `json:"mediaRef,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}

// NewRouter builds the gin engine for cfg. Deps may leave Source and
// Gatherer nil; the matching routes are then not registered.
func NewRouter(cfg Config, d Deps) *gin.Engine {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))
	r.Use(secure.New(secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
	}))

	h := &handlers{deps: d, log: log}
	r.GET("/health", h.health)

	authed := r.Group("/", bearerAuth(cfg.Token))
	api := authed.Group("/api")
	api.GET("/status", h.status)
	api.POST("/check-now", h.checkNow)
	if d.Source != nil {
		api.GET("/latest-posts", h.latestPosts)
	}
	if cfg.Metrics && d.Gatherer != nil {
		authed.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.Pprof {
		authed.GET("/debug/pprof/*name", pprofHandler)
		authed.POST("/debug/pprof/*name", pprofHandler)
	}
	return r
}

type handlers struct {
	deps Deps
	log  logx.Logger
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}

func (h *handlers) status(c *gin.Context) {
	body := gin.H{"status": h.deps.Sync.Status()}
	if h.deps.Info != nil {
		info := h.deps.Info()
		body["sourceUrl"] = info.SourceURL
		body["schedule"] = info.Schedule
		if !info.NextRun.IsZero() {
			body["nextRun"] = info.NextRun
		}
		if info.Runtime.Started > 0 {
			body["runtime"] = info.Runtime
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) checkNow(c *gin.Context) {
	res, err := h.deps.Sync.Run(c.Request.Context())
	if err != nil {
		h.log.Warn("manual check failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) latestPosts(c *gin.Context) {
	items, err := h.deps.Source.FetchBatch(c.Request.Context())
	if err != nil {
		h.log.Warn("preview fetch failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(items) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "no posts found"})
		return
	}
	maxLen := feedsync.DefaultMaxContentLen
	if h.deps.MaxLen != nil {
		maxLen = h.deps.MaxLen()
	}
	out := make([]PreviewItem, 0, len(items))
	for _, it := range items {
		out = append(out, PreviewItem{
			ID:         post.CanonicalID(it.ID),
			Content:    feedsync.NormalizeText(it.Content, maxLen),
			MediaRef:   it.MediaRef,
			ObservedAt: it.ObservedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(out), "posts": out})
}

func pprofHandler(c *gin.Context) {
	w, r := c.Writer, c.Request
	switch strings.TrimPrefix(c.Param("name"), "/") {
	case "cmdline":
		hpprof.Cmdline(w, r)
	case "profile":
		hpprof.Profile(w, r)
	case "symbol":
		hpprof.Symbol(w, r)
	case "trace":
		hpprof.Trace(w, r)
	default:
		hpprof.Index(w, r)
	}
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
// An empty token disables the check.
func bearerAuth(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			ah := c.GetHeader("Authorization")
			if after, ok := strings.CutPrefix(ah, "Bearer "); ok {
				got = strings.TrimSpace(after)
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}
