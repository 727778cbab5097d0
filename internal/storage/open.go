package storage

import (
	"context"
	"errors"
	"strings"

	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

// Store is the durable home of post.SyncState.
//
// Load never fails on a missing or corrupt document; it returns an empty
// state and logs. Save applies the retention cap before writing.
type Store interface {
	Load(ctx context.Context) (post.SyncState, error)
	Save(ctx context.Context, st post.SyncState) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

const DefaultPath = "data/state.json"

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg, log.With(logx.String("driver", "file")))
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log.With(logx.String("driver", "sqlite")))
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// trimForSave applies the configured cap and logs undelivered evictions.
func trimForSave(cfg Config, log logx.Logger, st post.SyncState) post.SyncState {
	kept, evicted := st.Trim(cfg.retention(), cfg.KeepPending)
	for _, it := range evicted {
		if !it.Delivered {
			log.Warn("retention evicted an undelivered item", logx.String("item", it.ID))
		}
	}
	return kept
}
