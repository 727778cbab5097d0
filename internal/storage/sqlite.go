package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const metaLastCheck = "last_check_at"

type sqliteStore struct {
	db  *sql.DB
	cfg Config
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the sync cycle is already serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	st := &sqliteStore{db: db, cfg: cfg, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (post.SyncState, error) {
	if s == nil || s.db == nil {
		return post.SyncState{}, ErrClosed
	}
	st, found, err := s.read(ctx)
	if err != nil {
		return post.SyncState{}, err
	}
	if found {
		return st, nil
	}

	if imp := strings.TrimSpace(s.cfg.ImportFrom); imp != "" {
		ist, migrated, ok, err := readStateFile(imp)
		switch {
		case err != nil:
			s.log.Warn("import file unreadable; starting fresh", logx.String("path", imp), logx.Err(err))
		case ok:
			if err := s.Save(ctx, ist); err != nil {
				return post.SyncState{}, fmt.Errorf("import %s: %w", imp, err)
			}
			s.log.Info("imported state", logx.String("from", imp), logx.Bool("legacy", migrated), logx.Int("items", len(ist.Items)))
			st, _, err := s.read(ctx)
			return st, err
		}
	}
	s.log.Info("no saved state; first run", logx.String("path", s.cfg.Path))
	return post.SyncState{Items: []post.Item{}}, nil
}

// read returns found=false when neither meta nor item rows exist.
func (s *sqliteStore) read(ctx context.Context) (post.SyncState, bool, error) {
	st := post.SyncState{Items: []post.Item{}}
	found := false

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, metaLastCheck).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, false, err
	default:
		found = true
		if raw != "" {
			if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
				st.LastCheckAt = t
			}
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, media_ref, observed_at, delivered FROM items ORDER BY position ASC`)
	if err != nil {
		return st, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it       post.Item
			media    sql.NullString
			observed string
			done     int
		)
		if err := rows.Scan(&it.ID, &it.Content, &media, &observed, &done); err != nil {
			return st, false, err
		}
		it.MediaRef = media.String
		it.ObservedAt, _ = time.Parse(time.RFC3339Nano, observed)
		it.Delivered = done != 0
		st.Items = append(st.Items, it)
		found = true
	}
	return st, found, rows.Err()
}

// Save replaces all item rows and the meta row in one transaction.
func (s *sqliteStore) Save(ctx context.Context, st post.SyncState) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	st = trimForSave(s.cfg, s.log, st)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return err
	}
	ins, err := tx.PrepareContext(ctx,
		`INSERT INTO items(id, position, content, media_ref, observed_at, delivered) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	for i, it := range st.Items {
		done := 0
		if it.Delivered {
			done = 1
		}
		if _, err := ins.ExecContext(ctx, it.ID, i, it.Content, nullStr(it.MediaRef),
			it.ObservedAt.UTC().Format(time.RFC3339Nano), done); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
	}
	last := ""
	if !st.LastCheckAt.IsZero() {
		last = st.LastCheckAt.UTC().Format(time.RFC3339Nano)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_meta(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, metaLastCheck, last); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, cycle, event, item, detail) VALUES(?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), nullStr(e.Cycle), e.Event, nullStr(e.ItemID), nullStr(e.Detail),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
