package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

// fileStore keeps the state in one JSON document.
//
// Files:
//   - <path>                  (state document, replaced atomically)
//   - <prefix>.audit.jsonl    (append-only JSON Lines)
type fileStore struct {
	cfg  Config
	log  logx.Logger
	path string

	mu        sync.Mutex
	auditFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	af, err := os.OpenFile(filepath.Join(dir, base+".audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{cfg: cfg, log: log, path: path, auditFile: af}, nil
}

func (s *fileStore) Load(ctx context.Context) (post.SyncState, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	st, migrated, found, err := readStateFile(s.path)
	if err != nil {
		s.log.Warn("state file unreadable; starting fresh", logx.String("path", s.path), logx.Err(err))
		return post.SyncState{Items: []post.Item{}}, nil
	}
	if found {
		if migrated {
			s.log.Info("migrated legacy state record", logx.String("path", s.path), logx.Int("items", len(st.Items)))
		}
		return st, nil
	}

	if imp := strings.TrimSpace(s.cfg.ImportFrom); imp != "" {
		st, migrated, found, err := readStateFile(imp)
		switch {
		case err != nil:
			s.log.Warn("import file unreadable; starting fresh", logx.String("path", imp), logx.Err(err))
		case found:
			s.log.Info("imported state", logx.String("from", imp), logx.Bool("legacy", migrated), logx.Int("items", len(st.Items)))
			return st, nil
		}
	}
	s.log.Info("no saved state; first run", logx.String("path", s.path))
	return post.SyncState{Items: []post.Item{}}, nil
}

// Save writes the trimmed state to a temp file in the same directory,
// fsyncs it and renames it over the document.
func (s *fileStore) Save(ctx context.Context, st post.SyncState) error {
	_ = ctx
	st = trimForSave(s.cfg, s.log, st)
	if st.Items == nil {
		st.Items = []post.Item{}
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return writeFileAtomic(s.path, b)
}

func writeFileAtomic(path string, b []byte) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o600); err != nil {
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		return err
	}
	// Best-effort: persist the rename itself.
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
