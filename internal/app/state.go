package app

import (
	"context"
	"errors"

	"feedbridge/internal/config"
	"feedbridge/internal/post"
	"feedbridge/internal/storage"
	logx "feedbridge/pkg/logx"
)

// LoadState reads the persisted sync state named by the config at cfgPath
// without building any other component.
func LoadState(ctx context.Context, cfgPath string, log logx.Logger) (post.SyncState, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return post.SyncState{}, err
	}
	d, err := cfg.Durations()
	if err != nil {
		return post.SyncState{}, err
	}
	store, err := storage.Open(storageConfig(cfg, d), log.With(logx.String("comp", "storage")))
	if err != nil {
		return post.SyncState{}, err
	}
	st, err := store.Load(ctx)
	return st, errors.Join(err, store.Close())
}
