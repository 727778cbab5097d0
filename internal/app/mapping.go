package app

import (
	"feedbridge/internal/config"
	"feedbridge/internal/feedsync"
	"feedbridge/internal/httpapi"
	"feedbridge/internal/notifier"
	"feedbridge/internal/source"
	"feedbridge/internal/storage"
	"feedbridge/internal/task/scheduler"
	"feedbridge/internal/transport/telegram"
	"feedbridge/internal/transport/webhook"
	logx "feedbridge/pkg/logx"
)

// Config sections are translated into component configs here so every
// component package stays free of the on-disk format.

func logConfig(cfg *config.Config) logx.Config {
	lt := cfg.Logging.Telegram
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    lt.Enabled,
			ChatID:     lt.ChatID,
			ThreadID:   lt.ThreadID,
			MinLevel:   lt.MinLevel,
			RatePerSec: lt.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config, d config.Durations) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: d.BusyTimeout,
		Retention:   cfg.Sync.Retention,
		KeepPending: cfg.Sync.KeepPending,
		ImportFrom:  cfg.Storage.ImportFrom,
	}
}

func sourceConfig(cfg *config.Config, d config.Durations) source.Config {
	s := cfg.Source
	return source.Config{
		Kind:      s.Kind,
		URL:       s.URL,
		UserAgent: s.UserAgent,
		Timeout:   d.SourceTimeout,
		MaxItems:  s.MaxItems,
		Selectors: source.Selectors{
			Containers: s.Selectors.Containers,
			Messages:   s.Selectors.Messages,
			Links:      s.Selectors.Links,
			Images:     s.Selectors.Images,
		},
	}
}

func telegramConfig(cfg *config.Config, d config.Durations) telegram.Config {
	t := cfg.Telegram
	return telegram.Config{
		Token:       t.Token,
		ChatID:      t.ChatID,
		ThreadID:    t.ThreadID,
		PollTimeout: d.PollTimeout,
		Commands:    t.Commands,
		OwnerIDs:    t.OwnerUserIDs,
		APIURL:      t.APIURL,
	}
}

func webhookConfig(cfg *config.Config, d config.Durations) webhook.Config {
	return webhook.Config{
		URL:       cfg.Webhook.URL,
		Username:  cfg.Webhook.Username,
		AvatarURL: cfg.Webhook.AvatarURL,
		Timeout:   d.WebhookTimeout,
	}
}

func notifierConfig(cfg *config.Config, d config.Durations) notifier.Config {
	dl := cfg.Delivery
	return notifier.Config{
		Title:       dl.Title,
		Color:       dl.Color,
		Footer:      dl.Footer,
		Mention:     dl.Mention,
		RatePerSec:  dl.RatePerSec,
		Burst:       dl.Burst,
		SendTimeout: d.SendTimeout,
		HistorySize: dl.HistorySize,
	}
}

func tunables(cfg *config.Config, d config.Durations) feedsync.Tunables {
	return feedsync.Tunables{
		MaxContentLen: cfg.Sync.MaxContentLength,
		Retention:     cfg.Sync.Retention,
		KeepPending:   cfg.Sync.KeepPending,
		DeliveryDelay: d.DeliveryDelay,
		CycleTimeout:  d.SyncTimeout,
	}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.IsEnabled(),
		Timezone: cfg.Scheduler.Timezone,
	}
}

func httpConfig(cfg *config.Config, d config.Durations) httpapi.Config {
	h := cfg.HTTP
	return httpapi.Config{
		Enabled:       h.Enabled,
		Addr:          h.Addr,
		Token:         h.Token,
		AllowInsecure: h.AllowInsecure,
		Metrics:       h.Metrics,
		Pprof:         h.Pprof,
		ReadTimeout:   d.ReadTimeout,
		WriteTimeout:  d.WriteTimeout,
		IdleTimeout:   d.IdleTimeout,
	}
}
