package config

import (
	"reflect"
	"sort"
	"strings"

	logx "feedbridge/pkg/logx"
)

// Change is the safe summary of a reload.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	// Attrs are loggable fields. Secrets are reported only as *_set flags.
	Attrs []logx.Field
	// RestartRequired lists changed sections that only apply after a restart.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Attrs = append(ch.Attrs, attrs...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if !reflect.DeepEqual(oldCfg.Source, newCfg.Source) {
		mark("source", true,
			logx.String("source.kind", newCfg.Source.Kind),
			logx.String("source.url", newCfg.Source.URL),
		)
	}

	if oldCfg.Sync != newCfg.Sync {
		// The store keeps the retention it was opened with.
		restart := oldCfg.Sync.Retention != newCfg.Sync.Retention || oldCfg.Sync.KeepPending != newCfg.Sync.KeepPending
		mark("sync", restart,
			logx.String("sync.schedule", newCfg.Sync.Schedule),
			logx.Int("sync.max_content_length", newCfg.Sync.MaxContentLength),
			logx.Int("sync.retention", newCfg.Sync.Retention),
			logx.Bool("sync.keep_pending", newCfg.Sync.KeepPending),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		mark("delivery", oldCfg.Transport() != newCfg.Transport(),
			logx.String("delivery.transport", newCfg.Transport()),
			logx.String("delivery.delay", newCfg.Delivery.Delay),
			logx.Float64("delivery.rate_per_sec", newCfg.Delivery.RatePerSec),
		)
	}

	// Telegram (never log token)
	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || o.ChatID != n.ChatID || o.ThreadID != n.ThreadID ||
		!reflect.DeepEqual(o.OwnerUserIDs, n.OwnerUserIDs) || o.Commands != n.Commands ||
		o.PollTimeout != n.PollTimeout || o.APIURL != n.APIURL {
		mark("telegram", true,
			logx.Bool("telegram.token_set", set(n.Token)),
			logx.Bool("telegram.chat_set", n.ChatID != 0),
			logx.Int("telegram.owner_count", len(n.OwnerUserIDs)),
			logx.Bool("telegram.commands", n.Commands),
		)
	}

	// Webhook (the URL embeds a secret)
	if oldCfg.Webhook != newCfg.Webhook {
		mark("webhook", true,
			logx.Bool("webhook.url_set", set(newCfg.Webhook.URL)),
			logx.String("webhook.username", newCfg.Webhook.Username),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", set(newCfg.Storage.Path)),
		)
	}

	if oldCfg.Scheduler.IsEnabled() != newCfg.Scheduler.IsEnabled() ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		mark("scheduler", false,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.IsEnabled()),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// HTTP (never log token)
	if oldCfg.HTTP != newCfg.HTTP {
		mark("http", false,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", set(newCfg.HTTP.Token)),
			logx.Bool("http.allow_insecure", newCfg.HTTP.AllowInsecure),
			logx.Bool("http.metrics", newCfg.HTTP.Metrics),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}
