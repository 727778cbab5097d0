package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets may be left empty and supplied through FEEDBRIDGE_* environment
// variables instead (see env.go).
type Config struct {
	Source    SourceConfig    `json:"source"`
	Sync      SyncConfig      `json:"sync"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Telegram  TelegramConfig  `json:"telegram"`
	Webhook   WebhookConfig   `json:"webhook"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
}

// SourceConfig selects the content source. Changing it requires a restart.
type SourceConfig struct {
	Kind      string          `json:"kind,omitempty" validate:"omitempty,oneof=feed page"`
	URL       string          `json:"url" validate:"required,http_url"`
	UserAgent string          `json:"user_agent,omitempty"`
	Timeout   string          `json:"timeout,omitempty"`
	MaxItems  int             `json:"max_items,omitempty" validate:"gte=0"`
	Selectors SelectorsConfig `json:"selectors,omitempty"`
}

// SelectorsConfig overrides the page fetcher's CSS selector fallbacks.
type SelectorsConfig struct {
	Containers []string `json:"containers,omitempty"`
	Messages   []string `json:"messages,omitempty"`
	Links      []string `json:"links,omitempty"`
	Images     []string `json:"images,omitempty"`
}

// SyncConfig holds the cycle knobs. Everything except schedule/timeout is
// applied live on reload.
//
// Example:
//
//	"sync": { "schedule": "*/10 * * * *", "run_on_start": true, "retention": 20 }
type SyncConfig struct {
	Schedule         string `json:"schedule,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
	RunOnStart       bool   `json:"run_on_start,omitempty"`
	MaxContentLength int    `json:"max_content_length,omitempty" validate:"gte=0"`
	Retention        int    `json:"retention,omitempty" validate:"gte=0,lte=10000"`
	KeepPending      bool   `json:"keep_pending,omitempty"`
}

// DeliveryConfig shapes notifications. Transport picks the sender; empty
// means webhook when webhook.url is set, else telegram.
type DeliveryConfig struct {
	Transport   string  `json:"transport,omitempty" validate:"omitempty,oneof=telegram webhook"`
	Delay       string  `json:"delay,omitempty"`
	Title       string  `json:"title,omitempty"`
	Color       string  `json:"color,omitempty"`
	Footer      string  `json:"footer,omitempty"`
	Mention     string  `json:"mention,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
	Burst       int     `json:"burst,omitempty" validate:"gte=0"`
	SendTimeout string  `json:"send_timeout,omitempty"`
	HistorySize int     `json:"history_size,omitempty" validate:"gte=0"`
}

type TelegramConfig struct {
	Token        string  `json:"token,omitempty"` // do not log
	ChatID       int64   `json:"chat_id,omitempty"`
	ThreadID     int     `json:"thread_id,omitempty" validate:"gte=0"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// Commands enables /status, /check and /help via long polling.
	Commands    bool   `json:"commands,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	APIURL      string `json:"api_url,omitempty" validate:"omitempty,http_url"`
}

type WebhookConfig struct {
	URL       string `json:"url,omitempty" validate:"omitempty,http_url"` // do not log
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,http_url"`
	Timeout   string `json:"timeout,omitempty"`
}

// StorageConfig controls state persistence. Changing it requires a restart.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/feedbridge.db", "import_from": "./last_post.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=file sqlite"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	ImportFrom  string `json:"import_from,omitempty"`
}

// SchedulerConfig controls the periodic trigger.
//
// Enabled is a pointer so an omitted field defaults to true while an
// explicit false still disables scheduled cycles.
type SchedulerConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"
}

func (s SchedulerConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// HTTPConfig controls the status/trigger API.
//
// Security note:
//   - Prefer binding to localhost (default "127.0.0.1:3000").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingTelegram forwards warn+ records to a chat. ChatID defaults to
// telegram.chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty" validate:"gte=0"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}
