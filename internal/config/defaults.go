package config

import "strings"

const (
	DefaultSchedule    = "*/10 * * * *"
	DefaultSyncTimeout = "5m"
	DefaultDelay       = "2s"
	DefaultStorePath   = "data/state.json"
	DefaultHTTPAddr    = "127.0.0.1:3000"
	DefaultLogLevel    = "info"

	TransportTelegram = "telegram"
	TransportWebhook  = "webhook"
)

// WithDefaults fills omitted fields with their runtime defaults. It never
// touches secrets.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.Source.Kind) == "" {
		c.Source.Kind = "feed"
	}
	if strings.TrimSpace(c.Sync.Schedule) == "" {
		c.Sync.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(c.Sync.Timeout) == "" {
		c.Sync.Timeout = DefaultSyncTimeout
	}
	if strings.TrimSpace(c.Delivery.Delay) == "" {
		c.Delivery.Delay = DefaultDelay
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStorePath
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Telegram.ChatID == 0 {
		c.Logging.Telegram.ChatID = c.Telegram.ChatID
	}
	return c
}

// Transport resolves delivery.transport: explicit value first, then webhook
// when a URL is configured, else telegram.
func (c *Config) Transport() string {
	if t := strings.ToLower(strings.TrimSpace(c.Delivery.Transport)); t != "" {
		return t
	}
	if strings.TrimSpace(c.Webhook.URL) != "" {
		return TransportWebhook
	}
	return TransportTelegram
}
