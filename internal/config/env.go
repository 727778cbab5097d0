package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. They win over the file so secrets can stay out of it.
const (
	EnvTelegramToken  = "FEEDBRIDGE_TELEGRAM_TOKEN"
	EnvTelegramChatID = "FEEDBRIDGE_TELEGRAM_CHAT_ID"
	EnvWebhookURL     = "FEEDBRIDGE_WEBHOOK_URL"
	EnvSourceURL      = "FEEDBRIDGE_SOURCE_URL"
	EnvHTTPToken      = "FEEDBRIDGE_HTTP_TOKEN"
	EnvHTTPAddr       = "FEEDBRIDGE_HTTP_ADDR"
	// EnvCheckInterval is a minute count, turned into "*/N * * * *".
	EnvCheckInterval = "FEEDBRIDGE_CHECK_INTERVAL"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays FEEDBRIDGE_* variables read through lookup
// (os.LookupEnv when nil).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q", EnvTelegramChatID, v)
		}
		cfg.Telegram.ChatID = id
	}
	if v, ok := get(EnvWebhookURL); ok {
		cfg.Webhook.URL = v
	}
	if v, ok := get(EnvSourceURL); ok {
		cfg.Source.URL = v
	}
	if v, ok := get(EnvHTTPToken); ok {
		cfg.HTTP.Token = v
	}
	if v, ok := get(EnvHTTPAddr); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := get(EnvCheckInterval); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 59 {
			return fmt.Errorf("%s: want minutes in 1..59, got %q", EnvCheckInterval, v)
		}
		cfg.Sync.Schedule = fmt.Sprintf("*/%d * * * *", n)
	}
	return nil
}
