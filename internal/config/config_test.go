package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
  "source": {"kind": "feed", "url": "https://example.com/feed.xml"},
  "sync": {"schedule": "*/10 * * * *", "retention": 20},
  "delivery": {"delay": "2s", "title": "New post"},
  "telegram": {"token": "123:abc", "chat_id": -100123},
  "storage": {"driver": "file", "path": "./state.json"},
  "http": {"enabled": true, "addr": "127.0.0.1:3000"},
  "logging": {"level": "info", "console": true}
}`

const validYAML = `
source:
  kind: feed
  url: https://example.com/feed.xml
sync:
  schedule: "*/10 * * * *"
  retention: 20
delivery:
  delay: 2s
  title: New post
telegram:
  token: "123:abc"
  chat_id: -100123
storage:
  driver: file
  path: ./state.json
http:
  enabled: true
  addr: 127.0.0.1:3000
logging:
  level: info
  console: true
`

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDecodeJSONAndYAMLAgree(t *testing.T) {
	j, err := Decode("config.json", []byte(validJSON))
	require.NoError(t, err)
	y, err := Decode("config.yaml", []byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, j, y)
	assert.Equal(t, int64(-100123), y.Telegram.ChatID)
}

func TestDecodeIsStrict(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"source": {"url": "https://x.test", "bogus": 1}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")

	_, err = Decode("c.json", []byte(`{} {}`))
	require.ErrorContains(t, err, "trailing data")

	_, err = Decode("c.yml", []byte("sync:\n  nope: true\n"))
	require.Error(t, err)

	_, err = Decode("c.yaml", []byte(""))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	err := ApplyEnv(cfg, envMap(map[string]string{
		EnvTelegramToken:  " 999:xyz ",
		EnvTelegramChatID: "-42",
		EnvWebhookURL:     "https://hooks.example.com/abc",
		EnvSourceURL:      "https://example.com/page",
		EnvHTTPToken:      "tok",
		EnvCheckInterval:  "15",
	}))
	require.NoError(t, err)
	assert.Equal(t, "999:xyz", cfg.Telegram.Token)
	assert.Equal(t, int64(-42), cfg.Telegram.ChatID)
	assert.Equal(t, "https://hooks.example.com/abc", cfg.Webhook.URL)
	assert.Equal(t, "https://example.com/page", cfg.Source.URL)
	assert.Equal(t, "tok", cfg.HTTP.Token)
	assert.Equal(t, "*/15 * * * *", cfg.Sync.Schedule)

	require.Error(t, ApplyEnv(&Config{}, envMap(map[string]string{EnvTelegramChatID: "abc"})))
	require.Error(t, ApplyEnv(&Config{}, envMap(map[string]string{EnvCheckInterval: "0"})))

	// empty values never clear file settings
	kept := &Config{Telegram: TelegramConfig{Token: "file"}}
	require.NoError(t, ApplyEnv(kept, envMap(map[string]string{EnvTelegramToken: "  "})))
	assert.Equal(t, "file", kept.Telegram.Token)
}

func TestLoadDotEnvIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	p := writeFile(t, dir, "test.env", "FEEDBRIDGE_TEST_DOTENV=hello\n")
	t.Setenv("FEEDBRIDGE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("FEEDBRIDGE_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(p))
	assert.Equal(t, "hello", os.Getenv("FEEDBRIDGE_TEST_DOTENV"))
}

func TestWithDefaultsAndTransport(t *testing.T) {
	cfg := Config{Telegram: TelegramConfig{ChatID: 7}}.WithDefaults()
	assert.Equal(t, "feed", cfg.Source.Kind)
	assert.Equal(t, DefaultSchedule, cfg.Sync.Schedule)
	assert.Equal(t, DefaultDelay, cfg.Delivery.Delay)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, DefaultStorePath, cfg.Storage.Path)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTP.Addr)
	assert.Equal(t, int64(7), cfg.Logging.Telegram.ChatID)
	assert.True(t, cfg.Scheduler.IsEnabled())
	assert.Equal(t, TransportTelegram, cfg.Transport())

	cfg.Webhook.URL = "https://hooks.example.com/x"
	assert.Equal(t, TransportWebhook, cfg.Transport())
	cfg.Delivery.Transport = "Telegram"
	assert.Equal(t, TransportTelegram, cfg.Transport())

	off := false
	assert.False(t, SchedulerConfig{Enabled: &off}.IsEnabled())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Decode("c.json", []byte(validJSON))
		require.NoError(t, err)
		out := c.WithDefaults()
		return &out
	}
	require.NoError(t, Validate(base()))

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.Source.URL = "" }, "source.url: required"},
		{"bad url", func(c *Config) { c.Source.URL = "ftp://x" }, "source.url"},
		{"bad kind", func(c *Config) { c.Source.Kind = "rss" }, "source.kind: must be one of"},
		{"negative retention", func(c *Config) { c.Sync.Retention = -1 }, "sync.retention"},
		{"bad duration", func(c *Config) { c.Delivery.Delay = "soon" }, "delivery.delay: invalid duration"},
		{"bad schedule", func(c *Config) { c.Sync.Schedule = "whenever" }, "sync.schedule"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"telegram token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"webhook url", func(c *Config) { c.Delivery.Transport = TransportWebhook }, "webhook.url"},
		{"bad addr", func(c *Config) { c.HTTP.Addr = "nope" }, "http.addr"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := Validate(c)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("collects every problem", func(t *testing.T) {
		c := base()
		c.Source.URL = ""
		c.Sync.Timeout = "x"
		var verr *ValidationError
		require.ErrorAs(t, Validate(c), &verr)
		assert.Len(t, verr.Problems, 2)
	})
}

func TestDurations(t *testing.T) {
	c := &Config{Delivery: DeliveryConfig{Delay: "0s", SendTimeout: "15s"}, HTTP: HTTPConfig{IdleTimeout: "1m"}}
	d, err := c.Durations()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d.DeliveryDelay)
	assert.Equal(t, 15*time.Second, d.SendTimeout)
	assert.Equal(t, time.Minute, d.IdleTimeout)

	c.Sync.Timeout = "-1s"
	c.Webhook.Timeout = "abc"
	_, err = c.Durations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.timeout")
	assert.Contains(t, err.Error(), "webhook.timeout")
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "old-secret"}, Sync: SyncConfig{MaxContentLength: 500}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "new-secret"}, Sync: SyncConfig{MaxContentLength: 600}}

	ch := SummarizeChange(oldCfg, newCfg)
	assert.Equal(t, []string{"sync", "telegram"}, ch.Sections)
	assert.Equal(t, []string{"telegram"}, ch.RestartRequired)
	assert.False(t, ch.Empty())
	assert.True(t, SummarizeChange(oldCfg, oldCfg).Empty())

	retention := SummarizeChange(&Config{Sync: SyncConfig{Retention: 20}}, &Config{Sync: SyncConfig{Retention: 30}})
	assert.Equal(t, []string{"sync"}, retention.RestartRequired)

	webhookSwap := SummarizeChange(&Config{}, &Config{Webhook: WebhookConfig{URL: "https://hooks.example.com/s3cret"}})
	assert.Equal(t, []string{"webhook"}, webhookSwap.Sections)
}

func TestManagerLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", validJSON)

	m := NewConfigManager(p)
	m.SetEnvLookup(envMap(map[string]string{EnvHTTPToken: "from-env"}))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.HTTP.Token)
	assert.Same(t, cfg, m.Get())

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	published, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, published, "unchanged content must not publish")

	writeFile(t, dir, "config.json", strings.Replace(validJSON, `"retention": 20`, `"retention": 25`, 1))
	published, err = m.Reload(context.Background())
	require.NoError(t, err)
	require.True(t, published)
	got := <-sub
	assert.Equal(t, 25, got.Sync.Retention)

	writeFile(t, dir, "config.json", strings.Replace(validJSON, `"retention": 20`, `"retention": -5`, 1))
	_, err = m.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, 25, m.Get().Sync.Retention)

	m.SetValidator(func(context.Context, *Config) error { return assert.AnError })
	writeFile(t, dir, "config.json", strings.Replace(validJSON, `"retention": 20`, `"retention": 26`, 1))
	_, err = m.Reload(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}

func TestManagerSlowSubscriberGetsNewest(t *testing.T) {
	m := NewConfigManager("unused.json")
	sub := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-sub)
	m.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
}

func TestWatchPublishesOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", validYAML)
	m := NewConfigManager(p)
	m.SetEnvLookup(noEnv)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "config.yaml", strings.Replace(validYAML, "level: info", "level: debug", 1))

	select {
	case got := <-sub:
		assert.Equal(t, "debug", got.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}
