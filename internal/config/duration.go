package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Durations holds the parsed duration fields. Zero means "component default"
// except DeliveryDelay, where an explicit "0s" disables the pause.
type Durations struct {
	SourceTimeout  time.Duration
	SyncTimeout    time.Duration
	DeliveryDelay  time.Duration
	SendTimeout    time.Duration
	PollTimeout    time.Duration
	WebhookTimeout time.Duration
	BusyTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// Durations parses every duration field, joining all errors.
func (c *Config) Durations() (Durations, error) {
	var (
		d    Durations
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string) {
		v, err := ParseDurationField(path, raw)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	parse(&d.SourceTimeout, "source.timeout", c.Source.Timeout)
	parse(&d.SyncTimeout, "sync.timeout", c.Sync.Timeout)
	parse(&d.DeliveryDelay, "delivery.delay", c.Delivery.Delay)
	parse(&d.SendTimeout, "delivery.send_timeout", c.Delivery.SendTimeout)
	parse(&d.PollTimeout, "telegram.poll_timeout", c.Telegram.PollTimeout)
	parse(&d.WebhookTimeout, "webhook.timeout", c.Webhook.Timeout)
	parse(&d.BusyTimeout, "storage.busy_timeout", c.Storage.BusyTimeout)
	parse(&d.ReadTimeout, "http.read_timeout", c.HTTP.ReadTimeout)
	parse(&d.WriteTimeout, "http.write_timeout", c.HTTP.WriteTimeout)
	parse(&d.IdleTimeout, "http.idle_timeout", c.HTTP.IdleTimeout)
	return d, errors.Join(errs...)
}
