package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"feedbridge/internal/task/scheduler"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		// Report dotted JSON paths ("sync.retention") instead of Go field names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// ValidationError lists every problem found in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks struct tags, duration strings, the timezone, the schedule
// and that the selected transport has what it needs. cfg should already
// carry defaults and env overrides.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("invalid config: nil")
	}
	var probs []string

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			probs = append(probs, describe(fe))
		}
	}

	if _, err := cfg.Durations(); err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				probs = append(probs, e.Error())
			}
		} else {
			probs = append(probs, err.Error())
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			probs = append(probs, fmt.Sprintf("scheduler.timezone: unknown zone %q", tz))
		}
	}
	if s := strings.TrimSpace(cfg.Sync.Schedule); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			probs = append(probs, "sync.schedule: "+err.Error())
		}
	}

	switch cfg.Transport() {
	case TransportWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			probs = append(probs, "webhook.url: required for webhook transport (or set "+EnvWebhookURL+")")
		}
	case TransportTelegram:
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			probs = append(probs, "telegram.token: required for telegram transport (or set "+EnvTelegramToken+")")
		}
		if cfg.Telegram.ChatID == 0 {
			probs = append(probs, "telegram.chat_id: required for telegram transport (or set "+EnvTelegramChatID+")")
		}
	}
	if cfg.Logging.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			probs = append(probs, "logging.telegram: needs telegram.token")
		}
		if cfg.Logging.Telegram.ChatID == 0 && cfg.Telegram.ChatID == 0 {
			probs = append(probs, "logging.telegram.chat_id: required")
		}
	}
	if cfg.Telegram.Commands && strings.TrimSpace(cfg.Telegram.Token) == "" {
		probs = append(probs, "telegram.commands: needs telegram.token")
	}

	if len(probs) == 0 {
		return nil
	}
	sort.Strings(probs)
	return &ValidationError{Problems: probs}
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.sync.retention"; drop the root type.
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return path + ": required"
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", path, fe.Param())
	case "http_url":
		return path + ": must be an http(s) URL"
	case "hostname_port":
		return path + ": must be host:port"
	case "gte", "lte":
		return fmt.Sprintf("%s: must be %s %s", path, map[string]string{"gte": ">=", "lte": "<="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", path, fe.Tag())
	}
}
