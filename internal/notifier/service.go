package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"feedbridge/internal/eventbus"
	"feedbridge/internal/post"
	"feedbridge/internal/transport"
	logx "feedbridge/pkg/logx"
)

var ErrNotConfigured = errors.New("notifier: no sender configured")

// Service is safe for concurrent use, though the sync core calls it from a
// single goroutine.
type Service struct {
	log logx.Logger
	bus eventbus.Bus
	now func() time.Time

	mu      sync.Mutex
	cfg     Config
	color   int
	sender  transport.Sender
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		now:    time.Now,
		sender: sender,
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the presentation and pacing settings.
func (s *Service) Apply(cfg Config) {
	if strings.TrimSpace(cfg.Title) == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.color = ParseColor(cfg.Color)
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	} else {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
		s.limiter.SetBurst(cfg.Burst)
	}
}

func (s *Service) SetSender(sender transport.Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Build renders the notification for it.
func (s *Service) Build(it post.Item) transport.Notification {
	s.mu.Lock()
	cfg, color := s.cfg, s.color
	s.mu.Unlock()
	ts := it.ObservedAt
	if ts.IsZero() {
		ts = s.now()
	}
	return transport.Notification{
		Title:     cfg.Title,
		Body:      it.Content,
		URL:       it.ID,
		MediaRef:  it.MediaRef,
		Color:     color,
		Footer:    cfg.Footer,
		Mention:   cfg.Mention,
		Timestamp: ts,
	}
}

// Deliver sends one item. It is the delivery function of the sync core.
func (s *Service) Deliver(ctx context.Context, it post.Item) error {
	s.mu.Lock()
	sender, limiter, timeout := s.sender, s.limiter, s.cfg.SendTimeout
	s.mu.Unlock()
	if sender == nil {
		return ErrNotConfigured
	}
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	started := s.now()
	err := sender.Send(sctx, s.Build(it))

	ev := NotificationEvent{Channel: sender.Name(), ItemID: it.ID, At: s.now()}
	if err != nil {
		ev.Error = err.Error()
		s.record(ev)
		eventbus.Publish(s.bus, eventbus.NotifyFailed, ev)
		return fmt.Errorf("%s: %w", sender.Name(), err)
	}
	s.record(ev)
	eventbus.Publish(s.bus, eventbus.NotifySent, ev)
	s.log.Debug("notification sent", logx.String("channel", ev.Channel), logx.String("item", it.ID), logx.Duration("took", s.now().Sub(started)))
	return nil
}

func (s *Service) record(ev NotificationEvent) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{At: ev.At, ItemID: ev.ItemID, Channel: ev.Channel, Error: ev.Error})
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}

// History returns recent sends, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// ParseColor reads "#RRGGBB". Empty input yields DefaultColor and anything
// unparsable yields FallbackColor.
func ParseColor(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultColor
	}
	v = strings.TrimPrefix(strings.TrimPrefix(v, "#"), "0x")
	if len(v) != 6 {
		return FallbackColor
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return FallbackColor
	}
	return int(n)
}
