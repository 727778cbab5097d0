package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedbridge/internal/eventbus"
	"feedbridge/internal/post"
	"feedbridge/internal/transport"
	logx "feedbridge/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	got  []transport.Notification
	err  error
	wait time.Duration
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(ctx context.Context, n transport.Notification) error {
	if f.wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.wait):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, n)
	return nil
}

var item = post.Item{
	ID:         "https://e.com/p/1",
	Content:    "hello",
	MediaRef:   "https://cdn.e.com/1.jpg",
	ObservedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func TestDeliverBuildsNotification(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	svc := New(Config{Title: "New Post from Page", Color: "#FF0000", Footer: "feedbridge", Mention: "@everyone", RatePerSec: 100}, s, logx.Nop(), bus)

	require.NoError(t, svc.Deliver(context.Background(), item))
	require.Len(t, s.got, 1)
	n := s.got[0]
	assert.Equal(t, "New Post from Page", n.Title)
	assert.Equal(t, "hello", n.Body)
	assert.Equal(t, item.ID, n.URL)
	assert.Equal(t, item.MediaRef, n.MediaRef)
	assert.Equal(t, 0xFF0000, n.Color)
	assert.Equal(t, "@everyone", n.Mention)
	assert.True(t, n.Timestamp.Equal(item.ObservedAt))

	e := <-events
	assert.Equal(t, eventbus.NotifySent, e.Type)
	h := svc.History()
	require.Len(t, h, 1)
	assert.Equal(t, "fake", h[0].Channel)
}

func TestDeliverFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("503")
	svc := New(Config{RatePerSec: 100}, &fakeSender{err: boom}, logx.Nop(), nil)
	err := svc.Deliver(context.Background(), item)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fake")
	assert.Equal(t, "503", svc.History()[0].Error)
}

func TestDeliverWithoutSender(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, logx.Nop(), nil)
	require.ErrorIs(t, svc.Deliver(context.Background(), item), ErrNotConfigured)

	svc.SetSender(&fakeSender{})
	require.NoError(t, svc.Deliver(context.Background(), item))
}

func TestDeliverSendTimeout(t *testing.T) {
	t.Parallel()
	svc := New(Config{SendTimeout: 20 * time.Millisecond, RatePerSec: 100}, &fakeSender{wait: time.Second}, logx.Nop(), nil)
	err := svc.Deliver(context.Background(), item)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, logx.Nop(), nil)
	n := svc.Build(post.Item{ID: "https://e.com/p/2", Content: "x"})
	assert.Equal(t, DefaultTitle, n.Title)
	assert.Equal(t, DefaultColor, n.Color)
	assert.False(t, n.Timestamp.IsZero())
}

func TestParseColor(t *testing.T) {
	t.Parallel()
	cases := map[string]int{
		"":         DefaultColor,
		"#1877F2":  0x1877F2,
		"00ff00":   0x00FF00,
		"0xABCDEF": 0xABCDEF,
		"#12345":   FallbackColor,
		"#GGGGGG":  FallbackColor,
		"blue":     FallbackColor,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseColor(in), in)
	}
}
