package notifier

import "time"

const (
	DefaultTitle       = "📱 New Post"
	DefaultColor       = 0x1877F2
	FallbackColor      = 0x5865F2
	DefaultSendTimeout = 15 * time.Second
	DefaultRatePerSec  = 1.0
	defaultHistory     = 50
)

type Config struct {
	Title   string
	Color   string // "#RRGGBB"
	Footer  string
	Mention string

	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
	HistorySize int
}

type HistoryItem struct {
	At      time.Time `json:"at"`
	ItemID  string    `json:"item"`
	Channel string    `json:"channel"`
	Error   string    `json:"error,omitempty"`
}

// NotificationEvent is published on the event bus after each send.
type NotificationEvent struct {
	Channel string    `json:"channel"`
	ItemID  string    `json:"item"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
