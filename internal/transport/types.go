// Package transport defines the outbound notification model shared by the
// delivery adapters.
package transport

import (
	"context"
	"time"
)

// Notification is the fixed layout every adapter renders.
type Notification struct {
	Title     string
	Body      string
	URL       string
	MediaRef  string
	Color     int // 0xRRGGBB
	Footer    string
	Mention   string
	Timestamp time.Time
}

// Sender delivers one notification. A nil error means the downstream
// channel accepted it.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Command is an inbound chat command, already split into name and args.
type Command struct {
	Name     string
	Args     []string
	Target   ChatTarget
	FromID   int64
	FromName string
}

// CommandHandler answers a command. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, c Command) (reply string, err error)

// Truncate cuts s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
