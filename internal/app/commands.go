package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feedbridge/internal/feedsync"
	"feedbridge/internal/transport"
	logx "feedbridge/pkg/logx"
)

const helpText = `Commands:
/status - last check, pending items and the newest post
/check - run a sync cycle now
/help - this message`

// handleCommand answers owner chat commands.
func (a *App) handleCommand(ctx context.Context, c transport.Command) (string, error) {
	a.log.Info("command", logx.String("cmd", c.Name), logx.Int64("from", c.FromID))
	switch c.Name {
	case "status":
		return a.statusText(), nil
	case "check":
		res, err := a.sync.Run(ctx)
		if err != nil {
			return "", err
		}
		return resultText(res), nil
	case "help", "start":
		return helpText, nil
	default:
		return "Unknown command. Try /help", nil
	}
}

func (a *App) statusText() string {
	st := a.sync.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", a.sourceURL())
	fmt.Fprintf(&b, "Last check: %s\n", formatTime(st.LastCheckAt))
	if next := a.sched.NextRun(SyncJob); !next.IsZero() {
		fmt.Fprintf(&b, "Next check: %s\n", formatTime(next))
	}
	fmt.Fprintf(&b, "Items: %d (pending %d)\n", st.Total, st.Pending)
	if st.Running {
		b.WriteString("A cycle is running.\n")
	}
	if st.Latest != nil {
		mark := "pending"
		if st.Latest.Delivered {
			mark = "sent"
		}
		fmt.Fprintf(&b, "Latest [%s]: %s\n", mark, st.Latest.Preview)
	}
	if r := st.LastResult; r != nil {
		fmt.Fprintf(&b, "Last result: %s", r.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func resultText(res feedsync.CycleResult) string {
	if res.Pending > 0 {
		return fmt.Sprintf("%s Pending: %d.", res.Message, res.Pending)
	}
	return res.Message
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}
