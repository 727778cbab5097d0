package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval jobs registered together would otherwise all fire on the same
// tick. Each one gets a one-off delay before its first run, derived from its
// name so a restart lands on roughly the same offset.
const maxStartupSpread = 30 * time.Second

// delayedStart fires first at first, then every interval after that.
type delayedStart struct {
	every cron.ConstantDelaySchedule
	first time.Time
}

func (s delayedStart) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}

// startupSpread is the extra first-run delay for the named job: whole
// seconds in [0, min(every, maxStartupSpread)).
func startupSpread(name string, every time.Duration) time.Duration {
	secs := uint64(min(every, maxStartupSpread) / time.Second)
	if secs == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return time.Duration(h.Sum64()%secs) * time.Second
}

func intervalSchedule(name string, every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	spread := startupSpread(name, every)
	return delayedStart{every: cron.Every(every), first: now.Add(every + spread)}, spread
}
