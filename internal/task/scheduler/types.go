package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"feedbridge/internal/eventbus"
	logx "feedbridge/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Event types published on the bus.
const (
	EventJobFinished = "scheduler.job.finished"
	EventJobSkipped  = "scheduler.job.skipped"
)

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"
}

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

type runState struct {
	running  atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
	mu       sync.Mutex
	lastErr  string
	lastTook time.Duration
	lastEnd  time.Time
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	state         *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// base context for job runs, set by Start.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ScheduleInfo struct {
	Name          string
	Spec          string
	Timeout       time.Duration
	StartupSpread time.Duration
	Next          time.Time
	Prev          time.Time
	Running       bool
	Runs          uint64
	Skipped       uint64
	LastError     string
	LastDuration  time.Duration
	LastFinished  time.Time
}

type Snapshot struct {
	Enabled   bool
	Started   bool
	Timezone  string
	Schedules []ScheduleInfo
}
