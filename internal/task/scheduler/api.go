package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"feedbridge/internal/eventbus"
	logx "feedbridge/pkg/logx"
)

var (
	ErrNotStarted = errors.New("scheduler: not started")
	ErrUnknownJob = errors.New("scheduler: unknown schedule")
)

// JobResult is the Data payload of EventJobFinished.
type JobResult struct {
	Name  string
	Took  time.Duration
	Error string
}

// Add parses schedule and registers (or replaces) the named job.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) Add(name, schedule string, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Cron
	switch ps.Kind {
	case SpecCron:
		if _, err := s.parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid cron %q: %w", spec, err)
		}
	case SpecInterval:
		spec = "@every " + ps.Every.String()
	default:
		return fmt.Errorf("unsupported schedule kind")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name so hot reloads never duplicate a schedule.
	_ = s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		state:   &runState{},
	})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return err
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if d.startupSpread > 0 {
		args = append(args, logx.Duration("spread", d.startupSpread))
	}
	if next := s.previewNextRunsLocked(spec, 4); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return nil
}

// Remove unschedules the named job. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Trigger runs the named job now, outside its schedule, on a tracked
// goroutine. A run already in flight makes this a counted skip.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return ErrNotStarted
	}
	d, ok := s.findLocked(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, d)
	}()
	return nil
}

func (s *Service) runNamed(name string) {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return
	}
	d, ok := s.findLocked(name)
	ctx := s.ctx
	if ok {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	defer s.wg.Done()
	s.run(ctx, d)
}

func (s *Service) run(parent context.Context, d scheduleDef) {
	st := d.state
	if !st.running.CompareAndSwap(false, true) {
		st.skipped.Add(1)
		s.log.Debug("job still running; skipped", logx.String("name", d.name))
		s.publish(EventJobSkipped, JobResult{Name: d.name})
		return
	}
	defer st.running.Store(false)

	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("job panic", logx.String("name", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		return d.job(ctx)
	}()
	took := time.Since(start)

	st.runs.Add(1)
	st.mu.Lock()
	st.lastTook = took
	st.lastEnd = time.Now()
	st.lastErr = ""
	if err != nil {
		st.lastErr = err.Error()
	}
	st.mu.Unlock()

	res := JobResult{Name: d.name, Took: took}
	if err != nil {
		res.Error = err.Error()
		s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("job finished", logx.String("name", d.name), logx.Duration("took", took))
	}
	s.publish(EventJobFinished, res)
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (s *Service) findLocked(name string) (scheduleDef, bool) {
	for _, d := range s.defs {
		if d.name == name {
			return d, true
		}
	}
	return scheduleDef{}, false
}

// removeScheduleLocked removes all defs matching name and unregisters them from cron if running.
// Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// previewNextRunsLocked returns a short, human-friendly list of upcoming run times
// for the given cron spec. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
