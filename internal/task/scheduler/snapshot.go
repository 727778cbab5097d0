package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.cfg.Timezone
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{
			Name:          d.name,
			Spec:          d.spec,
			Timeout:       d.timeout,
			StartupSpread: d.startupSpread,
			Running:       d.state.running.Load(),
			Runs:          d.state.runs.Load(),
			Skipped:       d.state.skipped.Load(),
		}
		d.state.mu.Lock()
		it.LastError = d.state.lastErr
		it.LastDuration = d.state.lastTook
		it.LastFinished = d.state.lastEnd
		d.state.mu.Unlock()
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
			// cron fills Next asynchronously after Start.
			if it.Next.IsZero() && e.Schedule != nil {
				it.Next = e.Schedule.Next(time.Now().In(loc))
			}
		}
		items = append(items, it)
	}

	return Snapshot{
		Enabled:   enabled,
		Started:   c != nil,
		Timezone:  tz,
		Schedules: items,
	}
}

// NextRun returns the next trigger time of the named schedule, or zero.
func (s *Service) NextRun(name string) time.Time {
	for _, it := range s.Snapshot().Schedules {
		if it.Name == name {
			return it.Next
		}
	}
	return time.Time{}
}
