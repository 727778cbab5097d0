// Package scheduler triggers registered jobs on cron or fixed-interval
// schedules.
//
// Jobs run on robfig/cron goroutines wrapped with SkipIfStillRunning, so a
// slow job never overlaps itself. Each run gets a context derived from the
// one passed to Start, bounded by the job's timeout.
package scheduler
