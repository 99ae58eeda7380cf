package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/milestonesync/internal/logging"
)

// NextRun returns the first occurrence of hour:00 in loc strictly after now.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

// NextScan returns when the daily scan runs next, or the zero time when
// reminders are disabled.
func (s *Scheduler) NextScan() time.Time {
	if s.disabled != nil {
		return time.Time{}
	}
	return NextRun(s.now(), s.hour, s.loc)
}

// Run scans once a day at the configured local hour until ctx ends. Scan
// errors are logged and the loop continues. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.disabled != nil {
		s.logger.Info("reminder scheduler disabled", logging.Err(s.disabled))
		<-ctx.Done()
		return nil
	}

	for {
		next := NextRun(s.now(), s.hour, s.loc)
		s.logger.Info("next reminder scan scheduled", slog.Time("at", next))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		res, err := s.RunDailyCheck(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.logger.Error("reminder scan failed", logging.Err(err))
		}
		if s.onScan != nil {
			s.onScan(res, err)
		}
	}
}
