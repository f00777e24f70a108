package anomaly

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler fires a full scan once a day at a fixed hour. It runs on its own
// goroutine, never on a request path, and each run gets a bounded deadline
// so a wedged collaborator cannot pin the loop.
type Scheduler struct {
	orch    *Orchestrator
	hour    int
	timeout time.Duration
	log     zerolog.Logger
}

func NewScheduler(orch *Orchestrator, hour int, log zerolog.Logger) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 2
	}
	return &Scheduler{
		orch:    orch,
		hour:    hour,
		timeout: time.Hour,
		log:     log,
	}
}

// Run blocks until ctx is cancelled, scanning at the configured hour.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := time.Until(s.nextRun(time.Now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.log.Info().Msg("scheduled anomaly scan starting")
		scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
		s.orch.ScanAll(scanCtx)
		cancel()
	}
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
