package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the expiry sweep once per minute.
const DefaultSweepSchedule = "@every 1m"

// sweepTimeout bounds one sweep run against a slow backend.
const sweepTimeout = 30 * time.Second

// Sweeper periodically removes expired sessions. It runs independently of
// request traffic; lazy-read expiry already hides anything it has not yet
// deleted, so the schedule is a hygiene knob, not a correctness one.
type Sweeper struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper schedules CleanupExpiredSessions on the manager. An empty
// schedule uses DefaultSweepSchedule.
func NewSweeper(m *Manager, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		n, err := m.CleanupExpiredSessions(ctx)
		if err != nil {
			logger.Warn("session sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("expired sessions removed", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return &Sweeper{cron: c, logger: logger}, nil
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
