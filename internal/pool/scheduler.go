package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// Rotator is the slice of the Manager the scheduler needs.
type Rotator interface {
	Rotate(ctx context.Context, trigger model.RotationTrigger) (model.ActiveInfo, error)
}

// Scheduler fires scheduled rotations on a fixed period. The timer is
// re-armed only after the previous rotation returns, so ticks never
// overlap: the effective period is max(interval, rotation duration).
type Scheduler struct {
	rotator  Rotator
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. An interval of zero or less disables
// it; Run returns immediately.
func NewScheduler(rotator Rotator, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{rotator: rotator, interval: interval, logger: logger}
}

// Run drives the rotation timer until ctx is cancelled. A failed
// rotation is logged and the timer re-armed; the next tick retries.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	s.logger.Info("auto-rotation enabled", "interval", s.interval)
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto-rotation stopped")
			return
		case <-timer.C:
			if _, err := s.rotator.Rotate(ctx, model.TriggerScheduled); err != nil {
				s.logger.Warn("scheduled rotation failed", "error", err)
			}
			timer.Reset(s.interval)
		}
	}
}
