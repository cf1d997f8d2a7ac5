package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/kestrelhq/callflow/pkg/logging"
)

// Runner triggers dispatch cycles on a fixed interval. The locker keeps
// cycles single-flight even with multiple runner processes.
type Runner struct {
	dispatcher *Dispatcher
	locker     Locker
	interval   time.Duration
	logger     *logging.Logger
}

// NewRunner creates a cycle runner.
func NewRunner(dispatcher *Dispatcher, locker Locker, interval time.Duration, logger *logging.Logger) *Runner {
	if dispatcher == nil {
		panic("dispatch: dispatcher cannot be nil")
	}
	if locker == nil {
		locker = NoopLocker{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{dispatcher: dispatcher, locker: locker, interval: interval, logger: logger}
}

// Run dispatches immediately and then on every tick until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("dispatch runner stopping")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	release, err := r.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrCycleInFlight) {
			r.logger.Debug("dispatch runner: cycle already in flight, skipping tick")
			return
		}
		r.logger.Error("dispatch runner: lock acquire failed", "error", err)
		return
	}
	defer release()

	if _, err := r.dispatcher.RunCycle(ctx, TriggerSchedule); err != nil {
		r.logger.Error("dispatch runner: cycle failed", "error", err)
	}
}
