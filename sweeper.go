package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Sweep deletes expired or revoked sessions and expired blacklist entries once.
// The Redis backends expire keys natively and report zero. Both sweeps run even
// when the first fails; the first error is returned.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if !e.ready() {
		return SweepResult{}, ErrEngineNotReady
	}

	var result SweepResult
	var errs []error

	n, err := e.sessions.Sweep(ctx)
	if err != nil {
		errs = append(errs, storageError(err))
	}
	result.Sessions = n

	n, err = e.revocations.Sweep(ctx)
	if err != nil {
		errs = append(errs, storageError(err))
	}
	result.Blacklist = n

	if result.Sessions > 0 {
		e.metrics.Add(MetricSweepSessions, uint64(result.Sessions))
	}
	if result.Blacklist > 0 {
		e.metrics.Add(MetricSweepBlacklist, uint64(result.Blacklist))
	}
	if len(errs) > 0 {
		e.metricInc(MetricStorageError)
		return result, errs[0]
	}
	return result, nil
}

// RunSweeper calls Sweep every Config.Sweeper.Interval until ctx is done. It
// returns immediately when the interval is zero. Sweep errors are logged, not
// returned, so one failing round does not stop the loop.
func (e *Engine) RunSweeper(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	interval := e.config.Sweeper.Interval
	if interval <= 0 {
		return nil
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-t.C:
			res, err := e.Sweep(ctx)
			if err != nil {
				e.logger.Warn("sweep failed", zap.Error(err))
				continue
			}
			if res.Sessions > 0 || res.Blacklist > 0 {
				e.logger.Info("sweep completed",
					zap.Int64("sessions", res.Sessions),
					zap.Int64("blacklist", res.Blacklist))
			}
		}
	}
}
