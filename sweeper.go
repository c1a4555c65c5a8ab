package authcore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically removes expired token records and inactive
// records past the retention window. One sweep failing is logged and
// counted; the schedule keeps running.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSweeper creates a sweeper on the engine's configured interval. The
// sweeper is idle until Start is called.
func NewSweeper(engine *Engine) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: engine.config.Sweeper.Interval,
		logger:   engine.logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The loop exits when ctx is cancelled or
// Stop is called; a sweep already in progress runs to completion first.
// Calling Start more than once is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Stop signals the loop to exit and blocks until it has. Safe to call
// multiple times, and safe before Start (the loop then never runs a
// sweep).
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.startOnce.Do(func() {
		close(s.done)
	})
	<-s.done
}

// RunNow executes a single sweep synchronously, outside the schedule.
func (s *Sweeper) RunNow(ctx context.Context) (CleanupResult, error) {
	return s.sweep(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.sweep(ctx); err != nil {
				s.logger.Warn("token sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) (CleanupResult, error) {
	s.engine.metricInc(MetricSweepRun)

	result, err := s.engine.CleanupExpired(ctx)
	if err != nil {
		s.engine.metricInc(MetricSweepFailure)
		return result, err
	}

	fields := []zap.Field{
		zap.Int("expired_removed", result.Expired),
		zap.Int("inactive_removed", result.Inactive),
	}
	if stats, statsErr := s.engine.TokenStats(ctx); statsErr == nil {
		fields = append(fields,
			zap.Int64("active", stats.Active),
			zap.Int64("inactive", stats.Inactive),
			zap.Int64("total", stats.Total))
	}
	s.logger.Info("token sweep completed", fields...)

	return result, nil
}
