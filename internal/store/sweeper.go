package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable is a store that removes its own expired records on request.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper periodically calls Sweep on a store until shut down.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(target Sweepable, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		target:   target,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// ErrSweeperStarted is returned by a second Start.
var ErrSweeperStarted = errors.New("sweeper already started")

// Start launches the sweep loop. A sweeper runs at most one loop.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSweeperStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)

	go s.loop(ctx)

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))

	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.target.Sweep(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("sweep failed", zap.Error(err))
		}

		return
	}

	if removed > 0 {
		s.logger.Debug("swept expired records", zap.Int("removed", removed))
	}
}

// Shutdown stops the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Shutdown() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-s.done

	return nil
}
