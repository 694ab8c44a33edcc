package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Runnable represents a component that can be started and shutdown.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// Group starts and stops runnables together and closes their shared resource last.
type Group struct {
	runnables []Runnable
	closer    io.Closer
	logger    *zap.Logger
}

// NewGroup creates a new group. closer may be nil.
func NewGroup(closer io.Closer, logger *zap.Logger) *Group {
	return &Group{
		closer: closer,
		logger: logger,
	}
}

// Add registers a runnable to the group.
func (g *Group) Add(r Runnable) {
	g.runnables = append(g.runnables, r)
}

// Start starts all runnables in order. On failure the ones already started are shut down.
func (g *Group) Start(ctx context.Context) error {
	for i, r := range g.runnables {
		if err := r.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.runnables[j].Shutdown()
			}

			return fmt.Errorf("failed to start runnable %d: %w", i, err)
		}
	}

	g.logger.Info("group started", zap.Int("count", len(g.runnables)))

	return nil
}

// Shutdown stops every runnable, then closes the shared resource. All errors are joined.
func (g *Group) Shutdown() error {
	g.logger.Info("shutting down group")

	var errs []error

	for _, r := range g.runnables {
		if err := r.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}

	if g.closer != nil {
		if err := g.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
