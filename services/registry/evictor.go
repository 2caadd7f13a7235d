package registry

import (
	// Go Internal Packages
	"context"
	"time"

	// External Packages
	"go.uber.org/zap"
)

// Evictor periodically flushes refreshed timestamps and evicts stale accounts. It is
// owned by the composition root; the registry itself never schedules work.
type Evictor struct {
	registry *Registry
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
}

func NewEvictor(registry *Registry, interval, maxAge time.Duration, logger *zap.Logger) *Evictor {
	return &Evictor{registry: registry, interval: interval, maxAge: maxAge, logger: logger}
}

// Run blocks until ctx is cancelled.
func (e *Evictor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

func (e *Evictor) RunOnce(ctx context.Context) {
	if err := e.registry.Flush(ctx); err != nil {
		e.logger.Warn("failed to flush observed accounts", zap.Error(err))
	}
	if _, err := e.registry.Evict(ctx, e.maxAge); err != nil {
		e.logger.Warn("failed to evict observed accounts", zap.Error(err))
	}
}
