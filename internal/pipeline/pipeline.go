// Package pipeline executes single logical writes against the remote API
// and applies their declared invalidation footprints. Each mutation names
// the cache patterns it makes stale, so the footprint of every write is
// auditable and testable independent of any UI wiring.
package pipeline

import (
	"context"
	"log/slog"
)

// Invalidator is the slice of the cache the pipeline needs. The resource
// store implements it.
type Invalidator interface {
	Invalidate(pattern string)
}

// Instrumentation counts mutation outcomes. The metrics recorder implements
// it; nil disables reporting.
type Instrumentation interface {
	Mutation(operation, outcome string)
}

// Pipeline applies mutations. It performs exactly one network attempt per
// call: writes are not assumed idempotent, and a duplicated POST could
// create a duplicate rule.
type Pipeline struct {
	cache   Invalidator
	logger  *slog.Logger
	metrics Instrumentation
}

// New builds a pipeline over the given cache.
func New(cache Invalidator, logger *slog.Logger, metrics Instrumentation) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{cache: cache, logger: logger, metrics: metrics}
}

// Operation is one declared write: its name, its invalidation footprint,
// and the transport call that performs it.
type Operation[T any] struct {
	Name        string
	Invalidates []string
	Send        func(ctx context.Context) (T, error)
}

// Execute sends the write. On success every declared pattern is invalidated
// before the response is returned, so a subsequent read of any affected key
// refetches. On failure no cache entry is touched and the normalized error
// is returned as-is.
func Execute[T any](ctx context.Context, p *Pipeline, op Operation[T]) (T, error) {
	result, err := op.Send(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.Mutation(op.Name, "error")
		}
		p.logger.Debug("mutation failed", slog.String("operation", op.Name), slog.Any("error", err))
		var zero T
		return zero, err
	}
	for _, pattern := range op.Invalidates {
		p.cache.Invalidate(pattern)
	}
	if p.metrics != nil {
		p.metrics.Mutation(op.Name, "ok")
	}
	p.logger.Debug("mutation applied",
		slog.String("operation", op.Name), slog.Any("invalidates", op.Invalidates))
	return result, nil
}
