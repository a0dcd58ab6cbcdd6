package mutation

import (
	"context"
	"log/slog"

	"arcsync/cmd/internal/querycache"
	"arcsync/cmd/internal/telemetry"
)

// Outcomes recorded in arcsync_mutation_total.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// Options describes one mutation. Mutate is required.
type Options[V, R any] struct {
	Name string
	Key  querycache.Key
	// Related keys are invalidated together with Key on settle.
	Related []querycache.Key

	Mutate func(ctx context.Context, vars V) (R, error)
	// Optimistic receives a private copy of the current data and returns
	// the data to publish while Mutate runs. Skipped when Key holds no data.
	Optimistic func(current querycache.Data, vars V) (querycache.Data, error)

	OnOptimisticApply func(vars V, applied querycache.Data)
	OnRollback        func(vars V, err error)
	OnSettle          func(vars V, result R, err error)
}

// Mutation runs Options against a cache. Safe for concurrent use.
type Mutation[V, R any] struct {
	opts    Options[V, R]
	cache   *querycache.Cache
	log     *slog.Logger
	metrics *telemetry.Metrics
}

type settings struct {
	log     *slog.Logger
	metrics *telemetry.Metrics
}

// Option customizes a Mutation.
type Option func(*settings)

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// New binds opts to cache.
func New[V, R any](cache *querycache.Cache, opts Options[V, R], options ...Option) *Mutation[V, R] {
	s := settings{log: slog.New(slog.DiscardHandler)}
	for _, o := range options {
		o(&s)
	}
	if opts.Name == "" {
		opts.Name = opts.Key.Endpoint
	}
	return &Mutation[V, R]{opts: opts, cache: cache, log: s.log, metrics: s.metrics}
}

// Mutate runs the mutation for vars.
func (m *Mutation[V, R]) Mutate(ctx context.Context, vars V) (R, error) {
	key := m.opts.Key
	snapshot, had := m.cache.Data(key)

	applied := false
	if m.opts.Optimistic != nil && had {
		next, err := m.opts.Optimistic(snapshot.Clone(), vars)
		if err != nil {
			m.log.Warn("mutation.optimistic_skipped", "mutation", m.opts.Name, "err", err)
		} else {
			m.cache.SetData(key, next)
			applied = true
			if m.opts.OnOptimisticApply != nil {
				m.opts.OnOptimisticApply(vars, next.Clone())
			}
		}
	}

	result, err := m.opts.Mutate(ctx, vars)

	switch {
	case err == nil:
		m.metrics.IncMutation(m.opts.Name, OutcomeCommitted)
	case applied:
		m.cache.SetData(key, snapshot)
		m.metrics.IncMutation(m.opts.Name, OutcomeRolledBack)
		m.log.Info("mutation.rolled_back", "mutation", m.opts.Name, "key", key.String(), "err", err)
		if m.opts.OnRollback != nil {
			m.opts.OnRollback(vars, err)
		}
	default:
		m.metrics.IncMutation(m.opts.Name, OutcomeFailed)
	}

	m.cache.Invalidate(append([]querycache.Key{key}, m.opts.Related...)...)
	if m.opts.OnSettle != nil {
		m.opts.OnSettle(vars, result, err)
	}
	return result, err
}
