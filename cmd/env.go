package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/conflicts"
	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/patterns"
	"github.com/basarometer/sourcectl/internal/reliability"
	"github.com/basarometer/sourcectl/internal/resilience"
)

// appEnv holds the pool and every engine built on it. Callers should defer
// env.Close().
type appEnv struct {
	Pool        *pgxpool.Pool
	Tables      *heuristics.Tables
	Patterns    patterns.Store
	Discovery   *discovery.Engine
	Queue       *discovery.Queue
	Reliability *reliability.Engine
	Conflicts   *conflicts.Resolver
	Learner     *learning.Learner
}

// Close releases the connection pool.
func (e *appEnv) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// connect opens the pool and applies the schema.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// initEnv connects to the database and wires the engines.
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tables, err := heuristics.Load(cfg.Discovery.KeywordFile)
	if err != nil {
		return nil, err
	}

	pool, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Pool: pool, Tables: tables}

	timeout := time.Duration(cfg.Store.QueryTimeoutSecs) * time.Second
	businessType := cfg.Discovery.BusinessType

	env.Patterns = patterns.NewPostgresStore(pool)
	seeded, err := patterns.SeedFromTables(ctx, env.Patterns, tables, businessType)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "seed patterns")
	}
	if seeded > 0 {
		zap.L().Info("seeded extraction patterns", zap.Int("created", seeded))
	}

	matcher, err := patterns.Load(ctx, env.Patterns, patterns.Filter{BusinessType: businessType})
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load patterns")
	}

	weights := reliability.WeightsFromConfig(cfg.Reliability)
	env.Reliability, err = reliability.NewEngine(reliability.NewPostgresStore(pool), weights,
		reliability.WithHistoryLimit(cfg.Reliability.HistoryLimit),
		reliability.WithTimeout(timeout),
	)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Learner = learning.New(env.Patterns, tables, cfg.Learning, businessType, timeout)

	opts := []discovery.Option{
		discovery.WithPatternStore(env.Patterns),
		discovery.WithLearner(env.Learner),
		discovery.WithBusinessType(businessType),
		discovery.WithConcurrency(cfg.Discovery.SessionConcurrency),
		discovery.WithTimeout(timeout),
	}
	if cfg.Discovery.SeedReliabilityMetric {
		opts = append(opts, discovery.WithMetricSeeding(reliability.NewEvaluator(tables, businessType), weights))
	}

	sourceStore := discovery.NewPostgresStore(pool)
	env.Discovery = discovery.NewEngine(sourceStore, discovery.NewValidator(tables, matcher, cfg.Discovery), opts...)
	env.Queue = discovery.NewQueue(sourceStore, cfg.Discovery.PrioritizeBoost, timeout)

	env.Conflicts = conflicts.NewResolver(conflicts.NewPostgresStore(pool), cfg.Conflicts,
		conflicts.WithRetry(resilience.FromConfig(cfg.Retry)),
		conflicts.WithTimeout(timeout),
	)

	return env, nil
}
