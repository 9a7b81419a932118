// Package jobs runs the periodic maintenance passes: conflict detection,
// batch resolution and pattern optimization.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/model"
)

// ConflictJobs detects and resolves conflicts.
type ConflictJobs interface {
	DetectPriceConflicts(ctx context.Context) ([]model.PriceConflict, error)
	ResolveAllPendingConflicts(ctx context.Context) (*model.Summary, error)
}

// PatternJobs tunes extraction patterns.
type PatternJobs interface {
	OptimizePatterns(ctx context.Context) (*learning.OptimizeResult, error)
}

// Pass names used in Report.Errors.
const (
	PassDetect   = "detect"
	PassResolve  = "resolve"
	PassOptimize = "optimize"
	PassReload   = "reload"
)

// Report is the outcome of one round. A failed pass leaves its field nil
// and an entry in Errors.
type Report struct {
	Detected     int                      `json:"detected"`
	Resolution   *model.Summary           `json:"resolution,omitempty"`
	Optimization *learning.OptimizeResult `json:"optimization,omitempty"`
	Errors       map[string]string        `json:"errors,omitempty"`
}

// Runner runs maintenance rounds on an interval.
type Runner struct {
	conflicts ConflictJobs
	patterns  PatternJobs
	reload    func(context.Context) error
	interval  time.Duration
	log       *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithPatternReload calls f after an optimization pass that deactivated or
// boosted a pattern, so consumers of the pattern store pick up the change.
func WithPatternReload(f func(context.Context) error) Option {
	return func(r *Runner) { r.reload = f }
}

// NewRunner creates a Runner. Either dependency may be nil to skip its passes.
func NewRunner(c ConflictJobs, p PatternJobs, cfg config.JobsConfig, opts ...Option) *Runner {
	interval := time.Duration(cfg.IntervalMins) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	r := &Runner{
		conflicts: c,
		patterns:  p,
		interval:  interval,
		log:       zap.L().With(zap.String("component", "jobs")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes a round immediately and then once per interval. It blocks
// until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("starting job runner", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("job runner stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs one round. Conflict resolution follows detection; pattern
// optimization runs alongside. A failing pass never stops the others.
func (r *Runner) RunOnce(ctx context.Context) *Report {
	rep := &Report{}
	var mu sync.Mutex
	fail := func(pass string, err error) {
		r.log.Error("job pass failed", zap.String("pass", pass), zap.Error(err))
		mu.Lock()
		defer mu.Unlock()
		if rep.Errors == nil {
			rep.Errors = make(map[string]string)
		}
		rep.Errors[pass] = err.Error()
	}

	var g errgroup.Group

	if r.conflicts != nil {
		g.Go(func() error {
			created, err := r.conflicts.DetectPriceConflicts(ctx)
			if err != nil {
				fail(PassDetect, err)
			}
			if ctx.Err() != nil {
				return nil
			}
			summary, err := r.conflicts.ResolveAllPendingConflicts(ctx)
			if err != nil {
				fail(PassResolve, err)
			}
			mu.Lock()
			rep.Detected = len(created)
			rep.Resolution = summary
			mu.Unlock()
			return nil
		})
	}

	if r.patterns != nil {
		g.Go(func() error {
			res, err := r.patterns.OptimizePatterns(ctx)
			if err != nil {
				fail(PassOptimize, err)
				return nil
			}
			if r.reload != nil && res.Deactivated+res.Boosted > 0 {
				if err := r.reload(ctx); err != nil {
					fail(PassReload, err)
				}
			}
			mu.Lock()
			rep.Optimization = res
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	fields := []zap.Field{zap.Int("detected", rep.Detected), zap.Int("failed_passes", len(rep.Errors))}
	if rep.Resolution != nil {
		fields = append(fields, zap.Int("resolved", rep.Resolution.Succeeded))
	}
	if rep.Optimization != nil {
		fields = append(fields,
			zap.Int("deactivated", rep.Optimization.Deactivated),
			zap.Int("boosted", rep.Optimization.Boosted),
		)
	}
	r.log.Info("job round complete", fields...)
	return rep
}
