// Package learning tunes extraction patterns from their usage statistics and
// proposes new patterns from successful discoveries.
package learning

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
)

// Thresholds control the optimization sweep.
type Thresholds struct {
	MinUses       int64
	LowSuccess    float64
	HighSuccess   float64
	MaxConfidence float64
}

// ThresholdsFromConfig converts the learning config section.
func ThresholdsFromConfig(c config.LearningConfig) Thresholds {
	return Thresholds{
		MinUses:       c.MinUses,
		LowSuccess:    c.LowSuccess,
		HighSuccess:   c.HighSuccess,
		MaxConfidence: c.MaxConfidence,
	}
}

// Learner runs pattern performance reporting, optimization and learning.
type Learner struct {
	store        patterns.Store
	tables       *heuristics.Tables
	cfg          config.LearningConfig
	businessType string
	timeout      time.Duration
	log          *zap.Logger
}

// New creates a Learner.
func New(store patterns.Store, tables *heuristics.Tables, cfg config.LearningConfig, businessType string, timeout time.Duration) *Learner {
	return &Learner{
		store:        store,
		tables:       tables,
		cfg:          cfg,
		businessType: businessType,
		timeout:      timeout,
		log:          zap.L().With(zap.String("component", "learning")),
	}
}

// TypePerformance is the aggregate performance of one pattern type.
type TypePerformance struct {
	patterns.TypeStats
	SuccessRate float64 `json:"success_rate"`
}

// GetPatternPerformance returns usage statistics grouped by pattern type.
// The success rate of a type with no uses is 0.
func (l *Learner) GetPatternPerformance(ctx context.Context) ([]TypePerformance, error) {
	ctx, cancel := db.WithTimeout(ctx, l.timeout)
	defer cancel()

	stats, err := l.store.PerformanceByType(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]TypePerformance, len(stats))
	for i, st := range stats {
		out[i] = TypePerformance{
			TypeStats:   st,
			SuccessRate: model.SuccessRate(st.TotalSuccesses, st.TotalUses),
		}
	}
	return out, nil
}

// ActionKind is what the sweep does to a pattern.
type ActionKind string

const (
	ActionDeactivate ActionKind = "deactivate"
	ActionBoost      ActionKind = "boost"
)

// Action is one planned change.
type Action struct {
	PatternID   string     `json:"pattern_id"`
	Kind        ActionKind `json:"kind"`
	SuccessRate float64    `json:"success_rate"`
	From        float64    `json:"from_confidence"`
	To          float64    `json:"to_confidence,omitempty"`
}

// BoostTarget is the confidence a high performer is raised to: its success
// rate as a percentage, capped at maxConfidence.
func BoostTarget(rate, maxConfidence float64) float64 {
	return math.Min(maxConfidence, math.Round(rate*10000)/100)
}

// PlanOptimization decides the changes for the given patterns. Inactive
// patterns and patterns below the usage minimum are left alone, so a plan
// built from an already optimized set is empty.
func PlanOptimization(ps []model.ExtractionPattern, th Thresholds) []Action {
	var actions []Action
	for _, p := range ps {
		if !p.Active || p.TimesUsed <= 0 || p.TimesUsed < th.MinUses {
			continue
		}
		rate := p.SuccessRate()
		switch {
		case rate < th.LowSuccess:
			actions = append(actions, Action{
				PatternID: p.ID, Kind: ActionDeactivate, SuccessRate: rate, From: p.ConfidenceScore,
			})
		case rate > th.HighSuccess:
			target := BoostTarget(rate, th.MaxConfidence)
			if p.ConfidenceScore < target {
				actions = append(actions, Action{
					PatternID: p.ID, Kind: ActionBoost, SuccessRate: rate,
					From: p.ConfidenceScore, To: target,
				})
			}
		}
	}
	return actions
}

// OptimizeResult summarizes one sweep.
type OptimizeResult struct {
	Examined    int           `json:"examined"`
	Deactivated int           `json:"deactivated"`
	Boosted     int           `json:"boosted"`
	Actions     []Action      `json:"actions"`
	Summary     model.Summary `json:"summary"`
}

// OptimizePatterns deactivates active patterns with enough uses whose success
// rate is below the low threshold and raises the confidence of those above
// the high threshold. Running it twice with no new usage changes nothing the
// second time. A failure on one pattern does not stop the sweep.
func (l *Learner) OptimizePatterns(ctx context.Context) (*OptimizeResult, error) {
	th := ThresholdsFromConfig(l.cfg)

	listCtx, cancel := db.WithTimeout(ctx, l.timeout)
	ps, err := l.store.ListForOptimization(listCtx, th.MinUses)
	cancel()
	if err != nil {
		return nil, err
	}

	actions := PlanOptimization(ps, th)
	res := &OptimizeResult{Examined: len(ps), Actions: actions}

	var batch model.BatchResult
	for _, a := range actions {
		changed, err := l.apply(ctx, a)
		switch {
		case err != nil:
			l.log.Warn("pattern optimization failed", zap.String("pattern_id", a.PatternID), zap.Error(err))
			batch.Fail(a.PatternID, err)
		case !changed:
			batch.Skip(a.PatternID, "changed concurrently")
		default:
			batch.Succeed(a.PatternID, string(a.Kind))
			if a.Kind == ActionDeactivate {
				res.Deactivated++
			} else {
				res.Boosted++
			}
		}
	}
	res.Summary = batch.Summarize()

	l.log.Info("pattern optimization complete",
		zap.Int("examined", res.Examined),
		zap.Int("deactivated", res.Deactivated),
		zap.Int("boosted", res.Boosted),
		zap.Int("failed", res.Summary.Failed),
	)
	return res, nil
}

func (l *Learner) apply(ctx context.Context, a Action) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, l.timeout)
	defer cancel()

	if a.Kind == ActionDeactivate {
		return l.store.Deactivate(ctx, a.PatternID)
	}
	return l.store.RaiseConfidence(ctx, a.PatternID, a.To)
}
