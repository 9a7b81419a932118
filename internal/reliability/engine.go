package reliability

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
)

// Engine scores sources and serves their history.
type Engine struct {
	store        Store
	weights      Weights
	historyLimit int
	timeout      time.Duration
	log          *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryLimit caps the number of metrics returned by history calls.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates an Engine. The weights must be valid.
func NewEngine(store Store, w Weights, opts ...Option) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:        store,
		weights:      w,
		historyLimit: 10,
		log:          zap.L().With(zap.String("component", "reliability")),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Weights returns the engine's weights.
func (e *Engine) Weights() Weights {
	return e.weights
}

// CalculateReliabilityScore computes the composite score for the inputs,
// stores it as a new metric and makes it the source's current score.
func (e *Engine) CalculateReliabilityScore(ctx context.Context, sourceID string, in RawMetricInputs) (float64, error) {
	if strings.TrimSpace(sourceID) == "" {
		return 0, eris.Wrap(model.ErrInvalidInput, "reliability: source id is required")
	}

	m := Metric(sourceID, in, e.weights)

	ctx, cancel := db.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.store.RecordScore(ctx, &m); err != nil {
		return 0, err
	}

	e.log.Debug("reliability score recorded",
		zap.String("source_id", sourceID),
		zap.Float64("score", m.OverallScore),
	)
	return m.OverallScore, nil
}

// GetSourceReliabilityHistory returns the source's metrics, newest first.
// An unknown source is ErrNotFound; a known source without metrics has an
// empty history.
func (e *Engine) GetSourceReliabilityHistory(ctx context.Context, sourceID string) ([]model.ReliabilityMetric, error) {
	ctx, cancel := db.WithTimeout(ctx, e.timeout)
	defer cancel()

	h, err := e.store.History(ctx, sourceID, e.historyLimit)
	if err != nil || len(h) > 0 {
		return h, err
	}
	ok, err := e.store.SourceExists(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "source %s", sourceID)
	}
	return []model.ReliabilityMetric{}, nil
}

// Trends compares reliability across all sources measured at or after
// since. A zero since means the last DefaultTrendWindow.
func (e *Engine) Trends(ctx context.Context, since time.Time) (*Trends, error) {
	if since.IsZero() {
		since = time.Now().UTC().Add(-DefaultTrendWindow)
	}

	ctx, cancel := db.WithTimeout(ctx, e.timeout)
	defer cancel()

	ws, err := e.store.Window(ctx, since)
	if err != nil {
		return nil, err
	}

	t := &Trends{
		Since:          since,
		DataPoints:     ws.Count,
		AverageOverall: round2(ws.AverageOverall),
		Change:         ComputeTrend(ws.Latest),
	}
	if t.Change != nil {
		t.Change.DataPoints = ws.Count
	}
	return t, nil
}

// SourceTrend returns the trend of the source's two newest metrics, or nil
// when fewer than two exist.
func (e *Engine) SourceTrend(ctx context.Context, sourceID string) (*Trend, error) {
	h, err := e.GetSourceReliabilityHistory(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return ComputeTrend(h), nil
}
