package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
	"github.com/basarometer/sourcectl/internal/reliability"
)

// Learner receives the sources a session inserted.
type Learner interface {
	LearnFromDiscoveries(ctx context.Context, ds []learning.Discovery) (*learning.LearnResult, error)
}

// Engine runs discovery sessions.
type Engine struct {
	store        Store
	validator    *Validator
	patterns     patterns.Store
	learner      Learner
	evaluator    *reliability.Evaluator
	weights      reliability.Weights
	businessType string
	concurrency  int
	timeout      time.Duration
	log          *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatternStore enables pattern usage accounting.
func WithPatternStore(s patterns.Store) Option {
	return func(e *Engine) { e.patterns = s }
}

// WithLearner feeds inserted sources to l.
func WithLearner(l Learner) Option {
	return func(e *Engine) { e.learner = l }
}

// WithMetricSeeding stores a first reliability metric for every inserted
// source and uses its overall score as the initial reliability score.
func WithMetricSeeding(ev *reliability.Evaluator, w reliability.Weights) Option {
	return func(e *Engine) {
		e.evaluator = ev
		e.weights = w
	}
}

// WithBusinessType sets the business type given to candidates that declare none.
func WithBusinessType(bt string) Option {
	return func(e *Engine) { e.businessType = bt }
}

// WithConcurrency bounds concurrent candidate validation.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates an Engine.
func NewEngine(store Store, v *Validator, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		validator:   v,
		concurrency: 8,
		log:         zap.L().With(zap.String("component", "discovery")),
	}
	for _, o := range opts {
		o(e)
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	return e
}

// ValidateSingleSource judges one candidate without storing anything.
func (e *Engine) ValidateSingleSource(c Candidate) ValidationResult {
	return e.validator.ValidateSingleSource(c)
}

// RefreshPatterns reloads the active patterns of the engine's business type
// into the validator. It is a no-op without a pattern store.
func (e *Engine) RefreshPatterns(ctx context.Context) error {
	if e.patterns == nil {
		return nil
	}
	lctx, cancel := db.WithTimeout(ctx, e.timeout)
	defer cancel()

	m, err := patterns.Load(lctx, e.patterns, patterns.Filter{BusinessType: e.businessType})
	if err != nil {
		return eris.Wrap(err, "discovery: refresh patterns")
	}
	e.validator.SetMatcher(m)
	e.log.Debug("patterns refreshed", zap.Int("active", m.Len()))
	return nil
}

type sessionOpts struct {
	method model.DiscoveryMethod
}

// SessionOption configures one session.
type SessionOption func(*sessionOpts)

// Manual marks the session's sources as submitted by an admin.
func Manual() SessionOption {
	return func(o *sessionOpts) { o.method = model.DiscoveryManual }
}

type entry struct {
	candidate Candidate
	url       string
	result    ValidationResult
}

// RunDiscoverySession validates candidates and inserts the valid ones with
// status discovered. Duplicate URLs, within the batch or already stored, are
// skipped. All valid candidates are inserted in one transaction: a storage
// failure fails the session and inserts nothing. The active patterns are
// reloaded first, so patterns deactivated or learned since the previous
// session take effect. Pattern usage accounting and learning run after the
// insert and only log their failures.
func (e *Engine) RunDiscoverySession(ctx context.Context, candidates []Candidate, opts ...SessionOption) (*SessionResult, error) {
	so := sessionOpts{method: model.DiscoveryAutomatic}
	for _, o := range opts {
		o(&so)
	}

	createCtx, cancel := db.WithTimeout(ctx, e.timeout)
	sessionID, err := e.store.CreateSession(createCtx, len(candidates), so.method)
	cancel()
	if err != nil {
		return nil, err
	}

	log := e.log.With(zap.String("session_id", sessionID))
	if err := e.RefreshPatterns(ctx); err != nil {
		log.Warn("using previously loaded patterns", zap.Error(err))
	}
	log.Info("discovery session started",
		zap.Int("candidates", len(candidates)),
		zap.String("method", string(so.method)),
	)

	res, err := e.runSession(ctx, log, sessionID, candidates, so)
	if err != nil {
		failCtx, cancel := db.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		if ferr := e.store.FailSession(failCtx, sessionID, err.Error()); ferr != nil {
			log.Error("recording session failure failed", zap.Error(ferr))
		}
		cancel()
		log.Error("discovery session failed", zap.Error(err))
		return nil, err
	}

	doneCtx, cancel := db.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.store.CompleteSession(doneCtx, sessionID, res); err != nil {
		log.Warn("recording session completion failed", zap.Error(err))
	}

	log.Info("discovery session complete",
		zap.Int("valid", res.Valid),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Float64("avg_confidence", res.AvgConfidence),
	)
	return res, nil
}

func (e *Engine) runSession(ctx context.Context, log *zap.Logger, sessionID string, candidates []Candidate, so sessionOpts) (*SessionResult, error) {
	res := &SessionResult{SessionID: sessionID, Total: len(candidates)}
	var batch model.BatchResult

	// Dedup within the batch.
	seen := make(map[string]bool)
	var entries []*entry
	for _, c := range candidates {
		u := NormalizeURL(c.URL)
		if u != "" && seen[u] {
			batch.Skip(u, "duplicate in session")
			res.Duplicates++
			continue
		}
		seen[u] = true
		entries = append(entries, &entry{candidate: c, url: u})
	}

	// Dedup against stored sources.
	urls := make([]string, 0, len(entries))
	for _, en := range entries {
		if en.url != "" {
			urls = append(urls, en.url)
		}
	}
	existCtx, cancel := db.WithTimeout(ctx, e.timeout)
	existing, err := e.store.ExistingURLs(existCtx, urls)
	cancel()
	if err != nil {
		return nil, err
	}
	fresh := entries[:0]
	for _, en := range entries {
		if existing[en.url] {
			batch.Skip(en.url, "already known")
			res.Duplicates++
			continue
		}
		fresh = append(fresh, en)
	}
	entries = fresh

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, en := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			en.result = e.validator.ValidateSingleSource(en.candidate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "discovery: validate candidates")
	}

	var (
		sources []model.Source
		metrics []model.ReliabilityMetric
		valid   []*entry
	)
	now := time.Now().UTC()
	for _, en := range entries {
		if !en.result.IsValid {
			batch.Skip(en.url, "invalid: "+strings.Join(en.result.Reasons, "; "))
			continue
		}
		res.Valid++
		src := e.newSource(en, sessionID, so.method, now)
		if e.evaluator != nil {
			m := reliability.Metric(src.ID, e.evaluator.Evaluate(evidence(en, src)), e.weights)
			m.MeasuredAt = now
			src.ReliabilityScore = m.OverallScore
			metrics = append(metrics, m)
		}
		sources = append(sources, src)
		valid = append(valid, en)
	}

	insertCtx, cancel := db.WithTimeout(ctx, e.timeout)
	ids, err := e.store.InsertSources(insertCtx, sources, metrics)
	cancel()
	if err != nil {
		return nil, err
	}

	inserted := make(map[string]bool, len(ids))
	for _, id := range ids {
		inserted[id] = true
	}
	var learned []learning.Discovery
	var confSum float64
	for i, src := range sources {
		if !inserted[src.ID] {
			batch.Skip(src.URL, "already known")
			res.Duplicates++
			continue
		}
		batch.Succeed(src.URL, src.ID)
		res.Inserted++
		res.SourceIDs = append(res.SourceIDs, src.ID)
		confSum += valid[i].result.Confidence
		learned = append(learned, learning.Discovery{
			Name:              src.Name,
			URL:               src.URL,
			Categories:        src.ProductCategories,
			QualityIndicators: src.QualityIndicators,
			Confidence:        valid[i].result.Confidence,
		})
	}
	if res.Inserted > 0 {
		res.AvgConfidence = confSum / float64(res.Inserted)
	}

	e.recordUsage(ctx, log, entries)
	e.learn(ctx, log, learned)

	res.Summary = batch.Summarize()
	res.Outcomes = batch.Outcomes
	return res, nil
}

func (e *Engine) newSource(en *entry, sessionID string, method model.DiscoveryMethod, now time.Time) model.Source {
	c := en.candidate
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = hostOf(c.URL)
	}
	bt := c.BusinessType
	if bt == "" {
		bt = e.businessType
	}

	notes := fmt.Sprintf("auto-discovered with %.0f%% confidence", en.result.Confidence*100)
	if method == model.DiscoveryManual {
		notes = fmt.Sprintf("submitted manually, %.0f%% confidence", en.result.Confidence*100)
	}

	return model.Source{
		ID:                uuid.NewString(),
		URL:               en.url,
		Name:              name,
		Location:          strings.TrimSpace(c.Location),
		DiscoveryMethod:   method,
		BusinessType:      bt,
		ReliabilityScore:  InitialScore(en.result, name),
		Status:            model.SourceStatusDiscovered,
		ProductCategories: nonNil(en.result.Categories),
		QualityIndicators: nonNil(en.result.QualityIndicators),
		AdminNotes:        notes,
		SessionID:         sessionID,
		DiscoveredAt:      now,
		UpdatedAt:         now,
	}
}

// InitialScore is the starting reliability score of a source when no first
// metric is seeded: its confidence as a percentage plus small bonuses for
// an in-language name and for each category and quality indicator.
func InitialScore(r ValidationResult, name string) float64 {
	score := r.Confidence * 100
	if heuristics.HasHebrew(name) {
		score += 10
	}
	score += float64(len(r.Categories)) * 5
	score += float64(len(r.QualityIndicators)) * 5
	return model.ClampScore(score)
}

func evidence(en *entry, src model.Source) reliability.DiscoveryEvidence {
	return reliability.DiscoveryEvidence{
		Name:              src.Name,
		URL:               en.candidate.URL,
		Location:          src.Location,
		BusinessType:      src.BusinessType,
		Categories:        src.ProductCategories,
		QualityIndicators: src.QualityIndicators,
		Confidence:        en.result.Confidence,
		HasContact:        en.candidate.HasContact,
	}
}

// recordUsage counts one use per validated candidate for every pattern that
// fired, and one success when the candidate was valid.
func (e *Engine) recordUsage(ctx context.Context, log *zap.Logger, entries []*entry) {
	if e.patterns == nil {
		return
	}

	type tally struct{ uses, successes int64 }
	counts := make(map[string]*tally)
	for _, en := range entries {
		for _, id := range en.result.PatternIDs {
			t, ok := counts[id]
			if !ok {
				t = &tally{}
				counts[id] = t
			}
			t.uses++
			if en.result.IsValid {
				t.successes++
			}
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := counts[id]
		uctx, cancel := db.WithTimeout(ctx, e.timeout)
		err := e.patterns.AddUsage(uctx, id, t.uses, t.successes)
		cancel()
		if err != nil {
			log.Warn("recording pattern usage failed", zap.String("pattern_id", id), zap.Error(err))
		}
	}
}

func (e *Engine) learn(ctx context.Context, log *zap.Logger, ds []learning.Discovery) {
	if e.learner == nil || len(ds) == 0 {
		return
	}
	res, err := e.learner.LearnFromDiscoveries(ctx, ds)
	if err != nil {
		log.Warn("pattern learning failed", zap.Error(err))
		return
	}
	if res != nil && res.Created > 0 {
		if err := e.RefreshPatterns(ctx); err != nil {
			log.Warn("learned patterns not loaded", zap.Error(err))
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
