package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/conflicts"
	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/reliability"
)

type fakeDiscovery struct {
	mu        sync.Mutex
	sessions  [][]discovery.Candidate
	optCount  int
	stored    []discovery.Session
	lastDays  int
	lastLimit int
}

func (f *fakeDiscovery) ValidateSingleSource(c discovery.Candidate) discovery.ValidationResult {
	valid := c.Name != ""
	res := discovery.ValidationResult{IsValid: valid}
	if valid {
		res.Confidence = 0.8
	}
	return res
}

func (f *fakeDiscovery) RunDiscoverySession(_ context.Context, cs []discovery.Candidate, opts ...discovery.SessionOption) (*discovery.SessionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, cs)
	f.optCount = len(opts)
	return &discovery.SessionResult{SessionID: "session-1", Total: len(cs), Valid: len(cs), Inserted: len(cs)}, nil
}

func (f *fakeDiscovery) ListSessions(_ context.Context, days, limit int) ([]discovery.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDays, f.lastLimit = days, limit
	out := f.stored
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDiscovery) Performance(_ context.Context, days int) (*discovery.Performance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDays = days
	if days <= 0 {
		days = discovery.DefaultPerformanceDays
	}
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
	p := discovery.SummarizeSessions(f.stored, days, since)
	return &p, nil
}

// fakeQueue keeps statuses and scores in memory.
type fakeQueue struct {
	mu       sync.Mutex
	sources  map[string]*model.Source
	lastOpts discovery.ListOpts
	listErr  error
}

func newFakeQueue(srcs ...model.Source) *fakeQueue {
	q := &fakeQueue{sources: make(map[string]*model.Source)}
	for i := range srcs {
		s := srcs[i]
		q.sources[s.ID] = &s
	}
	return q
}

func (q *fakeQueue) move(id string, to model.SourceStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	src, ok := q.sources[id]
	if !ok {
		return eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	if !src.Status.CanTransition(to) {
		return eris.Wrapf(model.ErrIllegalTransition, "source %s is %s, cannot become %s", id, src.Status, to)
	}
	src.Status = to
	return nil
}

func (q *fakeQueue) Approve(_ context.Context, id, _ string) error {
	return q.move(id, model.SourceStatusApproved)
}

func (q *fakeQueue) Reject(_ context.Context, id, _ string) error {
	return q.move(id, model.SourceStatusRejected)
}

func (q *fakeQueue) MarkValidated(_ context.Context, id, _ string) error {
	return q.move(id, model.SourceStatusValidated)
}

func (q *fakeQueue) Prioritize(_ context.Context, id, _ string) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	src, ok := q.sources[id]
	if !ok {
		return 0, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	src.ReliabilityScore = model.ClampScore(src.ReliabilityScore + 10)
	return src.ReliabilityScore, nil
}

func (q *fakeQueue) Get(_ context.Context, id string) (*model.Source, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	src, ok := q.sources[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	cp := *src
	return &cp, nil
}

func (q *fakeQueue) List(_ context.Context, opts discovery.ListOpts) ([]model.Source, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastOpts = opts
	if q.listErr != nil {
		return nil, q.listErr
	}
	var out []model.Source
	for _, s := range q.sources {
		if opts.Status == nil || s.Status == *opts.Status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (q *fakeQueue) Stats(_ context.Context) ([]discovery.StatusCount, error) {
	return []discovery.StatusCount{{Status: model.SourceStatusDiscovered, Count: int64(len(q.sources))}}, nil
}

type fakeReliability struct {
	history map[string][]model.ReliabilityMetric
	trends  *reliability.Trends
	since   time.Time
}

func (f *fakeReliability) CalculateReliabilityScore(_ context.Context, id string, in reliability.RawMetricInputs) (float64, error) {
	if _, ok := f.history[id]; !ok {
		return 0, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	return reliability.Score(in, reliability.DefaultWeights()), nil
}

func (f *fakeReliability) GetSourceReliabilityHistory(_ context.Context, id string) ([]model.ReliabilityMetric, error) {
	h, ok := f.history[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	return h, nil
}

func (f *fakeReliability) Trends(_ context.Context, since time.Time) (*reliability.Trends, error) {
	f.since = since
	if f.trends == nil {
		return nil, errors.New("metrics unavailable")
	}
	return f.trends, nil
}

type fakeConflicts struct {
	mu        sync.Mutex
	conflicts map[string]*model.PriceConflict
	ingested  []model.PriceObservation
}

func newFakeConflicts(cs ...model.PriceConflict) *fakeConflicts {
	f := &fakeConflicts{conflicts: make(map[string]*model.PriceConflict)}
	for i := range cs {
		c := cs[i]
		f.conflicts[c.ID] = &c
	}
	return f
}

func (f *fakeConflicts) DetectPriceConflicts(_ context.Context) ([]model.PriceConflict, error) {
	return nil, nil
}

func (f *fakeConflicts) ResolveConflict(_ context.Context, id string, method model.ResolutionMethod) (*conflicts.Resolution, error) {
	if method == model.ResolutionManual {
		return nil, eris.Wrap(model.ErrInvalidInput, "manual resolution needs a price and notes")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	applied := !c.Resolved
	c.Resolved = true
	return &conflicts.Resolution{ConflictID: id, Method: method, ResolvedPrice: c.PriceA, Applied: applied}, nil
}

func (f *fakeConflicts) ResolveManually(_ context.Context, id string, price float64, notes, _ string) (bool, error) {
	if price <= 0 || notes == "" {
		return false, eris.Wrap(model.ErrInvalidInput, "resolution requires both a price and notes")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return false, eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	if c.Resolved {
		return false, nil
	}
	c.Resolved = true
	return true, nil
}

func (f *fakeConflicts) ResolveAllPendingConflicts(_ context.Context) (*model.Summary, error) {
	return nil, errors.New("pool closed")
}

func (f *fakeConflicts) GetConflictResolutionStats(_ context.Context) (*conflicts.Stats, error) {
	return &conflicts.Stats{Total: int64(len(f.conflicts))}, nil
}

func (f *fakeConflicts) Get(_ context.Context, id string) (*model.PriceConflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConflicts) ListPending(_ context.Context, _ int) ([]model.PriceConflict, error) {
	return nil, nil
}

func (f *fakeConflicts) IngestObservations(_ context.Context, obs []model.PriceObservation) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, obs...)
	return int64(len(obs)), nil
}

type fakeLearning struct{}

func (fakeLearning) GetPatternPerformance(_ context.Context) ([]learning.TypePerformance, error) {
	return nil, nil
}

func (fakeLearning) OptimizePatterns(_ context.Context) (*learning.OptimizeResult, error) {
	return &learning.OptimizeResult{Examined: 3, Deactivated: 1}, nil
}
