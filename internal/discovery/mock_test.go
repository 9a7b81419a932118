package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu          sync.Mutex
	sources     map[string]*model.Source
	metrics     []model.ReliabilityMetric
	sessionID   string
	completed   []*SessionResult
	failed      []string
	insertErr   error
	existingErr error
	sessions    []Session
	sessionsErr error
}

func newMockStore(existing ...model.Source) *mockStore {
	m := &mockStore{sources: make(map[string]*model.Source), sessionID: "session-1"}
	for i := range existing {
		src := existing[i]
		m.sources[src.ID] = &src
	}
	return m
}

func (m *mockStore) CreateSession(_ context.Context, _ int, _ model.DiscoveryMethod) (string, error) {
	return m.sessionID, nil
}

func (m *mockStore) CompleteSession(_ context.Context, _ string, r *SessionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, r)
	return nil
}

func (m *mockStore) FailSession(_ context.Context, sessionID string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, sessionID)
	return nil
}

func (m *mockStore) ListSessions(_ context.Context, since time.Time, limit int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionsErr != nil {
		return nil, m.sessionsErr
	}
	var out []Session
	for _, ss := range m.sessions {
		if !ss.StartedAt.Before(since) {
			out = append(out, ss)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) ExistingURLs(_ context.Context, urls []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.existingErr != nil {
		return nil, m.existingErr
	}
	found := make(map[string]bool)
	for _, u := range urls {
		if m.byURL(u) != nil {
			found[u] = true
		}
	}
	return found, nil
}

func (m *mockStore) byURL(u string) *model.Source {
	for _, s := range m.sources {
		if s.URL == u {
			return s
		}
	}
	return nil
}

func (m *mockStore) InsertSources(_ context.Context, sources []model.Source, metrics []model.ReliabilityMetric) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return nil, m.insertErr
	}
	var ids []string
	for i := range sources {
		src := sources[i]
		if m.byURL(src.URL) != nil {
			continue
		}
		m.sources[src.ID] = &src
		ids = append(ids, src.ID)
		for _, mt := range metrics {
			if mt.SourceID == src.ID {
				m.metrics = append(m.metrics, mt)
			}
		}
	}
	return ids, nil
}

func (m *mockStore) Transition(_ context.Context, id string, to model.SourceStatus, from []model.SourceStatus, notes string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if src.Status == st {
			src.Status = to
			if notes != "" {
				src.AdminNotes = notes
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) Boost(_ context.Context, id string, delta float64, notes string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return 0, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	src.ReliabilityScore = min(100, src.ReliabilityScore+delta)
	if notes != "" {
		src.AdminNotes = notes
	}
	return src.ReliabilityScore, nil
}

func (m *mockStore) Get(_ context.Context, id string) (*model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	cp := *src
	return &cp, nil
}

func (m *mockStore) List(_ context.Context, opts ListOpts) ([]model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Source
	for _, s := range m.sources {
		if opts.Status != nil && s.Status != *opts.Status {
			continue
		}
		if opts.MinScore != nil && s.ReliabilityScore < *opts.MinScore {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReliabilityScore > out[j].ReliabilityScore })
	return out, nil
}

func (m *mockStore) CountByStatus(_ context.Context) ([]StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[model.SourceStatus]*StatusCount)
	for _, s := range m.sources {
		c, ok := counts[s.Status]
		if !ok {
			c = &StatusCount{Status: s.Status}
			counts[s.Status] = c
		}
		c.Count++
		c.AvgScore += s.ReliabilityScore
	}
	var out []StatusCount
	for _, c := range counts {
		c.AvgScore /= float64(c.Count)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

// fakeLearner records what it was asked to learn.
type fakeLearner struct {
	mu   sync.Mutex
	seen []learning.Discovery
	err  error
}

func (f *fakeLearner) LearnFromDiscoveries(_ context.Context, ds []learning.Discovery) (*learning.LearnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, ds...)
	if f.err != nil {
		return nil, f.err
	}
	return &learning.LearnResult{Proposed: len(ds)}, nil
}

// failingPatterns is a MemoryStore whose listing can be made to fail.
type failingPatterns struct {
	*patterns.MemoryStore
	listErr error
}

func (f *failingPatterns) ListActive(ctx context.Context, flt patterns.Filter) ([]model.ExtractionPattern, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryStore.ListActive(ctx, flt)
}
