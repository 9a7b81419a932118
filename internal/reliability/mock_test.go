package reliability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/model"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu       sync.Mutex
	sources  map[string]float64
	metrics  []model.ReliabilityMetric
	nextID   int64
	clock    time.Time
	failWith error
}

func newMockStore(sourceIDs ...string) *mockStore {
	m := &mockStore{sources: make(map[string]float64), clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, id := range sourceIDs {
		m.sources[id] = 0
	}
	return m
}

func (m *mockStore) RecordScore(_ context.Context, metric *model.ReliabilityMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.sources[metric.SourceID]; !ok {
		return eris.Wrapf(model.ErrNotFound, "source %s", metric.SourceID)
	}
	m.nextID++
	m.clock = m.clock.Add(time.Hour)
	metric.ID = m.nextID
	metric.MeasuredAt = m.clock
	m.sources[metric.SourceID] = metric.OverallScore
	m.metrics = append(m.metrics, *metric)
	return nil
}

func (m *mockStore) History(_ context.Context, sourceID string, limit int) ([]model.ReliabilityMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ReliabilityMetric
	for _, metric := range m.metrics {
		if metric.SourceID == sourceID {
			out = append(out, metric)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeasuredAt.After(out[j].MeasuredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) Window(_ context.Context, since time.Time) (*WindowStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}
	var in []model.ReliabilityMetric
	var sum float64
	for _, metric := range m.metrics {
		if !metric.MeasuredAt.Before(since) {
			in = append(in, metric)
			sum += metric.OverallScore
		}
	}
	ws := &WindowStats{Count: len(in)}
	if len(in) == 0 {
		return ws, nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].MeasuredAt.After(in[j].MeasuredAt) })
	ws.AverageOverall = sum / float64(len(in))
	ws.Latest = in[:min(2, len(in))]
	return ws, nil
}

func (m *mockStore) SourceExists(_ context.Context, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return false, m.failWith
	}
	_, ok := m.sources[sourceID]
	return ok, nil
}
