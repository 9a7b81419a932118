package patterns

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/model"
)

// MemoryStore is an in-process Store. It backs offline validation, where no
// database is configured, and engine tests.
type MemoryStore struct {
	mu       sync.Mutex
	patterns map[string]*model.ExtractionPattern
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patterns: make(map[string]*model.ExtractionPattern)}
}

func (m *MemoryStore) sorted() []*model.ExtractionPattern {
	out := make([]*model.ExtractionPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) findKey(t model.PatternType, value string, role model.PatternRole, bt string) *model.ExtractionPattern {
	for _, p := range m.patterns {
		if p.Type == t && p.Value == value && p.Role == role && p.BusinessType == bt {
			return p
		}
	}
	return nil
}

// ListActive implements Store.
func (m *MemoryStore) ListActive(_ context.Context, f Filter) ([]model.ExtractionPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ExtractionPattern
	for _, p := range m.sorted() {
		if !p.Active ||
			(f.Type != "" && p.Type != f.Type) ||
			(f.Role != "" && p.Role != f.Role) ||
			(f.BusinessType != "" && p.BusinessType != f.BusinessType) {
			continue
		}
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConfidenceScore > out[j].ConfidenceScore })
	return out, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.ExtractionPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patterns[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "pattern %s", id)
	}
	cp := *p
	return &cp, nil
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, p *model.ExtractionPattern) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findKey(p.Type, p.Value, p.Role, p.BusinessType) != nil {
		return false, nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Active = true
	cp := *p
	m.patterns[p.ID] = &cp
	return true, nil
}

// Put stores p as given, replacing any pattern with the same id.
func (m *MemoryStore) Put(p model.ExtractionPattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[p.ID] = &p
}

// AddUsage implements Store.
func (m *MemoryStore) AddUsage(_ context.Context, id string, uses, successes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uses < successes || successes < 0 {
		return eris.Wrapf(model.ErrInvalidInput, "pattern %s: %d successes out of %d uses", id, successes, uses)
	}
	p, ok := m.patterns[id]
	if !ok {
		return eris.Wrapf(model.ErrNotFound, "pattern %s", id)
	}
	if !p.Active {
		return eris.Wrapf(model.ErrIllegalTransition, "pattern %s is inactive", id)
	}
	p.TimesUsed += uses
	p.TimesSuccessful += successes
	return nil
}

// UpsertLearned implements Store.
func (m *MemoryStore) UpsertLearned(_ context.Context, l Learned) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var successes int64
	if l.Success {
		successes = 1
	}

	if p := m.findKey(l.Type, l.Value, l.Role, l.BusinessType); p != nil {
		p.TimesUsed++
		p.TimesSuccessful += successes
		p.ConfidenceScore = (p.ConfidenceScore + l.Confidence) / 2
		return false, nil
	}

	id := uuid.NewString()
	m.patterns[id] = &model.ExtractionPattern{
		ID:              id,
		Type:            l.Type,
		Value:           l.Value,
		Role:            l.Role,
		BusinessType:    l.BusinessType,
		ConfidenceScore: l.Confidence,
		TimesUsed:       1,
		TimesSuccessful: successes,
		Active:          true,
		CreatedBy:       "learner",
		CreatedAt:       time.Now().UTC(),
	}
	return true, nil
}

// Deactivate implements Store.
func (m *MemoryStore) Deactivate(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patterns[id]
	if !ok || !p.Active {
		return false, nil
	}
	p.Active = false
	return true, nil
}

// RaiseConfidence implements Store.
func (m *MemoryStore) RaiseConfidence(_ context.Context, id string, target float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patterns[id]
	if !ok || !p.Active || p.ConfidenceScore >= target {
		return false, nil
	}
	p.ConfidenceScore = target
	return true, nil
}

// ListForOptimization implements Store.
func (m *MemoryStore) ListForOptimization(_ context.Context, minUses int64) ([]model.ExtractionPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ExtractionPattern
	for _, p := range m.sorted() {
		if p.Active && p.TimesUsed >= minUses {
			out = append(out, *p)
		}
	}
	return out, nil
}

// PerformanceByType implements Store.
func (m *MemoryStore) PerformanceByType(_ context.Context) ([]TypeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType := make(map[model.PatternType]*TypeStats)
	confSum := make(map[model.PatternType]float64)
	for _, p := range m.patterns {
		st, ok := byType[p.Type]
		if !ok {
			st = &TypeStats{Type: p.Type}
			byType[p.Type] = st
		}
		st.Total++
		if p.Active {
			st.Active++
		}
		st.TotalUses += p.TimesUsed
		st.TotalSuccesses += p.TimesSuccessful
		confSum[p.Type] += p.ConfidenceScore
	}

	out := make([]TypeStats, 0, len(byType))
	for t, st := range byType {
		st.AvgConfidence = confSum[t] / float64(st.Total)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}
