package conflicts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/model"
)

// mockStore implements Store in memory with the same insert guards as the
// Postgres store.
type mockStore struct {
	mu           sync.Mutex
	observations []model.PriceObservation
	conflicts    map[string]*model.PriceConflict
	scores       map[string]float64
	// markErrs holds errors returned by successive MarkResolved calls per id.
	markErrs map[string][]error
	marks    int
	nextObs  int64
}

func newMockStore() *mockStore {
	return &mockStore{
		conflicts: make(map[string]*model.PriceConflict),
		scores:    make(map[string]float64),
		markErrs:  make(map[string][]error),
	}
}

func (m *mockStore) ActiveObservations(_ context.Context, since time.Time) ([]model.PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PriceObservation
	for _, o := range m.observations {
		if o.Active && !o.ObservedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockStore) InsertConflicts(_ context.Context, cs []model.PriceConflict, since time.Time) ([]model.PriceConflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var created []model.PriceConflict
	for _, c := range cs {
		if m.blocked(c, since) {
			continue
		}
		cc := c
		m.conflicts[c.ID] = &cc
		created = append(created, c)
	}
	return created, nil
}

func (m *mockStore) blocked(c model.PriceConflict, since time.Time) bool {
	for _, e := range m.conflicts {
		if e.ObservationAID == c.ObservationAID && e.ObservationBID == c.ObservationBID {
			return true
		}
		samePair := e.CatalogItemID == c.CatalogItemID && e.SourceAID == c.SourceAID && e.SourceBID == c.SourceBID
		if samePair && (!e.Resolved || !e.DetectedAt.Before(since)) {
			return true
		}
	}
	return false
}

func (m *mockStore) Get(_ context.Context, id string) (*model.PriceConflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflicts[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	cc := *c
	return &cc, nil
}

func (m *mockStore) SourceScores(_ context.Context, ids []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64)
	for _, id := range ids {
		if s, ok := m.scores[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (m *mockStore) MarkResolved(_ context.Context, id string, u Update) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks++
	if errs := m.markErrs[id]; len(errs) > 0 {
		m.markErrs[id] = errs[1:]
		return false, time.Time{}, errs[0]
	}
	c, ok := m.conflicts[id]
	if !ok || c.Resolved {
		return false, time.Time{}, nil
	}
	now := time.Now()
	price, conf := u.Price, u.Confidence
	c.Resolved = true
	c.ResolutionMethod = u.Method
	c.ResolvedPrice = &price
	c.Confidence = &conf
	c.AdminNotes = u.Notes
	c.ResolvedBy = u.ResolvedBy
	c.ResolvedAt = &now
	return true, now, nil
}

func (m *mockStore) ListPending(_ context.Context, limit int) ([]model.PriceConflict, error) {
	return m.list(func(c *model.PriceConflict) bool { return !c.Resolved }, limit), nil
}

func (m *mockStore) List(_ context.Context, opts ListOpts) ([]model.PriceConflict, error) {
	return m.list(func(c *model.PriceConflict) bool {
		if opts.Resolved != nil && c.Resolved != *opts.Resolved {
			return false
		}
		return opts.CatalogItemID == "" || c.CatalogItemID == opts.CatalogItemID
	}, opts.Limit), nil
}

func (m *mockStore) list(keep func(*model.PriceConflict) bool, limit int) []model.PriceConflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PriceConflict
	for _, c := range m.conflicts {
		if keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *mockStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st Stats
	for _, c := range m.conflicts {
		st.Total++
		switch {
		case !c.Resolved:
			st.Pending++
		case c.ResolutionMethod == model.ResolutionManual:
			st.ManualResolved++
		default:
			st.AutoResolved++
		}
	}
	st.ResolutionRate = st.resolutionRate()
	return &st, nil
}

func (m *mockStore) InsertObservations(_ context.Context, obs []model.PriceObservation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range obs {
		m.nextObs++
		o.ID = m.nextObs
		m.observations = append(m.observations, o)
	}
	return int64(len(obs)), nil
}

func (m *mockStore) resolvedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.conflicts {
		if c.Resolved {
			n++
		}
	}
	return n
}
