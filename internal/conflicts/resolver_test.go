package conflicts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/resilience"
)

func newTestResolver(store Store) *Resolver {
	return NewResolver(store, config.ConflictsConfig{
		Threshold:          0.15,
		WindowHours:        24,
		ResolveConcurrency: 4,
		BatchLimit:         100,
	},
		WithClock(func() time.Time { return base }),
		WithRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		}),
	)
}

func seededStore() *mockStore {
	m := newMockStore()
	m.observations = []model.PriceObservation{
		obs(1, "entrecote", "src-a", 40, time.Hour),
		obs(2, "entrecote", "src-b", 55, 2*time.Hour),
		obs(3, "chicken", "src-a", 30, time.Hour),
		obs(4, "chicken", "src-b", 31, time.Hour),
		obs(5, "lamb", "src-a", 90, 48*time.Hour),
		obs(6, "lamb", "src-b", 150, 47*time.Hour),
	}
	m.scores["src-a"] = 85
	m.scores["src-b"] = 60
	return m
}

func TestDetectPriceConflicts(t *testing.T) {
	t.Parallel()

	store := seededStore()
	r := newTestResolver(store)

	created, err := r.DetectPriceConflicts(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1, "lamb is outside the window, chicken within threshold")

	c := created[0]
	assert.Equal(t, "entrecote", c.CatalogItemID)
	assert.Equal(t, "src-a", c.SourceAID)
	assert.Equal(t, 40.0, c.PriceA)
	assert.Equal(t, "src-b", c.SourceBID)
	assert.Equal(t, 55.0, c.PriceB)
	assert.InDelta(t, 0.375, c.RelativeDiff, 1e-9)
	assert.False(t, c.Resolved)
	assert.Equal(t, base, c.DetectedAt)
	assert.NotEmpty(t, c.ID)
}

func TestDetectPriceConflicts_Idempotent(t *testing.T) {
	t.Parallel()

	store := seededStore()
	r := newTestResolver(store)
	ctx := context.Background()

	first, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)

	// Resolved within the window: still not detected again.
	_, err = r.ResolveConflict(ctx, first[0].ID, model.ResolutionAlgorithm)
	require.NoError(t, err)
	third, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestResolveConflict_HigherReliabilityWins(t *testing.T) {
	t.Parallel()

	store := seededStore()
	r := newTestResolver(store)
	ctx := context.Background()

	created, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	id := created[0].ID

	res, err := r.ResolveConflict(ctx, id, "")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.ResolutionAlgorithm, res.Method)
	assert.Equal(t, "src-a", res.WinningSourceID)
	assert.Equal(t, 40.0, res.ResolvedPrice)
	assert.InDelta(t, 0.625, res.Confidence, 1e-9)
	assert.Equal(t, SystemResolver, res.ResolvedBy)

	stored, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)
	require.NotNil(t, stored.ResolvedPrice)
	assert.Equal(t, 40.0, *stored.ResolvedPrice)
	require.NotNil(t, stored.Confidence)
	assert.InDelta(t, 0.625, *stored.Confidence, 1e-9)
}

func TestResolveConflict_AlreadyResolved(t *testing.T) {
	t.Parallel()

	store := seededStore()
	r := newTestResolver(store)
	ctx := context.Background()

	created, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	id := created[0].ID

	ok, err := r.ResolveManually(ctx, id, 47.9, "called the butcher", "dana")
	require.NoError(t, err)
	require.True(t, ok)

	res, err := r.ResolveConflict(ctx, id, model.ResolutionAlgorithm)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.ResolutionManual, res.Method)
	assert.Equal(t, 47.9, res.ResolvedPrice)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestResolveConflict_Errors(t *testing.T) {
	t.Parallel()

	store := seededStore()
	r := newTestResolver(store)
	ctx := context.Background()

	_, err := r.ResolveConflict(ctx, "missing", model.ResolutionAlgorithm)
	assert.True(t, model.IsNotFound(err))

	_, err = r.ResolveConflict(ctx, "", model.ResolutionAlgorithm)
	assert.True(t, model.IsInvalidInput(err))

	_, err = r.ResolveConflict(ctx, "any", model.ResolutionManual)
	assert.True(t, model.IsInvalidInput(err))
}

func TestResolveConflict_SourceDeleted(t *testing.T) {
	t.Parallel()

	store := seededStore()
	r := newTestResolver(store)
	ctx := context.Background()

	created, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	delete(store.scores, "src-b")

	_, err = r.ResolveConflict(ctx, created[0].ID, model.ResolutionAlgorithm)
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
	assert.Contains(t, err.Error(), "src-b")
}

func TestResolveManually(t *testing.T) {
	t.Parallel()

	store := seededStore()
	r := newTestResolver(store)
	ctx := context.Background()

	created, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	id := created[0].ID

	_, err = r.ResolveManually(ctx, id, 0, "notes", "dana")
	assert.True(t, model.IsInvalidInput(err))
	_, err = r.ResolveManually(ctx, id, 45, "   ", "dana")
	assert.True(t, model.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "resolution requires both a price and notes")

	ok, err := r.ResolveManually(ctx, id, 45, "verified in store", "dana")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ResolutionManual, stored.ResolutionMethod)
	assert.Equal(t, "dana", stored.ResolvedBy)
	assert.Equal(t, "verified in store", stored.AdminNotes)
	assert.Equal(t, 1.0, *stored.Confidence)

	ok, err = r.ResolveManually(ctx, id, 50, "second try", "avi")
	require.NoError(t, err)
	assert.False(t, ok, "a resolved conflict is never overwritten")

	stored, err = r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 45.0, *stored.ResolvedPrice)

	_, err = r.ResolveManually(ctx, "missing", 50, "notes", "avi")
	assert.True(t, model.IsNotFound(err))
}

func addPending(m *mockStore, id, a, b string) {
	m.conflicts[id] = &model.PriceConflict{
		ID:            id,
		CatalogItemID: "item-" + id,
		SourceAID:     a,
		PriceA:        40,
		SourceBID:     b,
		PriceB:        60,
		RelativeDiff:  0.5,
		DetectedAt:    base,
	}
}

func TestResolveAllPendingConflicts(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.scores["src-a"] = 80
	store.scores["src-b"] = 50
	addPending(store, "c1", "src-a", "src-b")
	addPending(store, "c2", "src-a", "src-b")
	addPending(store, "c3", "src-a", "src-gone")
	addPending(store, "c4", "src-a", "src-b")
	store.markErrs["c4"] = []error{errors.New("connection reset by peer")}

	r := newTestResolver(store)
	summary, err := r.ResolveAllPendingConflicts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Succeeded, "c4 succeeds on retry")
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "c3", summary.Failures[0].ID)
	assert.Equal(t, 3, store.resolvedCount())

	again, err := r.ResolveAllPendingConflicts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Total, "only c3 is still pending")
	assert.Equal(t, 0, again.Succeeded)
}

func TestGetConflictResolutionStats(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.scores["src-a"] = 80
	store.scores["src-b"] = 50
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		addPending(store, id, "src-a", "src-b")
	}

	r := newTestResolver(store)
	ctx := context.Background()
	_, err := r.ResolveConflict(ctx, "c1", model.ResolutionAlgorithm)
	require.NoError(t, err)
	_, err = r.ResolveManually(ctx, "c2", 50, "checked", "dana")
	require.NoError(t, err)

	st, err := r.GetConflictResolutionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Total)
	assert.Equal(t, int64(1), st.AutoResolved)
	assert.Equal(t, int64(1), st.ManualResolved)
	assert.Equal(t, int64(2), st.Pending)
	assert.InDelta(t, 0.5, st.ResolutionRate, 1e-9)
}

func TestIngestObservations(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	r := newTestResolver(store)
	ctx := context.Background()

	n, err := r.IngestObservations(ctx, []model.PriceObservation{
		{CatalogItemID: "entrecote", SourceID: "src-a", Price: 40},
		{CatalogItemID: "entrecote", SourceID: "src-b", Price: 55, ObservedAt: base.Add(-time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, store.observations, 2)
	assert.True(t, store.observations[0].Active)
	assert.Equal(t, base, store.observations[0].ObservedAt)

	created, err := r.DetectPriceConflicts(ctx)
	require.NoError(t, err)
	assert.Len(t, created, 1)

	_, err = r.IngestObservations(ctx, []model.PriceObservation{
		{CatalogItemID: "x", SourceID: "src-a", Price: 10},
		{CatalogItemID: "x", SourceID: "", Price: 10},
	})
	assert.True(t, model.IsInvalidInput(err))
	assert.Len(t, store.observations, 2, "nothing stored from an invalid batch")
}
