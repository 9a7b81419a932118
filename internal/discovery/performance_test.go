package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basarometer/sourcectl/internal/model"
)

func TestSummarizeSessions(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	p := SummarizeSessions([]Session{
		{Method: model.DiscoveryAutomatic, Status: SessionCompleted, Total: 10, Valid: 4, Inserted: 3, Duplicates: 1, AvgConfidence: 0.8},
		{Method: model.DiscoveryAutomatic, Status: SessionCompleted, Total: 5, Valid: 1, Inserted: 1, AvgConfidence: 0.6},
		{Method: model.DiscoveryManual, Status: SessionFailed, Total: 3},
		{Method: model.DiscoveryManual, Status: SessionRunning, Total: 2},
	}, 2, since)

	assert.Equal(t, 4, p.Sessions)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.Running)
	assert.InDelta(t, 50, p.SessionSuccessRate, 1e-9)
	assert.Equal(t, 20, p.Candidates)
	assert.Equal(t, 5, p.Validated)
	assert.InDelta(t, 25, p.ValidationRate, 1e-9)
	assert.Equal(t, 4, p.SourcesCreated)
	assert.Equal(t, 1, p.Duplicates)
	assert.InDelta(t, 0.76, p.AvgConfidence, 1e-9)
	assert.InDelta(t, 2, p.DailyDiscoveryRate, 1e-9)
	assert.Equal(t, map[model.DiscoveryMethod]int{model.DiscoveryAutomatic: 2, model.DiscoveryManual: 2}, p.ByMethod)
	assert.Equal(t, since, p.Since)
}

func TestSummarizeSessions_Empty(t *testing.T) {
	t.Parallel()

	p := SummarizeSessions(nil, 30, time.Time{})
	assert.Zero(t, p.Sessions)
	assert.Zero(t, p.SessionSuccessRate)
	assert.Zero(t, p.ValidationRate)
	assert.Zero(t, p.AvgConfidence)
	assert.NotNil(t, p.ByMethod)
}

func TestEngine_SessionsAndPerformance(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := newMockStore()
	store.sessions = []Session{
		{ID: "old", Method: model.DiscoveryAutomatic, Status: SessionCompleted, Total: 50, Valid: 50, Inserted: 50, StartedAt: now.AddDate(0, 0, -40)},
		{ID: "s1", Method: model.DiscoveryAutomatic, Status: SessionCompleted, Total: 10, Valid: 4, Inserted: 3, AvgConfidence: 0.8, StartedAt: now.Add(-48 * time.Hour)},
		{ID: "s2", Method: model.DiscoveryManual, Status: SessionFailed, Total: 2, StartedAt: now.Add(-time.Hour)},
	}
	e := NewEngine(store, newTestValidator(t, seededPatterns(t)))
	ctx := context.Background()

	got, err := e.ListSessions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)
	assert.Equal(t, "s1", got[1].ID)

	got, err = e.ListSessions(ctx, 60, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s2", got[0].ID)

	p, err := e.Performance(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPerformanceDays, p.PeriodDays)
	assert.Equal(t, 2, p.Sessions)
	assert.Equal(t, 3, p.SourcesCreated)
	assert.InDelta(t, 0.1, p.DailyDiscoveryRate, 1e-9)

	p, err = e.Performance(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Sessions)
	assert.Equal(t, 53, p.SourcesCreated)

	store.sessionsErr = errors.New("connection reset")
	_, err = e.Performance(ctx, 7)
	assert.EqualError(t, err, "connection reset")
}
