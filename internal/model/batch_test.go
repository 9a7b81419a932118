package model

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchResult_Summarize(t *testing.T) {
	t.Parallel()

	var b BatchResult
	b.Succeed("a", "")
	b.Succeed("b", "lower price")
	b.Skip("c", "already resolved")
	b.Fail("d", errors.New("source deleted"))

	s := b.Summarize()
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "d", s.Failures[0].ID)
	assert.Equal(t, "source deleted", s.Failures[0].Error)
}

func TestBatchResult_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	var b BatchResult
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				b.Fail(fmt.Sprint(i), errors.New("boom"))
				return
			}
			b.Succeed(fmt.Sprint(i), "")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, b.Total())
	assert.Equal(t, 10, b.Count(OutcomeFailed))
	assert.Equal(t, 40, b.Count(OutcomeSucceeded))
}

func TestBatchResult_FailNilError(t *testing.T) {
	t.Parallel()

	var b BatchResult
	b.Fail("x", nil)
	assert.Empty(t, b.Failures()[0].Error)
}

func TestSuccessRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, SuccessRate(0, 0))
	assert.InDelta(t, 0.3, SuccessRate(6, 20), 1e-9)

	p := ExtractionPattern{TimesUsed: 10, TimesSuccessful: 9}
	assert.InDelta(t, 0.9, p.SuccessRate(), 1e-9)
}

func TestParseResolutionMethod(t *testing.T) {
	t.Parallel()

	m, err := ParseResolutionMethod("")
	require.NoError(t, err)
	assert.Equal(t, ResolutionAlgorithm, m)

	m, err = ParseResolutionMethod("manual")
	require.NoError(t, err)
	assert.Equal(t, ResolutionManual, m)

	_, err = ParseResolutionMethod("vote")
	assert.True(t, IsInvalidInput(err))
}

func TestPriceConflict_State(t *testing.T) {
	t.Parallel()

	c := PriceConflict{}
	assert.Equal(t, ConflictPending, c.State())
	c.Resolved = true
	assert.Equal(t, ConflictResolved, c.State())
}

func TestParsePatternType(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"keyword", "selector", "regex"} {
		pt, err := ParsePatternType(s)
		require.NoError(t, err)
		assert.Equal(t, PatternType(s), pt)
	}
	_, err := ParsePatternType("xpath")
	assert.Error(t, err)
}
