package conflicts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/basarometer/sourcectl/internal/model"
)

func TestChoose(t *testing.T) {
	t.Parallel()

	c := model.PriceConflict{SourceAID: "src-a", PriceA: 40, SourceBID: "src-b", PriceB: 55}

	tests := []struct {
		name       string
		scoreA     float64
		scoreB     float64
		wantSource string
		wantPrice  float64
		wantConf   float64
	}{
		{"higher reliability A", 90, 70, "src-a", 40, 0.6},
		{"higher reliability B", 40, 80, "src-b", 55, 0.7},
		{"tie picks lower price", 75, 75, "src-a", 40, 0.5},
		{"full spread", 0, 100, "src-b", 55, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Choose(c, tt.scoreA, tt.scoreB)
			assert.Equal(t, tt.wantSource, got.SourceID)
			assert.Equal(t, tt.wantPrice, got.Price)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestChoose_TieLowerPriceOnB(t *testing.T) {
	t.Parallel()

	c := model.PriceConflict{SourceAID: "src-a", PriceA: 70, SourceBID: "src-b", PriceB: 52}
	got := Choose(c, 60, 60)
	assert.Equal(t, "src-b", got.SourceID)
	assert.Equal(t, 52.0, got.Price)
}

func TestStoredResolution(t *testing.T) {
	t.Parallel()

	price, conf := 48.5, 1.0
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := storedResolution(&model.PriceConflict{
		ID:               "c1",
		Resolved:         true,
		ResolutionMethod: model.ResolutionManual,
		ResolvedPrice:    &price,
		Confidence:       &conf,
		ResolvedBy:       "dana",
		ResolvedAt:       &at,
	})

	assert.False(t, r.Applied)
	assert.Equal(t, model.ResolutionManual, r.Method)
	assert.Equal(t, 48.5, r.ResolvedPrice)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, at, r.ResolvedAt)
}
