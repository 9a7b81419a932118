package conflicts

import (
	"math"
	"time"

	"github.com/basarometer/sourcectl/internal/model"
)

// Resolution is the outcome of resolving a conflict. Applied is false when
// the conflict had already been resolved; the fields then describe the
// stored resolution.
type Resolution struct {
	ConflictID      string                 `json:"conflict_id"`
	Method          model.ResolutionMethod `json:"method"`
	ResolvedPrice   float64                `json:"resolved_price"`
	WinningSourceID string                 `json:"winning_source_id,omitempty"`
	Confidence      float64                `json:"confidence"`
	ResolvedBy      string                 `json:"resolved_by"`
	ResolvedAt      time.Time              `json:"resolved_at"`
	Applied         bool                   `json:"applied"`
}

// Choice is the algorithm's pick for a conflict.
type Choice struct {
	Price      float64
	SourceID   string
	Confidence float64
}

// Choose picks the price reported by the source with the higher reliability
// score. On a tie the lower price wins. Confidence grows from 0.5 on a tie
// to 1 when the scores are 100 points apart.
func Choose(c model.PriceConflict, scoreA, scoreB float64) Choice {
	confidence := math.Min(1, 0.5+math.Abs(scoreA-scoreB)/200)
	switch {
	case scoreA > scoreB:
		return Choice{Price: c.PriceA, SourceID: c.SourceAID, Confidence: confidence}
	case scoreB > scoreA:
		return Choice{Price: c.PriceB, SourceID: c.SourceBID, Confidence: confidence}
	case c.PriceB < c.PriceA:
		return Choice{Price: c.PriceB, SourceID: c.SourceBID, Confidence: confidence}
	default:
		return Choice{Price: c.PriceA, SourceID: c.SourceAID, Confidence: confidence}
	}
}

// storedResolution describes a conflict that is already resolved.
func storedResolution(c *model.PriceConflict) *Resolution {
	r := &Resolution{
		ConflictID: c.ID,
		Method:     c.ResolutionMethod,
		ResolvedBy: c.ResolvedBy,
	}
	if c.ResolvedPrice != nil {
		r.ResolvedPrice = *c.ResolvedPrice
	}
	if c.Confidence != nil {
		r.Confidence = *c.Confidence
	}
	if c.ResolvedAt != nil {
		r.ResolvedAt = *c.ResolvedAt
	}
	return r
}

// Stats aggregates conflict resolution counts.
type Stats struct {
	Total              int64   `json:"total"`
	AutoResolved       int64   `json:"auto_resolved"`
	ManualResolved     int64   `json:"manual_resolved"`
	Pending            int64   `json:"pending"`
	ResolutionRate     float64 `json:"resolution_rate"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// resolutionRate returns resolved / total, or 0 for no conflicts.
func (s *Stats) resolutionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.AutoResolved+s.ManualResolved) / float64(s.Total)
}
