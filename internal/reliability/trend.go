package reliability

import (
	"time"

	"github.com/basarometer/sourcectl/internal/model"
)

// DefaultTrendWindow is how far back cross-source trends look by default.
const DefaultTrendWindow = 30 * 24 * time.Hour

// Direction labels the sign of the overall-score change.
type Direction string

const (
	Improving Direction = "improving"
	Declining Direction = "declining"
	Stable    Direction = "stable"
)

// Trend holds the per-dimension change between the two latest measurements.
type Trend struct {
	Overall            float64   `json:"overall"`
	DataAccuracy       float64   `json:"data_accuracy"`
	TextQuality        float64   `json:"text_quality"`
	DomainRelevance    float64   `json:"domain_relevance"`
	BusinessLegitimacy float64   `json:"business_legitimacy"`
	Direction          Direction `json:"direction"`
	DataPoints         int       `json:"data_points"`
}

// ComputeTrend compares the two newest entries of a newest-first history.
// It returns nil when there are fewer than two entries.
func ComputeTrend(history []model.ReliabilityMetric) *Trend {
	if len(history) < 2 {
		return nil
	}

	latest, previous := history[0], history[1]
	t := &Trend{
		Overall:            round2(latest.OverallScore - previous.OverallScore),
		DataAccuracy:       round2(latest.DataAccuracy - previous.DataAccuracy),
		TextQuality:        round2(latest.TextQuality - previous.TextQuality),
		DomainRelevance:    round2(latest.DomainRelevance - previous.DomainRelevance),
		BusinessLegitimacy: round2(latest.BusinessLegitimacy - previous.BusinessLegitimacy),
		DataPoints:         len(history),
	}

	switch {
	case t.Overall > 0:
		t.Direction = Improving
	case t.Overall < 0:
		t.Direction = Declining
	default:
		t.Direction = Stable
	}
	return t
}

// Trends summarizes the metrics of every source measured since a point in
// time. Change compares the two newest metrics of the window and is nil when
// there are fewer than two.
type Trends struct {
	Since          time.Time `json:"since"`
	DataPoints     int       `json:"data_points"`
	AverageOverall float64   `json:"average_overall"`
	Change         *Trend    `json:"change,omitempty"`
}
