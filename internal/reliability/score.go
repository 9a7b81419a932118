// Package reliability computes composite trust scores for sources and keeps
// their measurement history.
package reliability

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/model"
)

// Weights are the contributions of the four sub-dimensions. They must sum to 1.
type Weights struct {
	Accuracy    float64 `json:"accuracy"`
	TextQuality float64 `json:"text_quality"`
	Relevance   float64 `json:"relevance"`
	Legitimacy  float64 `json:"legitimacy"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Accuracy: 0.35, TextQuality: 0.25, Relevance: 0.25, Legitimacy: 0.15}
}

// WeightsFromConfig converts the reliability config section.
func WeightsFromConfig(c config.ReliabilityConfig) Weights {
	return Weights{
		Accuracy:    c.AccuracyWeight,
		TextQuality: c.TextQualityWeight,
		Relevance:   c.RelevanceWeight,
		Legitimacy:  c.LegitimacyWeight,
	}
}

// Validate checks the weights are non-negative and sum to 1 within 0.001.
func (w Weights) Validate() error {
	var errs []string
	for name, v := range map[string]float64{
		"accuracy": w.Accuracy, "text_quality": w.TextQuality,
		"relevance": w.Relevance, "legitimacy": w.Legitimacy,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", name))
		}
	}
	if sum := w.Accuracy + w.TextQuality + w.Relevance + w.Legitimacy; math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}
	if len(errs) > 0 {
		return eris.Wrapf(model.ErrInvalidInput, "reliability: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RawMetricInputs are the sub-dimension observations for one measurement,
// each on a 0-100 scale. A nil field counts as 0.
type RawMetricInputs struct {
	DataAccuracy       *float64 `json:"data_accuracy"`
	TextQuality        *float64 `json:"text_quality"`
	DomainRelevance    *float64 `json:"domain_relevance"`
	BusinessLegitimacy *float64 `json:"business_legitimacy"`
}

// Inputs builds RawMetricInputs from four present values.
func Inputs(accuracy, textQuality, relevance, legitimacy float64) RawMetricInputs {
	return RawMetricInputs{
		DataAccuracy:       &accuracy,
		TextQuality:        &textQuality,
		DomainRelevance:    &relevance,
		BusinessLegitimacy: &legitimacy,
	}
}

func value(p *float64) float64 {
	if p == nil || math.IsNaN(*p) {
		return 0
	}
	return model.ClampScore(*p)
}

// Score returns the weighted composite of the inputs, within [0, 100].
func Score(in RawMetricInputs, w Weights) float64 {
	s := value(in.DataAccuracy)*w.Accuracy +
		value(in.TextQuality)*w.TextQuality +
		value(in.DomainRelevance)*w.Relevance +
		value(in.BusinessLegitimacy)*w.Legitimacy
	return round2(model.ClampScore(s))
}

// Metric builds the metric row for the inputs. ID and MeasuredAt are left for
// the store.
func Metric(sourceID string, in RawMetricInputs, w Weights) model.ReliabilityMetric {
	return model.ReliabilityMetric{
		SourceID:           sourceID,
		OverallScore:       Score(in, w),
		DataAccuracy:       value(in.DataAccuracy),
		TextQuality:        value(in.TextQuality),
		DomainRelevance:    value(in.DomainRelevance),
		BusinessLegitimacy: value(in.BusinessLegitimacy),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
