package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/basarometer/sourcectl/internal/heuristics"
)

func TestEvaluator_StrongDiscovery(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(heuristics.Default(), "meat_retailer")
	in := e.Evaluate(DiscoveryEvidence{
		Name:              "קצביית הגליל בשר טרי",
		URL:               "https://www.katzav-hagalil.co.il",
		Location:          "חיפה",
		BusinessType:      "meat_retailer",
		Categories:        []string{"בקר", "עוף"},
		QualityIndicators: []string{"כשר"},
		Confidence:        0.8,
	})

	// 50 + 15 + 10 (long name) + 20 (valid url) + 15 (location)
	assert.Equal(t, 110.0, *in.DataAccuracy)
	// script 40 + בשר 15 + קצב 15 + טרי 5
	assert.Equal(t, 75.0, *in.TextQuality)
	// 50 + 2*15 + 10 + 20 + 16
	assert.InDelta(t, 126.0, *in.DomainRelevance, 1e-9)
	// 50 + 25 (.co.il) + 10 (https) + 10 + 5
	assert.Equal(t, 100.0, *in.BusinessLegitimacy)

	s := Score(in, DefaultWeights())
	assert.InDelta(t, 35+75*0.25+25+15, s, 1e-9)
}

func TestEvaluator_MalformedURL(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(heuristics.Default(), "meat_retailer")
	in := e.Evaluate(DiscoveryEvidence{Name: "test", URL: "not a url"})

	// 50 - 20
	assert.Equal(t, 30.0, *in.DataAccuracy)
	// 50 - 30 + 10 (name > 3 runes), "test" earns no bonus
	assert.Equal(t, 30.0, *in.BusinessLegitimacy)
	assert.Zero(t, *in.TextQuality)
}
