package reliability

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/basarometer/sourcectl/internal/heuristics"
)

// DiscoveryEvidence is what a discovery session knows about a new source.
type DiscoveryEvidence struct {
	Name              string
	URL               string
	Location          string
	BusinessType      string
	Categories        []string
	QualityIndicators []string
	Confidence        float64
	HasContact        bool
}

// Evaluator derives first-measurement inputs from discovery evidence.
type Evaluator struct {
	tables       *heuristics.Tables
	businessType string
}

// NewEvaluator creates an Evaluator. businessType is the business type the
// platform is looking for.
func NewEvaluator(tables *heuristics.Tables, businessType string) *Evaluator {
	return &Evaluator{tables: tables, businessType: businessType}
}

// Evaluate scores the four sub-dimensions for a newly discovered source.
func (e *Evaluator) Evaluate(ev DiscoveryEvidence) RawMetricInputs {
	u, urlErr := url.Parse(strings.TrimSpace(ev.URL))
	validURL := urlErr == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""

	return Inputs(
		e.dataAccuracy(ev, validURL),
		e.textQuality(ev),
		e.relevance(ev),
		e.legitimacy(ev, u, validURL),
	)
}

func (e *Evaluator) dataAccuracy(ev DiscoveryEvidence, validURL bool) float64 {
	score := 50.0
	n := utf8.RuneCountInString(strings.TrimSpace(ev.Name))
	if n > 5 {
		score += 15
	}
	if n > 15 {
		score += 10
	}
	if validURL {
		score += 20
	} else {
		score -= 20
	}
	if strings.TrimSpace(ev.Location) != "" {
		score += 15
	}
	return score
}

func (e *Evaluator) textQuality(ev DiscoveryEvidence) float64 {
	text := heuristics.Normalize(ev.Name + " " + ev.Location)
	var score float64
	if heuristics.HasHebrew(text) {
		score += e.tables.TextQuality.ScriptScore
	}
	terms, _ := e.tables.TextQuality.Terms.Score(text)
	return score + terms
}

func (e *Evaluator) relevance(ev DiscoveryEvidence) float64 {
	score := 50.0
	score += float64(len(ev.Categories)) * 15
	score += float64(len(ev.QualityIndicators)) * 10
	if e.businessType != "" && ev.BusinessType == e.businessType {
		score += 20
	}
	score += ev.Confidence * 20
	return score
}

func (e *Evaluator) legitimacy(ev DiscoveryEvidence, u *url.URL, validURL bool) float64 {
	score := 50.0
	if validURL {
		if _, ok := e.tables.MatchDomain(u.Hostname()); ok {
			score += 25
		} else if strings.HasSuffix(u.Hostname(), ".com") {
			score += 15
		}
		if u.Scheme == "https" {
			score += 10
		}
	} else {
		score -= 30
	}

	name := strings.TrimSpace(ev.Name)
	if utf8.RuneCountInString(name) > 3 {
		score += 10
	}
	if name != "" && !strings.Contains(strings.ToLower(name), "test") {
		score += 5
	}
	if ev.HasContact {
		score += 15
	}
	return score
}
