package discovery

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
)

// Weights combine the three sub-scores.
type Weights struct {
	Name     float64
	Location float64
	URL      float64
}

// Combine returns the weighted average of s, in [0, 100].
func (w Weights) Combine(s Scores) float64 {
	total := w.Name + w.Location + w.URL
	if total <= 0 {
		return 0
	}
	return model.ClampScore((s.Name*w.Name + s.Location*w.Location + s.URL*w.URL) / total)
}

// Validator scores candidates against the heuristic tables and tags them
// with the labels of matching patterns. The matcher can be swapped while
// validations are running.
type Validator struct {
	tables   *heuristics.Tables
	matcher  atomic.Pointer[patterns.Matcher]
	weights  Weights
	minValid float64
}

// NewValidator creates a Validator. matcher may be nil, in which case no
// categories or quality indicators are reported.
func NewValidator(tables *heuristics.Tables, matcher *patterns.Matcher, cfg config.DiscoveryConfig) *Validator {
	v := &Validator{
		tables:   tables,
		weights:  Weights{Name: cfg.NameWeight, Location: cfg.LocationWeight, URL: cfg.URLWeight},
		minValid: cfg.MinValidScore,
	}
	v.matcher.Store(matcher)
	return v
}

// SetMatcher replaces the patterns used for tagging. Validations already in
// flight finish with the matcher they started with.
func (v *Validator) SetMatcher(m *patterns.Matcher) {
	v.matcher.Store(m)
}

// ValidateSingleSource judges one candidate. A malformed URL produces an
// invalid result rather than an error.
func (v *Validator) ValidateSingleSource(c Candidate) ValidationResult {
	name := heuristics.Normalize(c.Name)
	nameScore, nameHits := v.nameScore(name)

	var (
		host     string
		urlText  string
		urlScore float64
		urlHits  []string
	)
	u, urlOK := parseSourceURL(c.URL)
	if urlOK {
		host = strings.ToLower(u.Hostname())
		urlText = heuristics.Normalize(host + u.Path)
		urlScore, urlHits = v.urlScore(host, urlText)
	}

	locScore, locKnown := v.locationScore(c.Location, host)

	scores := Scores{Name: nameScore, Location: locScore, URL: urlScore}
	relevant := len(nameHits) > 0 || len(urlHits) > 0 || locKnown
	combined, valid := v.verdict(scores, urlOK, relevant)

	res := ValidationResult{
		IsValid:    valid,
		Confidence: combined / 100,
		Combined:   combined,
		Scores:     scores,
		Reasons:    v.reasons(scores, combined, valid, urlOK, relevant),
	}
	v.tag(&res, name, urlText, heuristics.Normalize(c.Description))
	return res
}

// verdict combines the scores and applies the acceptance rule: a usable URL,
// a combined score at or above the minimum, and at least one relevance signal.
func (v *Validator) verdict(s Scores, urlOK, relevant bool) (float64, bool) {
	combined := v.weights.Combine(s)
	return combined, urlOK && relevant && combined >= v.minValid
}

func (v *Validator) nameScore(name string) (float64, []string) {
	if name == "" {
		return 0, nil
	}
	pos, hits := v.tables.Name.Terms.Score(name)
	neg, _ := v.tables.Name.Negative.Score(name)
	return model.ClampScore(pos - neg), hits
}

func (v *Validator) urlScore(host, text string) (float64, []string) {
	score, hits := v.tables.URL.Terms.Score(text)
	if d, ok := v.tables.MatchDomain(host); ok {
		score += d.URLBonus
	}
	return model.ClampScore(score), hits
}

// locationScore scores the declared location. Without one, a national
// domain suffix stands in; with neither the score is neutral. The flag
// reports whether the location was recognized.
func (v *Validator) locationScore(location, host string) (float64, bool) {
	lt := v.tables.Location
	loc := heuristics.Normalize(location)
	if loc != "" {
		if _, ok := v.tables.MatchCity(loc); ok {
			return lt.CityScore, true
		}
		if heuristics.HasHebrew(loc) {
			return lt.ScriptScore, false
		}
		return lt.OtherScore, false
	}
	if host != "" {
		if d, ok := v.tables.MatchDomain(host); ok {
			return d.LocationScore, true
		}
	}
	return lt.NeutralScore, false
}

func (v *Validator) reasons(s Scores, combined float64, valid, urlOK, relevant bool) []string {
	var out []string
	if valid {
		if s.Name > 70 {
			out = append(out, "strong business indicators in name")
		}
		if s.URL > 70 {
			out = append(out, "URL contains relevant terms")
		}
		if s.Location > 80 {
			out = append(out, "location recognized")
		}
		return out
	}

	if !urlOK {
		out = append(out, "URL is malformed or not http(s)")
	}
	if s.Name < 50 {
		out = append(out, "name lacks business indicators")
	}
	if urlOK && s.URL < 30 {
		out = append(out, "URL does not suggest a relevant business")
	}
	if s.Location < 50 {
		out = append(out, "location not recognized")
	}
	if !relevant {
		out = append(out, "no relevance signal in name, URL or location")
	}
	if combined < v.minValid {
		out = append(out, fmt.Sprintf("combined score %.1f below minimum %.1f", combined, v.minValid))
	}
	return out
}

// tag fills categories, quality indicators and the ids of every pattern that
// fired, including learned name, URL and content patterns.
func (v *Validator) tag(res *ValidationResult, name, urlText, description string) {
	m := v.matcher.Load()
	if m == nil {
		return
	}

	text := strings.TrimSpace(name + " " + description)
	matches := m.Match(text, model.RoleCategory, model.RoleQuality)
	matches = append(matches, m.Match(name, model.RoleName)...)
	matches = append(matches, m.Match(urlText, model.RoleURL)...)
	matches = append(matches, m.Match(description, model.RoleContent)...)

	res.Categories = patterns.Labels(matches, model.RoleCategory)
	res.QualityIndicators = patterns.Labels(matches, model.RoleQuality)
	res.PatternIDs = patterns.IDs(matches)
}

// hostOf returns the lowercased host of raw, or "".
func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
