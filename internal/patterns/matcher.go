package patterns

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/model"
)

// Match is one pattern that fired against a text.
type Match struct {
	PatternID string
	Type      model.PatternType
	Role      model.PatternRole
	Label     string
	Value     string
}

type compiled struct {
	pattern model.ExtractionPattern
	keyword string
	re      *regexp.Regexp
}

// Matcher applies keyword and regex patterns to normalized text. Selector
// patterns target page markup and are skipped.
type Matcher struct {
	entries []compiled
}

// NewMatcher compiles the given patterns. Inactive patterns, selectors and
// regexes that fail to compile are skipped.
func NewMatcher(ps []model.ExtractionPattern) *Matcher {
	log := zap.L().With(zap.String("component", "patterns.matcher"))

	m := &Matcher{}
	for _, p := range ps {
		if !p.Active {
			continue
		}
		switch p.Type {
		case model.PatternKeyword:
			kw := heuristics.Normalize(p.Value)
			if kw == "" {
				continue
			}
			m.entries = append(m.entries, compiled{pattern: p, keyword: kw})
		case model.PatternRegex:
			re, err := regexp.Compile(p.Value)
			if err != nil {
				log.Warn("skipping invalid regex pattern", zap.String("pattern_id", p.ID), zap.Error(err))
				continue
			}
			m.entries = append(m.entries, compiled{pattern: p, re: re})
		}
	}
	return m
}

// Load builds a Matcher from the active patterns of the store.
func Load(ctx context.Context, s Store, f Filter) (*Matcher, error) {
	ps, err := s.ListActive(ctx, f)
	if err != nil {
		return nil, err
	}
	return NewMatcher(ps), nil
}

// Len returns the number of usable patterns.
func (m *Matcher) Len() int {
	return len(m.entries)
}

// Match returns every pattern that fires on text. When roles are given only
// patterns with one of those roles are tried. text must be normalized.
func (m *Matcher) Match(text string, roles ...model.PatternRole) []Match {
	if text == "" {
		return nil
	}

	var out []Match
	for _, c := range m.entries {
		if len(roles) > 0 && !hasRole(roles, c.pattern.Role) {
			continue
		}
		hit := false
		if c.re != nil {
			hit = c.re.MatchString(text)
		} else {
			hit = strings.Contains(text, c.keyword)
		}
		if hit {
			out = append(out, Match{
				PatternID: c.pattern.ID,
				Type:      c.pattern.Type,
				Role:      c.pattern.Role,
				Label:     c.pattern.Label,
				Value:     c.pattern.Value,
			})
		}
	}
	return out
}

func hasRole(roles []model.PatternRole, r model.PatternRole) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

// Labels returns the distinct, sorted labels of the matches with the given role.
func Labels(matches []Match, role model.PatternRole) []string {
	seen := make(map[string]bool)
	var out []string
	for _, mt := range matches {
		if mt.Role != role || mt.Label == "" || seen[mt.Label] {
			continue
		}
		seen[mt.Label] = true
		out = append(out, mt.Label)
	}
	sort.Strings(out)
	return out
}

// IDs returns the distinct pattern ids of the matches.
func IDs(matches []Match) []string {
	seen := make(map[string]bool)
	var out []string
	for _, mt := range matches {
		if seen[mt.PatternID] {
			continue
		}
		seen[mt.PatternID] = true
		out = append(out, mt.PatternID)
	}
	return out
}
