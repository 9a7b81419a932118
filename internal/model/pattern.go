package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// PatternType distinguishes how a pattern value is applied.
type PatternType string

const (
	PatternKeyword  PatternType = "keyword"
	PatternSelector PatternType = "selector"
	PatternRegex    PatternType = "regex"
)

// ParsePatternType validates a pattern type string.
func ParsePatternType(s string) (PatternType, error) {
	switch PatternType(s) {
	case PatternKeyword, PatternSelector, PatternRegex:
		return PatternType(s), nil
	default:
		return "", eris.Wrapf(ErrInvalidInput, "unknown pattern type %q", s)
	}
}

// PatternRole says what a matching pattern contributes to a validation.
type PatternRole string

const (
	RoleCategory PatternRole = "category"
	RoleQuality  PatternRole = "quality"
	RoleName     PatternRole = "name"
	RoleURL      PatternRole = "url"
	RoleContent  PatternRole = "content"
)

// ExtractionPattern is a reusable keyword, selector or regex rule with running statistics.
type ExtractionPattern struct {
	ID              string      `json:"id" db:"id"`
	Type            PatternType `json:"pattern_type" db:"pattern_type"`
	Value           string      `json:"pattern_value" db:"pattern_value"`
	Role            PatternRole `json:"role" db:"role"`
	Label           string      `json:"label,omitempty" db:"label"`
	BusinessType    string      `json:"business_type" db:"business_type"`
	ConfidenceScore float64     `json:"confidence_score" db:"confidence_score"`
	TimesUsed       int64       `json:"times_used" db:"times_used"`
	TimesSuccessful int64       `json:"times_successful" db:"times_successful"`
	Active          bool        `json:"is_active" db:"is_active"`
	CreatedBy       string      `json:"created_by" db:"created_by"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// SuccessRate returns times_successful / times_used, or 0 for unused patterns.
func (p *ExtractionPattern) SuccessRate() float64 {
	return SuccessRate(p.TimesSuccessful, p.TimesUsed)
}

// SuccessRate divides successes by uses, guarding divide-by-zero with 0.
func SuccessRate(successful, used int64) float64 {
	if used <= 0 {
		return 0
	}
	return float64(successful) / float64(used)
}
