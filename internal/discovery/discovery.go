// Package discovery vets candidate retail sources and manages the review
// queue they enter.
package discovery

import (
	"time"

	"github.com/basarometer/sourcectl/internal/model"
)

// Candidate is a source proposed by the scraping collaborator or an admin.
type Candidate struct {
	URL          string `json:"url" validate:"required"`
	Name         string `json:"name,omitempty"`
	Location     string `json:"location,omitempty"`
	BusinessType string `json:"business_type,omitempty"`
	Description  string `json:"description,omitempty"`
	HasContact   bool   `json:"has_contact,omitempty"`
}

// Scores are the three validation sub-scores, each in [0, 100].
type Scores struct {
	Name     float64 `json:"name_score"`
	Location float64 `json:"location_score"`
	URL      float64 `json:"url_score"`
}

// ValidationResult is the verdict on one candidate. A negative verdict is a
// normal result, not an error.
type ValidationResult struct {
	IsValid           bool     `json:"is_valid"`
	Confidence        float64  `json:"confidence"`
	Combined          float64  `json:"combined_score"`
	Scores            Scores   `json:"scores"`
	Reasons           []string `json:"reasons"`
	Categories        []string `json:"categories"`
	QualityIndicators []string `json:"quality_indicators"`
	PatternIDs        []string `json:"pattern_ids,omitempty"`
}

// SessionResult summarizes one discovery session.
type SessionResult struct {
	SessionID     string          `json:"session_id"`
	Total         int             `json:"total"`
	Valid         int             `json:"valid"`
	Inserted      int             `json:"inserted"`
	Duplicates    int             `json:"duplicates"`
	AvgConfidence float64         `json:"avg_confidence"`
	SourceIDs     []string        `json:"source_ids,omitempty"`
	Summary       model.Summary   `json:"summary"`
	Outcomes      []model.Outcome `json:"outcomes,omitempty"`
}

// ListOpts filters a source listing.
type ListOpts struct {
	Status   *model.SourceStatus
	MinScore *float64
	Limit    int
	Offset   int
}

// Session is a stored discovery session.
type Session struct {
	ID            string                `json:"id"`
	Method        model.DiscoveryMethod `json:"method"`
	Status        string                `json:"status"`
	Total         int                   `json:"total_candidates"`
	Valid         int                   `json:"valid_candidates"`
	Inserted      int                   `json:"inserted_sources"`
	Duplicates    int                   `json:"duplicates"`
	AvgConfidence float64               `json:"avg_confidence"`
	Error         string                `json:"error,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// Session statuses.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// StatusCount is the number of sources in one status.
type StatusCount struct {
	Status   model.SourceStatus `json:"status"`
	Count    int64              `json:"count"`
	AvgScore float64            `json:"avg_score"`
}
