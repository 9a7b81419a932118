// Package model defines the domain types shared by the discovery, reliability,
// conflict and learning subsystems.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SourceStatus is the vetting state of a candidate source.
type SourceStatus string

const (
	SourceStatusDiscovered SourceStatus = "discovered"
	SourceStatusValidated  SourceStatus = "validated"
	SourceStatusApproved   SourceStatus = "approved"
	SourceStatusRejected   SourceStatus = "rejected"
)

// sourceTransitions lists the legal forward moves for each status.
// Approved and rejected are terminal.
var sourceTransitions = map[SourceStatus][]SourceStatus{
	SourceStatusDiscovered: {SourceStatusValidated, SourceStatusApproved, SourceStatusRejected},
	SourceStatusValidated:  {SourceStatusApproved, SourceStatusRejected},
	SourceStatusApproved:   nil,
	SourceStatusRejected:   nil,
}

// ParseSourceStatus converts a stored string into a SourceStatus.
func ParseSourceStatus(s string) (SourceStatus, error) {
	st := SourceStatus(s)
	if _, ok := sourceTransitions[st]; !ok {
		return "", eris.Wrapf(ErrInvalidInput, "unknown source status %q", s)
	}
	return st, nil
}

// Terminal reports whether no further status change is possible.
func (s SourceStatus) Terminal() bool {
	return len(sourceTransitions[s]) == 0
}

// CanTransition reports whether moving from s to next is legal.
func (s SourceStatus) CanTransition(next SourceStatus) bool {
	for _, allowed := range sourceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedPredecessors returns every status from which target can be reached.
// Stores use it to build compare-and-swap updates.
func AllowedPredecessors(target SourceStatus) []SourceStatus {
	var from []SourceStatus
	for _, st := range []SourceStatus{
		SourceStatusDiscovered, SourceStatusValidated,
		SourceStatusApproved, SourceStatusRejected,
	} {
		if st.CanTransition(target) {
			from = append(from, st)
		}
	}
	return from
}

// DiscoveryMethod records how a source entered the queue.
type DiscoveryMethod string

const (
	DiscoveryManual    DiscoveryMethod = "manual"
	DiscoveryAutomatic DiscoveryMethod = "automatic"
)

// Source is a retail data source under evaluation.
type Source struct {
	ID                string          `json:"id" db:"id"`
	URL               string          `json:"url" db:"url"`
	Name              string          `json:"name" db:"name"`
	Location          string          `json:"location,omitempty" db:"location"`
	DiscoveryMethod   DiscoveryMethod `json:"discovery_method" db:"discovery_method"`
	BusinessType      string          `json:"business_type" db:"business_type"`
	ReliabilityScore  float64         `json:"reliability_score" db:"reliability_score"`
	Status            SourceStatus    `json:"status" db:"status"`
	ProductCategories []string        `json:"product_categories" db:"product_categories"`
	QualityIndicators []string        `json:"quality_indicators" db:"quality_indicators"`
	AdminNotes        string          `json:"admin_notes,omitempty" db:"admin_notes"`
	SessionID         string          `json:"session_id,omitempty" db:"session_id"`
	DiscoveredAt      time.Time       `json:"discovered_at" db:"discovered_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ClampScore bounds a score to the closed range [0, 100].
func ClampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
