package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// PriceObservation is one raw price report supplied by the scraping collaborator.
type PriceObservation struct {
	ID            int64     `json:"id" db:"id"`
	CatalogItemID string    `json:"catalog_item_id" db:"catalog_item_id" validate:"required"`
	SourceID      string    `json:"source_id" db:"source_id" validate:"required"`
	Price         float64   `json:"price" db:"price" validate:"gt=0"`
	Active        bool      `json:"active" db:"is_active"`
	ObservedAt    time.Time `json:"observed_at" db:"observed_at"`
}

// ResolutionMethod records how a conflict was settled.
type ResolutionMethod string

const (
	ResolutionAlgorithm ResolutionMethod = "algorithm"
	ResolutionManual    ResolutionMethod = "manual"
)

// ParseResolutionMethod converts caller input into a ResolutionMethod.
// An empty string selects the algorithm.
func ParseResolutionMethod(s string) (ResolutionMethod, error) {
	switch ResolutionMethod(s) {
	case "", ResolutionAlgorithm:
		return ResolutionAlgorithm, nil
	case ResolutionManual:
		return ResolutionManual, nil
	default:
		return "", eris.Wrapf(ErrInvalidInput, "unknown resolution method %q", s)
	}
}

// ConflictState is derived from the resolved flag. A resolved conflict never
// returns to pending.
type ConflictState string

const (
	ConflictPending  ConflictState = "pending"
	ConflictResolved ConflictState = "resolved"
)

// PriceConflict is a detected disagreement between two sources for one catalog item.
// SourceAID is always lexically smaller than SourceBID.
type PriceConflict struct {
	ID               string           `json:"id" db:"id"`
	CatalogItemID    string           `json:"catalog_item_id" db:"catalog_item_id"`
	SourceAID        string           `json:"source_a_id" db:"source_a_id"`
	ObservationAID   int64            `json:"observation_a_id" db:"observation_a_id"`
	PriceA           float64          `json:"price_a" db:"price_a"`
	SourceBID        string           `json:"source_b_id" db:"source_b_id"`
	ObservationBID   int64            `json:"observation_b_id" db:"observation_b_id"`
	PriceB           float64          `json:"price_b" db:"price_b"`
	RelativeDiff     float64          `json:"relative_diff" db:"relative_diff"`
	Resolved         bool             `json:"resolved" db:"resolved"`
	ResolutionMethod ResolutionMethod `json:"resolution_method,omitempty" db:"resolution_method"`
	ResolvedPrice    *float64         `json:"resolved_price,omitempty" db:"resolved_price"`
	Confidence       *float64         `json:"resolution_confidence,omitempty" db:"resolution_confidence"`
	AdminNotes       string           `json:"admin_notes,omitempty" db:"admin_notes"`
	ResolvedBy       string           `json:"resolved_by,omitempty" db:"resolved_by"`
	DetectedAt       time.Time        `json:"detected_at" db:"detected_at"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
}

// State returns the lifecycle state of the conflict.
func (c *PriceConflict) State() ConflictState {
	if c.Resolved {
		return ConflictResolved
	}
	return ConflictPending
}
