package patterns

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/model"
)

// seedConfidence is the starting confidence of patterns created from tables.
const seedConfidence = 80

// SeedFromTables creates a keyword pattern for every category and quality
// term in the tables that the store does not have yet. It returns how many
// patterns were created.
func SeedFromTables(ctx context.Context, s Store, t *heuristics.Tables, businessType string) (int, error) {
	created := 0
	seed := func(rules []heuristics.TagRule, role model.PatternRole) error {
		for _, r := range rules {
			for _, term := range r.Terms {
				ok, err := s.Create(ctx, &model.ExtractionPattern{
					Type:            model.PatternKeyword,
					Value:           term,
					Role:            role,
					Label:           r.Label,
					BusinessType:    businessType,
					ConfidenceScore: seedConfidence,
					CreatedBy:       "seed",
				})
				if err != nil {
					return eris.Wrapf(err, "patterns: seed %s %q", role, term)
				}
				if ok {
					created++
				}
			}
		}
		return nil
	}

	if err := seed(t.Categories, model.RoleCategory); err != nil {
		return created, err
	}
	if err := seed(t.Quality, model.RoleQuality); err != nil {
		return created, err
	}
	return created, nil
}
