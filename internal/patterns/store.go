// Package patterns persists extraction patterns and matches them against text.
package patterns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
)

// Filter narrows a pattern listing. Zero values match everything.
type Filter struct {
	Type         model.PatternType
	Role         model.PatternRole
	BusinessType string
}

// TypeStats aggregates pattern statistics for one pattern type.
type TypeStats struct {
	Type           model.PatternType `json:"pattern_type"`
	Total          int64             `json:"total"`
	Active         int64             `json:"active"`
	TotalUses      int64             `json:"total_uses"`
	TotalSuccesses int64             `json:"total_successes"`
	AvgConfidence  float64           `json:"avg_confidence"`
}

// Learned is a pattern proposed by the learner. Saving one either inserts it
// or counts one more use of an existing pattern. Success marks the use as
// successful.
type Learned struct {
	Type         model.PatternType
	Value        string
	Role         model.PatternRole
	BusinessType string
	Confidence   float64
	Success      bool
}

// Store defines persistence operations for extraction patterns. Counter and
// confidence updates are single SQL statements so concurrent writers never
// lose increments.
type Store interface {
	ListActive(ctx context.Context, f Filter) ([]model.ExtractionPattern, error)
	Get(ctx context.Context, id string) (*model.ExtractionPattern, error)
	Create(ctx context.Context, p *model.ExtractionPattern) (bool, error)
	AddUsage(ctx context.Context, id string, uses, successes int64) error
	UpsertLearned(ctx context.Context, l Learned) (bool, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	RaiseConfidence(ctx context.Context, id string, target float64) (bool, error)
	ListForOptimization(ctx context.Context, minUses int64) ([]model.ExtractionPattern, error)
	PerformanceByType(ctx context.Context) ([]TypeStats, error)
}

// RecordUsage counts one use of a pattern and, when success is true, one success.
func RecordUsage(ctx context.Context, s Store, id string, success bool) error {
	var successes int64
	if success {
		successes = 1
	}
	return s.AddUsage(ctx, id, 1, successes)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const patternColumns = `id, pattern_type, pattern_value, role, label, business_type,
	confidence_score, times_used, times_successful, is_active, created_by, created_at`

// ListActive returns active patterns matching the filter, highest confidence first.
func (s *PostgresStore) ListActive(ctx context.Context, f Filter) ([]model.ExtractionPattern, error) {
	conditions := []string{"is_active = true"}
	var args []any
	argIdx := 1

	if f.Type != "" {
		conditions = append(conditions, fmt.Sprintf("pattern_type = $%d", argIdx))
		args = append(args, string(f.Type))
		argIdx++
	}
	if f.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, string(f.Role))
		argIdx++
	}
	if f.BusinessType != "" {
		conditions = append(conditions, fmt.Sprintf("business_type = $%d", argIdx))
		args = append(args, f.BusinessType)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM extraction_patterns WHERE %s ORDER BY confidence_score DESC, id`,
		patternColumns, strings.Join(conditions, " AND "),
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "patterns: list active")
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// Get returns one pattern by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.ExtractionPattern, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM extraction_patterns WHERE id = $1`, patternColumns), id)
	if err != nil {
		return nil, eris.Wrapf(err, "patterns: get %s", id)
	}
	defer rows.Close()

	ps, err := scanPatterns(rows)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, eris.Wrapf(model.ErrNotFound, "pattern %s", id)
	}
	return &ps[0], nil
}

// Create inserts a pattern unless one with the same type, value, role and
// business type exists. It reports whether a row was inserted and sets p.ID.
func (s *PostgresStore) Create(ctx context.Context, p *model.ExtractionPattern) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO extraction_patterns
			(id, pattern_type, pattern_value, role, label, business_type,
			 confidence_score, times_used, times_successful, is_active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, true, $8, $9)
		ON CONFLICT (pattern_type, pattern_value, role, business_type) DO NOTHING
		RETURNING id`,
		p.ID, string(p.Type), p.Value, string(p.Role), p.Label, p.BusinessType,
		p.ConfidenceScore, p.CreatedBy, p.CreatedAt,
	).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "patterns: create %s %q", p.Type, p.Value)
	}
	p.ID = id
	p.Active = true
	return true, nil
}

// AddUsage atomically adds to the usage counters of an active pattern.
// Usage of a deactivated pattern is rejected with ErrIllegalTransition.
func (s *PostgresStore) AddUsage(ctx context.Context, id string, uses, successes int64) error {
	if uses < successes || successes < 0 {
		return eris.Wrapf(model.ErrInvalidInput, "pattern %s: %d successes out of %d uses", id, successes, uses)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_patterns SET
			times_used = times_used + $2,
			times_successful = times_successful + $3
		WHERE id = $1 AND is_active = true`,
		id, uses, successes,
	)
	if err != nil {
		return eris.Wrapf(err, "patterns: add usage %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM extraction_patterns WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return eris.Wrapf(err, "patterns: add usage %s", id)
	}
	if !exists {
		return eris.Wrapf(model.ErrNotFound, "pattern %s", id)
	}
	return eris.Wrapf(model.ErrIllegalTransition, "pattern %s is inactive", id)
}

// UpsertLearned inserts a learned pattern or, when it already exists, counts
// one more use and moves its confidence halfway towards the new estimate.
// It reports whether a new row was created.
func (s *PostgresStore) UpsertLearned(ctx context.Context, l Learned) (bool, error) {
	var successes int64
	if l.Success {
		successes = 1
	}

	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO extraction_patterns
			(id, pattern_type, pattern_value, role, label, business_type,
			 confidence_score, times_used, times_successful, is_active, created_by, created_at)
		VALUES ($1, $2, $3, $4, '', $5, $6, 1, $7, true, 'learner', now())
		ON CONFLICT (pattern_type, pattern_value, role, business_type) DO UPDATE SET
			times_used = extraction_patterns.times_used + 1,
			times_successful = extraction_patterns.times_successful + EXCLUDED.times_successful,
			confidence_score = (extraction_patterns.confidence_score + EXCLUDED.confidence_score) / 2
		RETURNING (xmax = 0)`,
		uuid.NewString(), string(l.Type), l.Value, string(l.Role), l.BusinessType, l.Confidence, successes,
	).Scan(&inserted)
	if err != nil {
		return false, eris.Wrapf(err, "patterns: upsert learned %s %q", l.Role, l.Value)
	}
	return inserted, nil
}

// Deactivate turns a pattern off. It reports false when the pattern was
// already inactive or does not exist.
func (s *PostgresStore) Deactivate(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_patterns SET is_active = false WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return false, eris.Wrapf(err, "patterns: deactivate %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// RaiseConfidence sets confidence_score to target only if it is currently
// lower, so repeated calls with the same target change nothing.
func (s *PostgresStore) RaiseConfidence(ctx context.Context, id string, target float64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_patterns SET confidence_score = $2
		WHERE id = $1 AND is_active = true AND confidence_score < $2`,
		id, target,
	)
	if err != nil {
		return false, eris.Wrapf(err, "patterns: raise confidence %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// ListForOptimization returns active patterns with at least minUses uses.
func (s *PostgresStore) ListForOptimization(ctx context.Context, minUses int64) ([]model.ExtractionPattern, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM extraction_patterns
			WHERE is_active = true AND times_used >= $1
			ORDER BY id`, patternColumns),
		minUses,
	)
	if err != nil {
		return nil, eris.Wrap(err, "patterns: list for optimization")
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// PerformanceByType aggregates usage statistics per pattern type.
func (s *PostgresStore) PerformanceByType(ctx context.Context) ([]TypeStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pattern_type,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COALESCE(SUM(times_used), 0)::bigint,
			COALESCE(SUM(times_successful), 0)::bigint,
			COALESCE(AVG(confidence_score), 0)::float8
		FROM extraction_patterns
		GROUP BY pattern_type
		ORDER BY pattern_type`)
	if err != nil {
		return nil, eris.Wrap(err, "patterns: performance by type")
	}
	defer rows.Close()

	var stats []TypeStats
	for rows.Next() {
		var st TypeStats
		if err := rows.Scan(&st.Type, &st.Total, &st.Active, &st.TotalUses,
			&st.TotalSuccesses, &st.AvgConfidence); err != nil {
			return nil, eris.Wrap(err, "patterns: scan type stats")
		}
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "patterns: iterate type stats")
}

func scanPatterns(rows pgx.Rows) ([]model.ExtractionPattern, error) {
	var out []model.ExtractionPattern
	for rows.Next() {
		var p model.ExtractionPattern
		if err := rows.Scan(&p.ID, &p.Type, &p.Value, &p.Role, &p.Label, &p.BusinessType,
			&p.ConfidenceScore, &p.TimesUsed, &p.TimesSuccessful, &p.Active,
			&p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "patterns: scan pattern")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "patterns: iterate patterns")
}
