package reliability

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
)

// Store defines persistence operations for reliability metrics.
type Store interface {
	// RecordScore stores the metric and sets the source's current score to
	// its overall score in one transaction.
	RecordScore(ctx context.Context, m *model.ReliabilityMetric) error
	// History returns up to limit metrics for a source, newest first.
	History(ctx context.Context, sourceID string, limit int) ([]model.ReliabilityMetric, error)
	// Window summarizes the metrics of every source measured at or after
	// since: the two newest, the total count and the average overall score.
	Window(ctx context.Context, since time.Time) (*WindowStats, error)
	// SourceExists reports whether the source is stored.
	SourceExists(ctx context.Context, sourceID string) (bool, error)
}

// WindowStats is the raw material for cross-source trends.
type WindowStats struct {
	Latest         []model.ReliabilityMetric
	Count          int
	AverageOverall float64
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore. pool may be a transaction.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// RecordScore implements Store.
func (s *PostgresStore) RecordScore(ctx context.Context, m *model.ReliabilityMetric) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE discovered_sources SET reliability_score = $2, updated_at = now() WHERE id = $1`,
			m.SourceID, m.OverallScore,
		)
		if err != nil {
			return eris.Wrapf(err, "reliability: update score for source %s", m.SourceID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(model.ErrNotFound, "source %s", m.SourceID)
		}
		return NewPostgresStore(tx).InsertMetric(ctx, m)
	})
}

// InsertMetric appends a metric row without touching the source. It sets
// m.ID and m.MeasuredAt.
func (s *PostgresStore) InsertMetric(ctx context.Context, m *model.ReliabilityMetric) error {
	if m.MeasuredAt.IsZero() {
		m.MeasuredAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO source_reliability_metrics
			(source_id, overall_quality_score, data_accuracy, text_quality_score,
			 domain_relevance_score, business_legitimacy_score, metric_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		m.SourceID, m.OverallScore, m.DataAccuracy, m.TextQuality,
		m.DomainRelevance, m.BusinessLegitimacy, m.MeasuredAt,
	).Scan(&m.ID)
	if err != nil {
		return eris.Wrapf(err, "reliability: insert metric for source %s", m.SourceID)
	}
	return nil
}

// History implements Store.
func (s *PostgresStore) History(ctx context.Context, sourceID string, limit int) ([]model.ReliabilityMetric, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, overall_quality_score, data_accuracy, text_quality_score,
			domain_relevance_score, business_legitimacy_score, metric_date
		FROM source_reliability_metrics
		WHERE source_id = $1
		ORDER BY metric_date DESC, id DESC
		LIMIT $2`, sourceID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "reliability: history for source %s", sourceID)
	}
	defer rows.Close()

	var out []model.ReliabilityMetric
	for rows.Next() {
		var m model.ReliabilityMetric
		if err := rows.Scan(&m.ID, &m.SourceID, &m.OverallScore, &m.DataAccuracy, &m.TextQuality,
			&m.DomainRelevance, &m.BusinessLegitimacy, &m.MeasuredAt); err != nil {
			return nil, eris.Wrap(err, "reliability: scan metric")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "reliability: iterate metrics")
}

// Window implements Store.
func (s *PostgresStore) Window(ctx context.Context, since time.Time) (*WindowStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, overall_quality_score, data_accuracy, text_quality_score,
			domain_relevance_score, business_legitimacy_score, metric_date,
			count(*) OVER (), avg(overall_quality_score) OVER ()
		FROM source_reliability_metrics
		WHERE metric_date >= $1
		ORDER BY metric_date DESC, id DESC
		LIMIT 2`, since)
	if err != nil {
		return nil, eris.Wrap(err, "reliability: metrics window")
	}
	defer rows.Close()

	ws := &WindowStats{}
	for rows.Next() {
		var (
			m     model.ReliabilityMetric
			count int64
		)
		if err := rows.Scan(&m.ID, &m.SourceID, &m.OverallScore, &m.DataAccuracy, &m.TextQuality,
			&m.DomainRelevance, &m.BusinessLegitimacy, &m.MeasuredAt,
			&count, &ws.AverageOverall); err != nil {
			return nil, eris.Wrap(err, "reliability: scan window metric")
		}
		ws.Count = int(count)
		ws.Latest = append(ws.Latest, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "reliability: iterate window")
	}
	return ws, nil
}

// SourceExists implements Store.
func (s *PostgresStore) SourceExists(ctx context.Context, sourceID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM discovered_sources WHERE id = $1)`, sourceID,
	).Scan(&ok)
	if err != nil {
		return false, eris.Wrapf(err, "reliability: look up source %s", sourceID)
	}
	return ok, nil
}
