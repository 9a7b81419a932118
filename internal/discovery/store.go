package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/reliability"
)

// Store defines persistence operations for candidate sources and sessions.
type Store interface {
	CreateSession(ctx context.Context, total int, method model.DiscoveryMethod) (string, error)
	CompleteSession(ctx context.Context, sessionID string, result *SessionResult) error
	FailSession(ctx context.Context, sessionID string, errMsg string) error
	// ListSessions returns sessions started at or after since, newest
	// first. A limit of 0 returns all of them.
	ListSessions(ctx context.Context, since time.Time, limit int) ([]Session, error)
	// ExistingURLs returns the subset of urls already stored.
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
	// InsertSources stores sources and their first metrics in one
	// transaction and returns the ids actually inserted. A URL that already
	// exists is skipped. metrics may be nil.
	InsertSources(ctx context.Context, sources []model.Source, metrics []model.ReliabilityMetric) ([]string, error)
	// Transition moves a source to status when its current status is one of
	// from. It reports whether a row changed.
	Transition(ctx context.Context, id string, to model.SourceStatus, from []model.SourceStatus, notes string) (bool, error)
	// Boost adds delta to the reliability score, capped at 100, and returns
	// the new score.
	Boost(ctx context.Context, id string, delta float64, notes string) (float64, error)
	Get(ctx context.Context, id string) (*model.Source, error)
	List(ctx context.Context, opts ListOpts) ([]model.Source, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateSession inserts a running session row and returns its id.
func (s *PostgresStore) CreateSession(ctx context.Context, total int, method model.DiscoveryMethod) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO discovery_sessions (method, total_candidates) VALUES ($1, $2) RETURNING id`,
		string(method), total,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrap(err, "discovery: create session")
	}
	return id, nil
}

// CompleteSession marks a session completed with its counts.
func (s *PostgresStore) CompleteSession(ctx context.Context, sessionID string, r *SessionResult) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE discovery_sessions SET
			status = 'completed',
			valid_candidates = $2,
			inserted_sources = $3,
			duplicates = $4,
			avg_confidence = $5,
			completed_at = now()
		WHERE id = $1`,
		sessionID, r.Valid, r.Inserted, r.Duplicates, r.AvgConfidence,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: complete session %s", sessionID)
	}
	return nil
}

// FailSession marks a session failed with an error message.
func (s *PostgresStore) FailSession(ctx context.Context, sessionID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE discovery_sessions SET status = 'failed', error = $2, completed_at = now() WHERE id = $1`,
		sessionID, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: fail session %s", sessionID)
	}
	return nil
}

// ListSessions implements Store.
func (s *PostgresStore) ListSessions(ctx context.Context, since time.Time, limit int) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, method, status, total_candidates, valid_candidates, inserted_sources,
			duplicates, avg_confidence, COALESCE(error, ''), started_at, completed_at
		FROM discovery_sessions
		WHERE started_at >= $1
		ORDER BY started_at DESC, id
		LIMIT NULLIF($2, 0)`, since, limit)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list sessions")
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			ss     Session
			method string
		)
		if err := rows.Scan(&ss.ID, &method, &ss.Status, &ss.Total, &ss.Valid, &ss.Inserted,
			&ss.Duplicates, &ss.AvgConfidence, &ss.Error, &ss.StartedAt, &ss.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "discovery: scan session")
		}
		ss.Method = model.DiscoveryMethod(method)
		out = append(out, ss)
	}
	return out, eris.Wrap(rows.Err(), "discovery: iterate sessions")
}

// ExistingURLs implements Store.
func (s *PostgresStore) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(urls) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT url FROM discovered_sources WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: check existing urls")
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "discovery: scan existing url")
		}
		found[u] = true
	}
	return found, eris.Wrap(rows.Err(), "discovery: iterate existing urls")
}

// InsertSources implements Store.
func (s *PostgresStore) InsertSources(ctx context.Context, sources []model.Source, metrics []model.ReliabilityMetric) ([]string, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	bySource := make(map[string]*model.ReliabilityMetric, len(metrics))
	for i := range metrics {
		bySource[metrics[i].SourceID] = &metrics[i]
	}

	var inserted []string
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		metricStore := reliability.NewPostgresStore(tx)
		for _, src := range sources {
			tag, err := tx.Exec(ctx,
				`INSERT INTO discovered_sources
					(id, url, name, location, discovery_method, business_type, reliability_score,
					 status, product_categories, quality_indicators, admin_notes, session_id,
					 discovered_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
				ON CONFLICT (url) DO NOTHING`,
				src.ID, src.URL, src.Name, src.Location, string(src.DiscoveryMethod), src.BusinessType,
				src.ReliabilityScore, string(src.Status), src.ProductCategories, src.QualityIndicators,
				src.AdminNotes, src.SessionID, src.DiscoveredAt,
			)
			if err != nil {
				return eris.Wrapf(err, "discovery: insert source %s", src.URL)
			}
			if tag.RowsAffected() == 0 {
				continue
			}
			inserted = append(inserted, src.ID)

			if m, ok := bySource[src.ID]; ok {
				if err := metricStore.InsertMetric(ctx, m); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// Transition implements Store. The status change is a compare-and-swap on
// the current status.
func (s *PostgresStore) Transition(ctx context.Context, id string, to model.SourceStatus, from []model.SourceStatus, notes string) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE discovered_sources SET
			status = $2,
			admin_notes = CASE WHEN $4 = '' THEN admin_notes ELSE $4 END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		id, string(to), allowed, notes,
	)
	if err != nil {
		return false, eris.Wrapf(err, "discovery: transition source %s to %s", id, to)
	}
	return tag.RowsAffected() > 0, nil
}

// Boost implements Store.
func (s *PostgresStore) Boost(ctx context.Context, id string, delta float64, notes string) (float64, error) {
	var score float64
	err := s.pool.QueryRow(ctx,
		`UPDATE discovered_sources SET
			reliability_score = LEAST(100, reliability_score + $2),
			admin_notes = CASE WHEN $3 = '' THEN admin_notes ELSE $3 END,
			updated_at = now()
		WHERE id = $1
		RETURNING reliability_score`,
		id, delta, notes,
	).Scan(&score)
	if db.IsNoRows(err) {
		return 0, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "discovery: boost source %s", id)
	}
	return score, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Source, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM discovered_sources WHERE id = $1`, sourceColumns), id)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: get source %s", id)
	}
	defer rows.Close()

	out, err := scanSources(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(model.ErrNotFound, "source %s", id)
	}
	return &out[0], nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, opts ListOpts) ([]model.Source, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if opts.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*opts.Status))
		argIdx++
	}

	if opts.MinScore != nil {
		conditions = append(conditions, fmt.Sprintf("reliability_score >= $%d", argIdx))
		args = append(args, *opts.MinScore)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT %s FROM discovered_sources %s ORDER BY reliability_score DESC, discovered_at DESC LIMIT $%d OFFSET $%d`,
		sourceColumns, where, argIdx, argIdx+1,
	)
	args = append(args, limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list sources")
	}
	defer rows.Close()

	return scanSources(rows)
}

// CountByStatus implements Store.
func (s *PostgresStore) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(AVG(reliability_score), 0)
		FROM discovered_sources
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: count by status")
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var c StatusCount
		var status string
		if err := rows.Scan(&status, &c.Count, &c.AvgScore); err != nil {
			return nil, eris.Wrap(err, "discovery: scan status count")
		}
		c.Status = model.SourceStatus(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "discovery: iterate status counts")
}

const sourceColumns = `id, url, name, location, discovery_method, business_type,
	reliability_score, status, product_categories, quality_indicators, admin_notes,
	COALESCE(session_id::text, ''), discovered_at, updated_at`

func scanSources(rows pgx.Rows) ([]model.Source, error) {
	var out []model.Source
	for rows.Next() {
		var (
			src            model.Source
			method, status string
		)
		if err := rows.Scan(
			&src.ID, &src.URL, &src.Name, &src.Location, &method, &src.BusinessType,
			&src.ReliabilityScore, &status, &src.ProductCategories, &src.QualityIndicators,
			&src.AdminNotes, &src.SessionID, &src.DiscoveredAt, &src.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "discovery: scan source")
		}
		src.DiscoveryMethod = model.DiscoveryMethod(method)
		src.Status = model.SourceStatus(status)
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "discovery: iterate sources")
}
