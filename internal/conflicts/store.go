package conflicts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
)

// Update describes how a pending conflict gets resolved.
type Update struct {
	Method     model.ResolutionMethod
	Price      float64
	Confidence float64
	Notes      string
	ResolvedBy string
}

// ListOpts filters conflict listings.
type ListOpts struct {
	Resolved      *bool
	CatalogItemID string
	Limit         int
	Offset        int
}

// Store defines persistence operations for observations and conflicts.
type Store interface {
	// ActiveObservations returns active observations made at or after since.
	ActiveObservations(ctx context.Context, since time.Time) ([]model.PriceObservation, error)
	// InsertConflicts stores new conflicts and returns those actually
	// inserted. A conflict is skipped when the same observation pair is
	// already stored, or when the item and source pair already has a
	// pending conflict or one detected at or after since.
	InsertConflicts(ctx context.Context, cs []model.PriceConflict, since time.Time) ([]model.PriceConflict, error)
	Get(ctx context.Context, id string) (*model.PriceConflict, error)
	// SourceScores returns the current reliability score of each source.
	// Sources that no longer exist are absent from the map.
	SourceScores(ctx context.Context, ids []string) (map[string]float64, error)
	// MarkResolved resolves a pending conflict. It reports false, without
	// error, when the conflict is already resolved or does not exist.
	MarkResolved(ctx context.Context, id string, u Update) (bool, time.Time, error)
	ListPending(ctx context.Context, limit int) ([]model.PriceConflict, error)
	List(ctx context.Context, opts ListOpts) ([]model.PriceConflict, error)
	Stats(ctx context.Context) (*Stats, error)
	InsertObservations(ctx context.Context, obs []model.PriceObservation) (int64, error)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ActiveObservations implements Store.
func (s *PostgresStore) ActiveObservations(ctx context.Context, since time.Time) ([]model.PriceObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, catalog_item_id, source_id, price, is_active, observed_at
		FROM price_observations
		WHERE is_active = true AND observed_at >= $1
		ORDER BY catalog_item_id, source_id, observed_at DESC`, since)
	if err != nil {
		return nil, eris.Wrap(err, "conflicts: query observations")
	}
	defer rows.Close()

	var out []model.PriceObservation
	for rows.Next() {
		var o model.PriceObservation
		if err := rows.Scan(&o.ID, &o.CatalogItemID, &o.SourceID, &o.Price, &o.Active, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "conflicts: scan observation")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "conflicts: iterate observations")
}

const insertConflictSQL = `
	INSERT INTO price_conflicts
		(id, catalog_item_id, source_a_id, observation_a_id, price_a,
		 source_b_id, observation_b_id, price_b, relative_diff, detected_at)
	SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
	WHERE NOT EXISTS (
		SELECT 1 FROM price_conflicts
		WHERE catalog_item_id = $2 AND source_a_id = $3 AND source_b_id = $6
		  AND (resolved = false OR detected_at >= $11)
	)
	ON CONFLICT DO NOTHING
	RETURNING id`

// InsertConflicts implements Store.
func (s *PostgresStore) InsertConflicts(ctx context.Context, cs []model.PriceConflict, since time.Time) ([]model.PriceConflict, error) {
	var created []model.PriceConflict
	for _, c := range cs {
		var id string
		err := s.pool.QueryRow(ctx, insertConflictSQL,
			c.ID, c.CatalogItemID, c.SourceAID, c.ObservationAID, c.PriceA,
			c.SourceBID, c.ObservationBID, c.PriceB, c.RelativeDiff, c.DetectedAt, since,
		).Scan(&id)
		if db.IsNoRows(err) {
			continue
		}
		if err != nil {
			return created, eris.Wrapf(err, "conflicts: insert conflict for item %s", c.CatalogItemID)
		}
		created = append(created, c)
	}
	return created, nil
}

const conflictColumns = `id, catalog_item_id, source_a_id, observation_a_id, price_a,
	source_b_id, observation_b_id, price_b, relative_diff, resolved,
	COALESCE(resolution_method, ''), resolved_price, resolution_confidence,
	COALESCE(admin_notes, ''), COALESCE(resolved_by, ''), detected_at, resolved_at`

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.PriceConflict, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM price_conflicts WHERE id = $1`, conflictColumns), id)
	if err != nil {
		return nil, eris.Wrapf(err, "conflicts: get conflict %s", id)
	}
	defer rows.Close()

	out, err := scanConflicts(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	return &out[0], nil
}

// SourceScores implements Store.
func (s *PostgresStore) SourceScores(ctx context.Context, ids []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, reliability_score FROM discovered_sources WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "conflicts: query source scores")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, eris.Wrap(err, "conflicts: scan source score")
		}
		out[id] = score
	}
	return out, eris.Wrap(rows.Err(), "conflicts: iterate source scores")
}

// MarkResolved implements Store.
func (s *PostgresStore) MarkResolved(ctx context.Context, id string, u Update) (bool, time.Time, error) {
	var resolvedAt time.Time
	err := s.pool.QueryRow(ctx, `
		UPDATE price_conflicts SET
			resolved = true,
			resolution_method = $2,
			resolved_price = $3,
			resolution_confidence = $4,
			admin_notes = NULLIF($5, ''),
			resolved_by = $6,
			resolved_at = now()
		WHERE id = $1 AND resolved = false
		RETURNING resolved_at`,
		id, string(u.Method), u.Price, u.Confidence, u.Notes, u.ResolvedBy,
	).Scan(&resolvedAt)
	if db.IsNoRows(err) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, eris.Wrapf(err, "conflicts: resolve conflict %s", id)
	}
	return true, resolvedAt, nil
}

// ListPending implements Store. Oldest conflicts come first.
func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]model.PriceConflict, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM price_conflicts WHERE resolved = false ORDER BY detected_at, id LIMIT $1`,
		conflictColumns), limit)
	if err != nil {
		return nil, eris.Wrap(err, "conflicts: list pending")
	}
	defer rows.Close()

	return scanConflicts(rows)
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, opts ListOpts) ([]model.PriceConflict, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if opts.Resolved != nil {
		conditions = append(conditions, fmt.Sprintf("resolved = $%d", argIdx))
		args = append(args, *opts.Resolved)
		argIdx++
	}

	if opts.CatalogItemID != "" {
		conditions = append(conditions, fmt.Sprintf("catalog_item_id = $%d", argIdx))
		args = append(args, opts.CatalogItemID)
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
		`SELECT %s FROM price_conflicts %s ORDER BY detected_at DESC, id LIMIT $%d OFFSET $%d`,
		conflictColumns, where, argIdx, argIdx+1,
	)
	args = append(args, limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "conflicts: list conflicts")
	}
	defer rows.Close()

	return scanConflicts(rows)
}

// Stats implements Store. AvgResolutionHours covers resolved conflicts only.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE resolved AND resolution_method = 'algorithm'),
			COUNT(*) FILTER (WHERE resolved AND resolution_method = 'manual'),
			COUNT(*) FILTER (WHERE NOT resolved),
			COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - detected_at)) / 3600)
				FILTER (WHERE resolved), 0)::float8
		FROM price_conflicts`,
	).Scan(&st.Total, &st.AutoResolved, &st.ManualResolved, &st.Pending, &st.AvgResolutionHours)
	if err != nil {
		return nil, eris.Wrap(err, "conflicts: query stats")
	}
	st.ResolutionRate = st.resolutionRate()
	return &st, nil
}

var observationColumns = []string{"catalog_item_id", "source_id", "price", "is_active", "observed_at"}

// InsertObservations implements Store with the COPY protocol.
func (s *PostgresStore) InsertObservations(ctx context.Context, obs []model.PriceObservation) (int64, error) {
	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{o.CatalogItemID, o.SourceID, o.Price, o.Active, o.ObservedAt}
	}
	n, err := db.CopyFrom(ctx, s.pool, "price_observations", observationColumns, rows)
	return n, eris.Wrap(err, "conflicts: insert observations")
}

func scanConflicts(rows pgx.Rows) ([]model.PriceConflict, error) {
	var out []model.PriceConflict
	for rows.Next() {
		var (
			c      model.PriceConflict
			method string
		)
		if err := rows.Scan(
			&c.ID, &c.CatalogItemID, &c.SourceAID, &c.ObservationAID, &c.PriceA,
			&c.SourceBID, &c.ObservationBID, &c.PriceB, &c.RelativeDiff, &c.Resolved,
			&method, &c.ResolvedPrice, &c.Confidence,
			&c.AdminNotes, &c.ResolvedBy, &c.DetectedAt, &c.ResolvedAt,
		); err != nil {
			return nil, eris.Wrap(err, "conflicts: scan conflict")
		}
		c.ResolutionMethod = model.ResolutionMethod(method)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "conflicts: iterate conflicts")
}
