package conflicts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/resilience"
)

// SystemResolver is recorded as resolved_by for algorithmic resolutions.
const SystemResolver = "system"

// Resolver detects and resolves price conflicts.
type Resolver struct {
	store       Store
	threshold   float64
	window      time.Duration
	concurrency int
	batchLimit  int
	retry       resilience.RetryConfig
	timeout     time.Duration
	now         func() time.Time
	validate    *validator.Validate
	log         *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRetry sets the retry policy for batch resolution.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Resolver) { r.retry = cfg }
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver from the conflicts config section.
func NewResolver(store Store, cfg config.ConflictsConfig, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		threshold:   cfg.Threshold,
		window:      time.Duration(cfg.WindowHours) * time.Hour,
		concurrency: cfg.ResolveConcurrency,
		batchLimit:  cfg.BatchLimit,
		retry:       resilience.DefaultRetryConfig(),
		now:         time.Now,
		validate:    validator.New(),
		log:         zap.L().With(zap.String("component", "conflicts")),
	}
	for _, o := range opts {
		o(r)
	}
	if r.threshold <= 0 {
		r.threshold = 0.15
	}
	if r.window <= 0 {
		r.window = 24 * time.Hour
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	if r.batchLimit <= 0 {
		r.batchLimit = 500
	}
	if r.retry.OnRetry == nil {
		r.retry.OnRetry = resilience.RetryLogger("conflicts", "resolve")
	}
	return r
}

// DetectPriceConflicts compares the current observations of the detection
// window and stores a conflict for every disagreeing pair not already
// recorded. Running it twice over the same data creates nothing new.
func (r *Resolver) DetectPriceConflicts(ctx context.Context) ([]model.PriceConflict, error) {
	now := r.now()
	since := now.Add(-r.window)

	qctx, cancel := db.WithTimeout(ctx, r.timeout)
	obs, err := r.store.ActiveObservations(qctx, since)
	cancel()
	if err != nil {
		return nil, err
	}

	ds := FindDisagreements(obs, r.threshold)
	if len(ds) == 0 {
		r.log.Debug("no price disagreements", zap.Int("observations", len(obs)))
		return nil, nil
	}

	cs := make([]model.PriceConflict, len(ds))
	for i, d := range ds {
		cs[i] = model.PriceConflict{
			ID:             uuid.NewString(),
			CatalogItemID:  d.CatalogItemID,
			SourceAID:      d.A.SourceID,
			ObservationAID: d.A.ID,
			PriceA:         d.A.Price,
			SourceBID:      d.B.SourceID,
			ObservationBID: d.B.ID,
			PriceB:         d.B.Price,
			RelativeDiff:   d.RelativeDiff,
			DetectedAt:     now,
		}
	}

	ictx, cancel := db.WithTimeout(ctx, r.timeout)
	created, err := r.store.InsertConflicts(ictx, cs, since)
	cancel()
	if err != nil {
		return created, err
	}

	r.log.Info("price conflicts detected",
		zap.Int("observations", len(obs)),
		zap.Int("disagreements", len(ds)),
		zap.Int("created", len(created)),
	)
	return created, nil
}

// ResolveConflict resolves a pending conflict with the algorithm. Manual
// resolution goes through ResolveManually. A conflict that is already
// resolved is returned unchanged with Applied false.
func (r *Resolver) ResolveConflict(ctx context.Context, id string, method model.ResolutionMethod) (*Resolution, error) {
	if id == "" {
		return nil, eris.Wrap(model.ErrInvalidInput, "conflict id is required")
	}
	if method == "" {
		method = model.ResolutionAlgorithm
	}
	if method != model.ResolutionAlgorithm {
		return nil, eris.Wrapf(model.ErrInvalidInput, "method %q needs a price and notes, use manual resolution", method)
	}

	c, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Resolved {
		return storedResolution(c), nil
	}

	sctx, cancel := db.WithTimeout(ctx, r.timeout)
	scores, err := r.store.SourceScores(sctx, []string{c.SourceAID, c.SourceBID})
	cancel()
	if err != nil {
		return nil, err
	}
	for _, sid := range []string{c.SourceAID, c.SourceBID} {
		if _, ok := scores[sid]; !ok {
			return nil, eris.Wrapf(model.ErrNotFound, "source %s of conflict %s", sid, id)
		}
	}

	choice := Choose(*c, scores[c.SourceAID], scores[c.SourceBID])
	notes := fmt.Sprintf("picked %s, reliability %.1f vs %.1f",
		choice.SourceID, scores[c.SourceAID], scores[c.SourceBID])
	u := Update{
		Method:     model.ResolutionAlgorithm,
		Price:      choice.Price,
		Confidence: choice.Confidence,
		Notes:      notes,
		ResolvedBy: SystemResolver,
	}

	mctx, cancel := db.WithTimeout(ctx, r.timeout)
	applied, resolvedAt, err := r.store.MarkResolved(mctx, id, u)
	cancel()
	if err != nil {
		return nil, err
	}
	if !applied {
		// Resolved by someone else between the read and the update.
		c, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		return storedResolution(c), nil
	}

	r.log.Info("conflict resolved",
		zap.String("conflict_id", id),
		zap.String("winner", choice.SourceID),
		zap.Float64("price", choice.Price),
		zap.Float64("confidence", choice.Confidence),
	)
	return &Resolution{
		ConflictID:      id,
		Method:          model.ResolutionAlgorithm,
		ResolvedPrice:   choice.Price,
		WinningSourceID: choice.SourceID,
		Confidence:      choice.Confidence,
		ResolvedBy:      SystemResolver,
		ResolvedAt:      resolvedAt,
		Applied:         true,
	}, nil
}

// ResolveManually records an admin's price for a pending conflict with
// confidence 1. It reports false when the conflict was already resolved.
func (r *Resolver) ResolveManually(ctx context.Context, id string, price float64, notes, adminID string) (bool, error) {
	if id == "" {
		return false, eris.Wrap(model.ErrInvalidInput, "conflict id is required")
	}
	if price <= 0 || strings.TrimSpace(notes) == "" {
		return false, eris.Wrap(model.ErrInvalidInput, "resolution requires both a price and notes")
	}
	if adminID == "" {
		adminID = "admin"
	}

	mctx, cancel := db.WithTimeout(ctx, r.timeout)
	applied, _, err := r.store.MarkResolved(mctx, id, Update{
		Method:     model.ResolutionManual,
		Price:      price,
		Confidence: 1,
		Notes:      strings.TrimSpace(notes),
		ResolvedBy: adminID,
	})
	cancel()
	if err != nil {
		return false, err
	}
	if applied {
		r.log.Info("conflict resolved manually",
			zap.String("conflict_id", id),
			zap.String("admin", adminID),
			zap.Float64("price", price),
		)
		return true, nil
	}

	// Nothing changed: the conflict is either resolved or missing.
	if _, err := r.get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ResolveAllPendingConflicts resolves up to the batch limit of pending
// conflicts with the algorithm. Transient store failures are retried; a
// conflict that still fails is recorded and the batch continues.
func (r *Resolver) ResolveAllPendingConflicts(ctx context.Context) (*model.Summary, error) {
	lctx, cancel := db.WithTimeout(ctx, r.timeout)
	pending, err := r.store.ListPending(lctx, r.batchLimit)
	cancel()
	if err != nil {
		return nil, err
	}

	var batch model.BatchResult
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, c := range pending {
		g.Go(func() error {
			res, err := resilience.DoVal(gctx, r.retry, func(ctx context.Context) (*Resolution, error) {
				return r.ResolveConflict(ctx, c.ID, model.ResolutionAlgorithm)
			})
			switch {
			case err != nil:
				r.log.Warn("conflict resolution failed", zap.String("conflict_id", c.ID), zap.Error(err))
				batch.Fail(c.ID, err)
			case !res.Applied:
				batch.Skip(c.ID, model.ErrAlreadyResolved.Error())
			default:
				batch.Succeed(c.ID, fmt.Sprintf("%.2f from %s", res.ResolvedPrice, res.WinningSourceID))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := batch.Summarize()
	r.log.Info("pending conflicts resolved",
		zap.Int("pending", len(pending)),
		zap.Int("resolved", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return &summary, nil
}

// GetConflictResolutionStats returns aggregate resolution counts.
func (r *Resolver) GetConflictResolutionStats(ctx context.Context) (*Stats, error) {
	qctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.Stats(qctx)
}

// Get returns one conflict.
func (r *Resolver) Get(ctx context.Context, id string) (*model.PriceConflict, error) {
	return r.get(ctx, id)
}

// ListPending returns up to limit unresolved conflicts, oldest first.
func (r *Resolver) ListPending(ctx context.Context, limit int) ([]model.PriceConflict, error) {
	qctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.ListPending(qctx, limit)
}

// List returns conflicts matching opts.
func (r *Resolver) List(ctx context.Context, opts ListOpts) ([]model.PriceConflict, error) {
	qctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.List(qctx, opts)
}

// IngestObservations validates and stores price observations. Ingested
// observations are active; a missing observed_at becomes now. Nothing is
// stored when any observation is invalid.
func (r *Resolver) IngestObservations(ctx context.Context, obs []model.PriceObservation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	now := r.now()
	clean := make([]model.PriceObservation, len(obs))
	for i, o := range obs {
		if err := r.validate.Struct(o); err != nil {
			return 0, eris.Wrapf(model.ErrInvalidInput, "observation %d: %v", i, err)
		}
		o.Active = true
		if o.ObservedAt.IsZero() {
			o.ObservedAt = now
		}
		clean[i] = o
	}

	qctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.store.InsertObservations(qctx, clean)
	if err != nil {
		return 0, err
	}
	r.log.Debug("observations ingested", zap.Int64("rows", n))
	return n, nil
}

func (r *Resolver) get(ctx context.Context, id string) (*model.PriceConflict, error) {
	qctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.Get(qctx, id)
}
