package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
)

// Queue applies admin decisions to discovered sources.
type Queue struct {
	store   Store
	boost   float64
	timeout time.Duration
	log     *zap.Logger
}

// NewQueue creates a Queue. boost is the score increase applied by Prioritize.
func NewQueue(store Store, boost float64, timeout time.Duration) *Queue {
	return &Queue{
		store:   store,
		boost:   boost,
		timeout: timeout,
		log:     zap.L().With(zap.String("component", "discovery.queue")),
	}
}

// Approve moves a discovered or validated source to approved.
func (q *Queue) Approve(ctx context.Context, id, notes string) error {
	return q.transition(ctx, id, model.SourceStatusApproved, notes)
}

// Reject moves a discovered or validated source to rejected.
func (q *Queue) Reject(ctx context.Context, id, notes string) error {
	return q.transition(ctx, id, model.SourceStatusRejected, notes)
}

// MarkValidated moves a discovered source to validated.
func (q *Queue) MarkValidated(ctx context.Context, id, notes string) error {
	return q.transition(ctx, id, model.SourceStatusValidated, notes)
}

// transition applies a compare-and-swap status change. When no row changes
// it tells a missing source apart from an illegal move.
func (q *Queue) transition(ctx context.Context, id string, to model.SourceStatus, notes string) error {
	if strings.TrimSpace(id) == "" {
		return eris.Wrap(model.ErrInvalidInput, "discovery: source id is required")
	}

	ctx, cancel := db.WithTimeout(ctx, q.timeout)
	defer cancel()

	ok, err := q.store.Transition(ctx, id, to, model.AllowedPredecessors(to), notes)
	if err != nil {
		return err
	}
	if ok {
		q.log.Info("source status changed", zap.String("source_id", id), zap.String("status", string(to)))
		return nil
	}

	src, err := q.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return eris.Wrapf(model.ErrIllegalTransition, "source %s is %s, cannot become %s", id, src.Status, to)
}

// Prioritize raises a source's reliability score by the configured boost,
// capped at 100, in any status. It returns the new score.
func (q *Queue) Prioritize(ctx context.Context, id, notes string) (float64, error) {
	if strings.TrimSpace(id) == "" {
		return 0, eris.Wrap(model.ErrInvalidInput, "discovery: source id is required")
	}

	ctx, cancel := db.WithTimeout(ctx, q.timeout)
	defer cancel()

	score, err := q.store.Boost(ctx, id, q.boost, notes)
	if err != nil {
		return 0, err
	}
	q.log.Info("source prioritized", zap.String("source_id", id), zap.Float64("score", score))
	return score, nil
}

// Get returns one source.
func (q *Queue) Get(ctx context.Context, id string) (*model.Source, error) {
	ctx, cancel := db.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.store.Get(ctx, id)
}

// List returns sources matching opts, best scores first.
func (q *Queue) List(ctx context.Context, opts ListOpts) ([]model.Source, error) {
	ctx, cancel := db.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.store.List(ctx, opts)
}

// Stats returns the number of sources and average score per status.
func (q *Queue) Stats(ctx context.Context) ([]StatusCount, error) {
	ctx, cancel := db.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.store.CountByStatus(ctx)
}
