package discovery

import (
	"context"
	"math"
	"time"

	"github.com/basarometer/sourcectl/internal/db"
	"github.com/basarometer/sourcectl/internal/model"
)

// DefaultPerformanceDays is the analytics window used when none is given.
const DefaultPerformanceDays = 30

// Performance aggregates the discovery sessions of a window.
type Performance struct {
	PeriodDays         int                           `json:"period_days"`
	Since              time.Time                     `json:"since"`
	Sessions           int                           `json:"total_sessions"`
	Completed          int                           `json:"completed_sessions"`
	Failed             int                           `json:"failed_sessions"`
	Running            int                           `json:"running_sessions"`
	SessionSuccessRate float64                       `json:"session_success_rate"`
	Candidates         int                           `json:"total_candidates"`
	Validated          int                           `json:"total_validated"`
	ValidationRate     float64                       `json:"validation_rate"`
	SourcesCreated     int                           `json:"sources_created"`
	Duplicates         int                           `json:"duplicates"`
	AvgConfidence      float64                       `json:"avg_confidence"`
	DailyDiscoveryRate float64                       `json:"daily_discovery_rate"`
	ByMethod           map[model.DiscoveryMethod]int `json:"method_breakdown"`
}

// SummarizeSessions computes the performance of sessions over a window of
// days. Rates are percentages rounded to two decimals. AvgConfidence is
// weighted by each completed session's valid candidates.
func SummarizeSessions(sessions []Session, days int, since time.Time) Performance {
	p := Performance{
		PeriodDays: days,
		Since:      since,
		Sessions:   len(sessions),
		ByMethod:   make(map[model.DiscoveryMethod]int),
	}

	var confSum float64
	for _, s := range sessions {
		p.ByMethod[s.Method]++
		switch s.Status {
		case SessionCompleted:
			p.Completed++
			confSum += s.AvgConfidence * float64(s.Valid)
		case SessionFailed:
			p.Failed++
		default:
			p.Running++
		}
		p.Candidates += s.Total
		p.Validated += s.Valid
		p.SourcesCreated += s.Inserted
		p.Duplicates += s.Duplicates
	}

	if p.Sessions > 0 {
		p.SessionSuccessRate = percent(p.Completed, p.Sessions)
	}
	if p.Candidates > 0 {
		p.ValidationRate = percent(p.Validated, p.Candidates)
	}
	if p.Validated > 0 {
		p.AvgConfidence = round2(confSum / float64(p.Validated))
	}
	if days > 0 {
		p.DailyDiscoveryRate = round2(float64(p.SourcesCreated) / float64(days))
	}
	return p
}

// ListSessions returns the sessions of the last days days, newest first.
func (e *Engine) ListSessions(ctx context.Context, days, limit int) ([]Session, error) {
	_, since := window(days)

	ctx, cancel := db.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.store.ListSessions(ctx, since, limit)
}

// Performance summarizes every session of the last days days. Zero or
// negative days means DefaultPerformanceDays.
func (e *Engine) Performance(ctx context.Context, days int) (*Performance, error) {
	days, since := window(days)

	ctx, cancel := db.WithTimeout(ctx, e.timeout)
	defer cancel()

	sessions, err := e.store.ListSessions(ctx, since, 0)
	if err != nil {
		return nil, err
	}
	p := SummarizeSessions(sessions, days, since)
	return &p, nil
}

func window(days int) (int, time.Time) {
	if days <= 0 {
		days = DefaultPerformanceDays
	}
	return days, time.Now().UTC().AddDate(0, 0, -days)
}

func percent(n, of int) float64 {
	return round2(float64(n) / float64(of) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
