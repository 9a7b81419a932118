package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/reliability"
)

type sessionRequest struct {
	Candidates []discovery.Candidate `json:"candidates" validate:"required,min=1,dive"`
	Manual     bool                  `json:"manual"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type statusResponse struct {
	ID     string             `json:"id"`
	Status model.SourceStatus `json:"status"`
}

type sessionsResponse struct {
	PeriodDays int                 `json:"period_days"`
	Sessions   []discovery.Session `json:"sessions"`
}

type performanceResponse struct {
	Performance *discovery.Performance `json:"performance"`
	Reliability *reliability.Trends    `json:"reliability"`
}

type scoreResponse struct {
	ID               string  `json:"id"`
	ReliabilityScore float64 `json:"reliability_score"`
}

func (s *Server) handleValidateCandidate(w http.ResponseWriter, r *http.Request) {
	var c discovery.Candidate
	if !s.decode(w, r, &c, false) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Discovery.ValidateSingleSource(c))
}

func (s *Server) handleRunSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	var opts []discovery.SessionOption
	if req.Manual {
		opts = append(opts, discovery.Manual())
	}
	res, err := s.svc.Discovery.RunDiscoverySession(r.Context(), req.Candidates, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(r, "days", discovery.DefaultPerformanceDays)
	if !ok {
		s.writeError(w, r, eris.Wrap(model.ErrInvalidInput, "days must be a non-negative integer"))
		return
	}
	limit, ok := intQuery(r, "limit", 50)
	if !ok {
		s.writeError(w, r, eris.Wrap(model.ErrInvalidInput, "limit must be a non-negative integer"))
		return
	}

	sessions, err := s.svc.Discovery.ListSessions(r.Context(), days, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []discovery.Session{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{PeriodDays: days, Sessions: sessions})
}

// handlePerformance reports session analytics together with the
// cross-source reliability trends of the same window.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(r, "days", discovery.DefaultPerformanceDays)
	if !ok {
		s.writeError(w, r, eris.Wrap(model.ErrInvalidInput, "days must be a non-negative integer"))
		return
	}

	perf, err := s.svc.Discovery.Performance(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trends, err := s.svc.Reliability.Trends(r.Context(), perf.Since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, performanceResponse{Performance: perf, Reliability: trends})
}

func (s *Server) handleDiscoveryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Queue.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": stats})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	var opts discovery.ListOpts
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		st, err := model.ParseSourceStatus(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		opts.Status = &st
	}
	if raw := q.Get("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, r, eris.Wrapf(model.ErrInvalidInput, "min_score %q", raw))
			return
		}
		opts.MinScore = &v
	}

	var ok bool
	if opts.Limit, ok = intQuery(r, "limit", 100); !ok {
		s.writeError(w, r, eris.Wrap(model.ErrInvalidInput, "limit must be a non-negative integer"))
		return
	}
	if opts.Offset, ok = intQuery(r, "offset", 0); !ok {
		s.writeError(w, r, eris.Wrap(model.ErrInvalidInput, "offset must be a non-negative integer"))
		return
	}

	sources, err := s.svc.Queue.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []model.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.svc.Queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleSourceAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req notesRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	ctx := r.Context()
	var (
		err    error
		status model.SourceStatus
	)
	switch chi.URLParam(r, "action") {
	case "approve":
		status = model.SourceStatusApproved
		err = s.svc.Queue.Approve(ctx, id, req.Notes)
	case "reject":
		status = model.SourceStatusRejected
		err = s.svc.Queue.Reject(ctx, id, req.Notes)
	case "validate":
		status = model.SourceStatusValidated
		err = s.svc.Queue.MarkValidated(ctx, id, req.Notes)
	case "prioritize":
		score, err := s.svc.Queue.Prioritize(ctx, id, req.Notes)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, scoreResponse{ID: id, ReliabilityScore: score})
		return
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown action"})
		return
	}

	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ID: id, Status: status})
}
