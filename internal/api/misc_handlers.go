package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
	"github.com/basarometer/sourcectl/internal/reliability"
)

type scoreRequest struct {
	DataAccuracy       *float64 `json:"data_accuracy" validate:"omitempty,gte=0,lte=100"`
	TextQuality        *float64 `json:"text_quality" validate:"omitempty,gte=0,lte=100"`
	DomainRelevance    *float64 `json:"domain_relevance" validate:"omitempty,gte=0,lte=100"`
	BusinessLegitimacy *float64 `json:"business_legitimacy" validate:"omitempty,gte=0,lte=100"`
}

type historyResponse struct {
	SourceID string                    `json:"source_id"`
	History  []model.ReliabilityMetric `json:"history"`
	Trend    *reliability.Trend        `json:"trend"`
}

type usageRequest struct {
	Success bool `json:"success"`
}

func (s *Server) handleCalculateScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	id := chi.URLParam(r, "id")
	score, err := s.svc.Reliability.CalculateReliabilityScore(r.Context(), id, reliability.RawMetricInputs{
		DataAccuracy:       req.DataAccuracy,
		TextQuality:        req.TextQuality,
		DomainRelevance:    req.DomainRelevance,
		BusinessLegitimacy: req.BusinessLegitimacy,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{ID: id, ReliabilityScore: score})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.svc.Reliability.GetSourceReliabilityHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if h == nil {
		h = []model.ReliabilityMetric{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SourceID: id, History: h, Trend: reliability.ComputeTrend(h)})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(r, "days", 0)
	if !ok {
		s.writeError(w, r, eris.Wrap(model.ErrInvalidInput, "days must be a non-negative integer"))
		return
	}
	var since time.Time
	if days > 0 {
		since = time.Now().UTC().AddDate(0, 0, -days)
	}

	trends, err := s.svc.Reliability.Trends(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

func (s *Server) handlePatternPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.svc.Learning.GetPatternPerformance(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if perf == nil {
		perf = []learning.TypePerformance{}
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) handleOptimizePatterns(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Learning.OptimizePatterns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := patterns.RecordUsage(r.Context(), s.svc.Patterns, chi.URLParam(r, "id"), req.Success); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
