package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/basarometer/sourcectl/internal/model"
)

type resolveRequest struct {
	Method string `json:"method" validate:"omitempty,oneof=algorithm manual"`
}

// manualRequest is checked by the resolver, which reports a missing price or
// notes itself.
type manualRequest struct {
	Price   float64 `json:"price"`
	Notes   string  `json:"notes"`
	AdminID string  `json:"admin_id"`
}

type observationsRequest struct {
	Observations []model.PriceObservation `json:"observations" validate:"required,min=1,dive"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	created, err := s.svc.Conflicts.DetectPriceConflicts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if created == nil {
		created = []model.PriceConflict{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": len(created), "conflicts": created})
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(r, "limit", 100)
	if !ok {
		s.writeError(w, r, eris.Wrap(model.ErrInvalidInput, "limit must be a non-negative integer"))
		return
	}
	pending, err := s.svc.Conflicts.ListPending(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pending == nil {
		pending = []model.PriceConflict{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleConflictStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Conflicts.GetConflictResolutionStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResolveAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Conflicts.ResolveAllPendingConflicts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetConflict(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Conflicts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	method, err := model.ParseResolutionMethod(req.Method)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.Conflicts.ResolveConflict(r.Context(), chi.URLParam(r, "id"), method)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResolveManually(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	admin := req.AdminID
	if admin == "" {
		admin = r.Header.Get("X-Admin-ID")
	}

	applied, err := s.svc.Conflicts.ResolveManually(r.Context(), chi.URLParam(r, "id"), req.Price, req.Notes, admin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

func (s *Server) handleIngestObservations(w http.ResponseWriter, r *http.Request) {
	var req observationsRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	n, err := s.svc.Conflicts.IngestObservations(r.Context(), req.Observations)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"inserted": n})
}
