// Package api exposes the admin and collaborator HTTP surface: the discovery
// queue, reliability scoring, conflict resolution and pattern maintenance.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/conflicts"
	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/learning"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
	"github.com/basarometer/sourcectl/internal/reliability"
)

// DiscoveryService validates candidates and runs discovery sessions.
type DiscoveryService interface {
	ValidateSingleSource(c discovery.Candidate) discovery.ValidationResult
	RunDiscoverySession(ctx context.Context, candidates []discovery.Candidate, opts ...discovery.SessionOption) (*discovery.SessionResult, error)
	ListSessions(ctx context.Context, days, limit int) ([]discovery.Session, error)
	Performance(ctx context.Context, days int) (*discovery.Performance, error)
}

// QueueService applies admin decisions to discovered sources.
type QueueService interface {
	Approve(ctx context.Context, id, notes string) error
	Reject(ctx context.Context, id, notes string) error
	MarkValidated(ctx context.Context, id, notes string) error
	Prioritize(ctx context.Context, id, notes string) (float64, error)
	Get(ctx context.Context, id string) (*model.Source, error)
	List(ctx context.Context, opts discovery.ListOpts) ([]model.Source, error)
	Stats(ctx context.Context) ([]discovery.StatusCount, error)
}

// ReliabilityService scores sources.
type ReliabilityService interface {
	CalculateReliabilityScore(ctx context.Context, sourceID string, in reliability.RawMetricInputs) (float64, error)
	GetSourceReliabilityHistory(ctx context.Context, sourceID string) ([]model.ReliabilityMetric, error)
	Trends(ctx context.Context, since time.Time) (*reliability.Trends, error)
}

// ConflictService detects and resolves price conflicts.
type ConflictService interface {
	DetectPriceConflicts(ctx context.Context) ([]model.PriceConflict, error)
	ResolveConflict(ctx context.Context, id string, method model.ResolutionMethod) (*conflicts.Resolution, error)
	ResolveManually(ctx context.Context, id string, price float64, notes, adminID string) (bool, error)
	ResolveAllPendingConflicts(ctx context.Context) (*model.Summary, error)
	GetConflictResolutionStats(ctx context.Context) (*conflicts.Stats, error)
	Get(ctx context.Context, id string) (*model.PriceConflict, error)
	ListPending(ctx context.Context, limit int) ([]model.PriceConflict, error)
	IngestObservations(ctx context.Context, obs []model.PriceObservation) (int64, error)
}

// LearningService reports and tunes pattern performance.
type LearningService interface {
	GetPatternPerformance(ctx context.Context) ([]learning.TypePerformance, error)
	OptimizePatterns(ctx context.Context) (*learning.OptimizeResult, error)
}

// Services are the engines behind the HTTP surface.
type Services struct {
	Discovery   DiscoveryService
	Queue       QueueService
	Reliability ReliabilityService
	Conflicts   ConflictService
	Learning    LearningService
	Patterns    patterns.Store
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	svc      Services
	router   *chi.Mux
	validate *Validator
	ingest   *KeyedLimiter
	origins  []string
	log      *zap.Logger
}

// NewServer creates a Server with all routes configured.
func NewServer(svc Services, cfg config.ServerConfig) *Server {
	rps := cfg.IngestRatePerSec
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.IngestBurst
	if burst <= 0 {
		burst = int(rps) * 2
	}

	s := &Server{
		svc:      svc,
		router:   chi.NewRouter(),
		validate: NewValidator(),
		ingest:   NewKeyedLimiter(rps, burst),
		origins:  cfg.AllowedOrigins,
		log:      zap.L().With(zap.String("component", "api")),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/discovery", func(r chi.Router) {
		r.Post("/validate", s.handleValidateCandidate)
		r.Post("/sessions", s.handleRunSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/performance", s.handlePerformance)
		r.Get("/stats", s.handleDiscoveryStats)
		r.Get("/sources", s.handleListSources)
		r.Get("/sources/{id}", s.handleGetSource)
		r.Post("/sources/{id}/{action}", s.handleSourceAction)
	})

	s.router.Route("/reliability", func(r chi.Router) {
		r.Get("/trends", s.handleTrends)
		r.Post("/{id}", s.handleCalculateScore)
		r.Get("/{id}/history", s.handleHistory)
	})

	s.router.Route("/conflicts", func(r chi.Router) {
		r.Post("/detect", s.handleDetect)
		r.Get("/pending", s.handleListPending)
		r.Get("/stats", s.handleConflictStats)
		r.Post("/resolve-all", s.handleResolveAll)
		r.Get("/{id}", s.handleGetConflict)
		r.Post("/{id}/resolve", s.handleResolve)
		r.Post("/{id}/manual", s.handleResolveManually)
	})

	s.router.With(s.rateLimit(s.ingest)).Post("/observations", s.handleIngestObservations)

	s.router.Route("/patterns", func(r chi.Router) {
		r.Get("/performance", s.handlePatternPerformance)
		r.Post("/optimize", s.handleOptimizePatterns)
		r.Post("/{id}/usage", s.handleRecordUsage)
	})
}

// requestLogger logs one line per request with the global zap logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
