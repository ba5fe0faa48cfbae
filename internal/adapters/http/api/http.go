// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	service "github.com/okian/circle/internal/app"
	"github.com/okian/circle/internal/domain/ledger"
	"github.com/okian/circle/internal/domain/model"
	"github.com/okian/circle/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	NewSession(ctx context.Context) string
	History(ctx context.Context, sid string) ledger.History

	Resize(ctx context.Context, sid string, surface model.Surface) (model.Point, error)

	BeginGesture(ctx context.Context, sid string, p model.Point) error
	SampleGesture(ctx context.Context, sid string, p model.Point) bool
	EndGesture(ctx context.Context, sid string) (service.Outcome, bool, error)
	AbandonGesture(ctx context.Context, sid string) bool

	Submit(ctx context.Context, sid, gestureID string, path model.Path) (service.Outcome, error)
}

const (
	defaultCookieName     = "circle_session"
	defaultRequestTimeout = 15 * time.Second

	// maxBodyBytes bounds POST bodies; a full path of 20 000 points fits.
	maxBodyBytes = 2 << 20
)

// Server wires HTTP routes for the game API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	scoresHandler  *ScoresHandler
	gestureHandler *GestureHandler

	deps           Dependencies
	cookieName     string
	cookieSecure   bool
	requestTimeout time.Duration
	logger         logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.cookieName = name
		}
	}
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(s *Server) {
		s.cookieSecure = secure
	}
}

// WithRequestTimeout bounds non-streaming handlers.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:           deps,
		cookieName:     defaultCookieName,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.scoresHandler = NewScoresHandler(deps)
	s.gestureHandler = NewGestureHandler(deps, s.logger)
	return s
}

// Register attaches all API routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))
		r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
		r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(SessionMiddleware(s.deps, s.cookieName, s.cookieSecure))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))
			r.Get("/scores", MetricsMiddleware(s.scoresHandler.HandleGetScores, "scores"))
			r.Get("/scores/fragment", MetricsMiddleware(s.scoresHandler.HandleGetFragment, "scores_fragment"))
			r.Post("/surface", MetricsMiddleware(s.scoresHandler.HandlePostSurface, "surface"))
			r.Post("/score", MetricsMiddleware(s.scoresHandler.HandlePostScore, "score"))
		})

		// The gesture stream is long-lived and runs without a timeout.
		r.Get("/gesture", MetricsMiddleware(s.gestureHandler.HandleGesture, "gesture"))
	})
}

// surfaceRequest mirrors the OpenAPI schema for POST /api/surface.
type surfaceRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// scoreRequest mirrors the OpenAPI schema for POST /api/score.
type scoreRequest struct {
	GestureID string        `json:"gesture_id"`
	Points    []model.Point `json:"points"`
}

type scoresResponse struct {
	Scores  ledger.History `json:"scores"`
	Display string         `json:"display"`
}

type centerResponse struct {
	Center model.Point `json:"center"`
}

type scoreResponse struct {
	Score     *int           `json:"score,omitempty"`
	Scores    ledger.History `json:"scores"`
	Display   string         `json:"display"`
	Duplicate bool           `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Display renders a history the way the score panel shows it: every score
// followed by "%", one per line.
func Display(h ledger.History) string {
	if len(h) == 0 {
		return ""
	}
	return ledger.Render(h, "%<br>") + "%"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure classifies err and writes the matching error response.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
