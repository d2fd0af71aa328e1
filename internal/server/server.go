// Package server exposes the aggregation stack over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openvista/vistalink/internal/auth"
	"github.com/openvista/vistalink/internal/observability"
	"github.com/openvista/vistalink/internal/service"
)

// Server is the HTTP surface over one wired service stack.
type Server struct {
	svc       *service.Service
	router    *gin.Engine
	guard     auth.Validator
	log       zerolog.Logger
	startedAt time.Time
}

// Option adjusts Server construction.
type Option func(*Server)

// WithAPIToken gates the patient endpoints behind a bearer token. Health
// and metrics stay open for probes and scrapers.
func WithAPIToken(token string) Option {
	return func(s *Server) {
		if token != "" {
			s.guard = auth.StaticToken{Token: token}
		}
	}
}

func New(svc *service.Service, log zerolog.Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Middleware: keep it lean
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		svc:       svc,
		router:    r,
		log:       log,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Router exposes the underlying engine for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("http listener starting")
	return s.router.Run(addr)
}
