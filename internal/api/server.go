package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/nimbuslabs/nimbus/internal/api/handler"
	mw "github.com/nimbuslabs/nimbus/internal/api/middleware"
	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/core"
)

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	corePool       *pgxpool.Pool
	temporalClient temporalclient.Client
	cfg            *config.Config

	projects *core.ProjectService
	steps    *core.ProvisioningStepService
	keys     *core.APIKeyService
}

func NewServer(logger zerolog.Logger, coreDB *pgxpool.Pool, temporalClient temporalclient.Client, cfg *config.Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		corePool:       coreDB,
		temporalClient: temporalClient,
		cfg:            cfg,
		projects:       core.NewProjectService(coreDB),
		steps:          core.NewProvisioningStepService(coreDB),
		keys:           core.NewAPIKeyService(coreDB),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Projects
		project := handler.NewProject(s.projects, s.temporalClient)
		r.Get("/projects", project.List)
		r.Post("/projects", project.Create)
		r.Get("/projects/{id}", project.Get)
		r.Post("/projects/{id}/status", project.TransitionStatus)
		r.Delete("/projects/{id}", project.Delete)

		// Provisioning
		provisioning := handler.NewProvisioning(s.steps, s.temporalClient)
		r.Get("/provisioning/steps", provisioning.Catalog)
		r.Get("/projects/{id}/provisioning", provisioning.Status)
		r.Post("/projects/{id}/provisioning/{stepName}/run", provisioning.RunStep)
		r.Post("/projects/{id}/provisioning/{stepName}/retry", provisioning.RetryStep)

		// API keys
		apiKey := handler.NewAPIKey(s.keys)
		r.Get("/projects/{id}/api-keys", apiKey.List)
		r.Delete("/api-keys/{id}", apiKey.Revoke)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.corePool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
