// Package server exposes the engine over HTTP: scenario CRUD, run
// submission and polling, synchronous option pricing and portfolio VaR.
package server

import (
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/stochastix/riskd/internal/config"
	"github.com/stochastix/riskd/internal/engine"
	"github.com/stochastix/riskd/internal/messaging"
	"github.com/stochastix/riskd/internal/risk"
	"github.com/stochastix/riskd/internal/store"
)

// Server wires the HTTP API to the engine and its services.
type Server struct {
	logger  *zap.Logger
	cfg     *config.Config
	engine  *engine.Engine
	riskSvc *risk.Service
	repo    *store.Repository
	events  *messaging.Publisher
}

// New creates an HTTP server. events may be nil.
func New(
	logger *zap.Logger,
	cfg *config.Config,
	eng *engine.Engine,
	riskSvc *risk.Service,
	repo *store.Repository,
	events *messaging.Publisher,
) *Server {
	return &Server{
		logger:  logger,
		cfg:     cfg,
		engine:  eng,
		riskSvc: riskSvc,
		repo:    repo,
		events:  events,
	}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware("riskd"))
	router.Use(cors.Default())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/scenarios", s.handleCreateScenario)
		v1.GET("/scenarios", s.handleListScenarios)
		v1.GET("/scenarios/:id", s.handleGetScenario)
		v1.POST("/scenarios/:id/runs", s.handleStartRun)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.DELETE("/runs/:id", s.handleCancelRun)
		v1.GET("/runs/:id/result", s.handleGetResult)
		v1.POST("/pricing/option", s.handlePriceOption)
		v1.POST("/portfolio/var", s.handlePortfolioVaR)
	}

	return router
}
