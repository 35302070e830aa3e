package api

import (
	"net/http"

	"agentwatch/internal/config"
	"agentwatch/internal/metrics"
	"agentwatch/internal/server/api/middleware"
	av1 "agentwatch/internal/server/api/v1"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Service is what the router serves: the v1 facade plus metric sources
type Service interface {
	av1.Monitor
	Metrics() *metrics.Aggregator
	AgentName(id string) string
}

// Router handles all routing logic
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger *zap.Logger
}

// NewRouter creates and configures a new router
func NewRouter(cfg *config.Config, svc Service, logger *zap.Logger) *Router {
	gin.SetMode(cfg.Server.Mode)

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: logger.Named("api"),
	}

	r.setupMiddleware()
	r.setupAPIV1(svc)

	if cfg.Metrics.Enabled {
		r.setupMetrics(svc)
	}

	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupMiddleware configures all middleware
func (r *Router) setupMiddleware() {
	m := middleware.New(r.logger)

	r.engine.Use(m.RequestID())
	r.engine.Use(m.Logger())
	r.engine.Use(m.Recovery())
	r.engine.Use(m.Secure())
}

// setupAPIV1 configures v1 API routes
func (r *Router) setupAPIV1(svc Service) {
	api := av1.NewAPI(svc, r.logger)

	v1Router := r.engine.Group("/api/v1")
	v1Router.Use(middleware.New(r.logger).NoCache())

	api.RegisterRoutes(v1Router)
}

// setupMetrics exposes agent metrics and the process collectors for scraping
func (r *Router) setupMetrics(svc Service) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewExporter(svc.Metrics(), svc.AgentName),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorLog: zap.NewStdLog(r.logger)})
	r.engine.GET(r.config.Metrics.Path, gin.WrapH(handler))
}
