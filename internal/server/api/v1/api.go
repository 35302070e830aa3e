package v1

import (
	"context"
	"errors"
	"net/http"

	"agentwatch/internal/monitor"
	"agentwatch/internal/registry"
	"agentwatch/internal/server/api/response"
	"agentwatch/internal/tester"
	"agentwatch/internal/types"
	"agentwatch/internal/validator"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Monitor is the facade the API serves
type Monitor interface {
	Snapshot() []types.Agent
	Agent(id string) (types.Agent, error)
	Register(h registry.Handle) (types.Agent, error)
	MarkRunning(id string) error
	MarkStopped(id string) error
	MarkError(id, cause string) error
	Deregister(id string) error
	RunTest(ctx context.Context, agentID string, tt tester.TestType, p tester.Params) (*types.TestReport, error)
	Reports(ctx context.Context, agentID string, limit int) ([]*types.TestReport, error)
	Logs(id string, minLevel types.LogLevel) ([]types.LogEntry, error)
	IngestLine(line, source string) bool
	OnChange(fn func()) func()
	Health(ctx context.Context) *types.HealthStatus
}

// API represents the API
type API struct {
	monitor   Monitor
	validator *validator.Validator
	logger    *zap.Logger
}

// NewAPI creates new API
func NewAPI(mon Monitor, logger *zap.Logger) *API {
	return &API{
		monitor:   mon,
		validator: validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes registers API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	agents := r.Group("/agents")
	{
		agents.GET("", api.getAgents)
		agents.POST("", api.registerAgent)
		agents.GET("/:id", api.getAgent)
		agents.DELETE("/:id", api.deregisterAgent)
		agents.POST("/:id/running", api.markRunning)
		agents.POST("/:id/stopped", api.markStopped)
		agents.POST("/:id/error", api.markError)
		agents.POST("/:id/tests", api.runTest)
		agents.GET("/:id/reports", api.getReports)
		agents.GET("/:id/logs", api.getLogs)
	}

	r.POST("/logs", api.ingestLog)
	r.GET("/events", api.streamEvents)
	r.GET("/health", api.healthCheck)
}

// bind decodes a JSON body and validates it
func (api *API) bind(c *gin.Context, dst any) bool {
	resp := response.New(c, api.logger)
	if err := c.ShouldBindJSON(dst); err != nil {
		resp.BadRequest(errors.New("invalid request body: " + err.Error()))
		return false
	}
	if err := api.validator.Struct(dst); err != nil {
		resp.BadRequest(err)
		return false
	}
	return true
}

// fail maps monitor errors to HTTP statuses
func (api *API) fail(c *gin.Context, err error) {
	resp := response.New(c, api.logger)

	switch {
	case errors.Is(err, types.ErrAgentNotFound):
		resp.NotFound(err)
	case errors.Is(err, types.ErrAgentExists), errors.Is(err, types.ErrInvalidTransition):
		resp.Conflict(err)
	case errors.Is(err, types.ErrInvalidHandle),
		errors.Is(err, tester.ErrUnknownTestType),
		errors.Is(err, tester.ErrMessageRequired):
		resp.BadRequest(err)
	case errors.Is(err, monitor.ErrStorageDisabled):
		resp.Error(http.StatusServiceUnavailable, err)
	case errors.Is(err, context.Canceled):
		api.logger.Info("Client canceled request", zap.String("path", c.FullPath()))
	case errors.Is(err, context.DeadlineExceeded):
		resp.Error(http.StatusGatewayTimeout, errors.New("request timeout"))
	default:
		api.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		resp.InternalError(errors.New("internal server error"))
	}
}
