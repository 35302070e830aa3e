package v1

import (
	"errors"
	"strconv"

	"agentwatch/internal/server/api/response"
	"agentwatch/internal/tester"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testRequest struct {
	Type    string `json:"type" validate:"required"`
	Message string `json:"message"`
}

// runTest handles running a diagnostic test. The request blocks until the
// report is ready.
func (api *API) runTest(c *gin.Context) {
	var req testRequest
	if !api.bind(c, &req) {
		return
	}

	tt, err := tester.ParseTestType(req.Type)
	if err != nil {
		api.fail(c, err)
		return
	}

	agentID := c.Param("id")
	report, err := api.monitor.RunTest(c.Request.Context(), agentID, tt, tester.Params{Message: req.Message})
	if err != nil {
		api.fail(c, err)
		return
	}

	api.logger.Debug("Test report ready",
		zap.String("agent_id", agentID),
		zap.String("report_id", report.ID))
	response.New(c, api.logger).Success(report)
}

// getReports handles retrieving persisted reports
func (api *API) getReports(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.New(c, api.logger).BadRequest(errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	reports, err := api.monitor.Reports(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		api.fail(c, err)
		return
	}
	response.New(c, api.logger).Success(reports)
}
