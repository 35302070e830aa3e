package v1

import (
	"net/http"
	"time"

	"agentwatch/internal/server/api/response"

	"github.com/gin-gonic/gin"
)

// healthCheck handles the health endpoint
func (api *API) healthCheck(c *gin.Context) {
	status := api.monitor.Health(c.Request.Context())
	if !status.Healthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:      http.StatusServiceUnavailable,
			Message:   "unhealthy",
			Data:      status,
			RequestID: c.GetString("request_id"),
			Timestamp: time.Now(),
		})
		return
	}
	response.New(c, api.logger).Success(status)
}
