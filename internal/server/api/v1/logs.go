package v1

import (
	"errors"

	"agentwatch/internal/server/api/response"
	"agentwatch/internal/types"

	"github.com/gin-gonic/gin"
)

type ingestRequest struct {
	Line   string `json:"line" validate:"required"`
	Source string `json:"source" validate:"required"`
}

// getLogs handles retrieving buffered log entries, optionally filtered by minimum level
func (api *API) getLogs(c *gin.Context) {
	minLevel := types.LogLevelDebug
	if raw := c.Query("level"); raw != "" {
		if err := api.validator.Var(raw, "loglevel"); err != nil {
			response.New(c, api.logger).BadRequest(errors.New("level must be one of debug, info, warn, error"))
			return
		}
		minLevel = types.ParseLogLevel(raw)
	}

	entries, err := api.monitor.Logs(c.Param("id"), minLevel)
	if err != nil {
		api.fail(c, err)
		return
	}
	response.New(c, api.logger).Success(entries)
}

// ingestLog handles a pushed log line
func (api *API) ingestLog(c *gin.Context) {
	var req ingestRequest
	if !api.bind(c, &req) {
		return
	}

	kept := api.monitor.IngestLine(req.Line, req.Source)
	response.New(c, api.logger).Success(gin.H{"kept": kept})
}
