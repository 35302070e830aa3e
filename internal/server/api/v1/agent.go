package v1

import (
	"agentwatch/internal/registry"
	"agentwatch/internal/server/api/response"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	ID        string `json:"id" validate:"omitempty,max=128"`
	Name      string `json:"name" validate:"required,agentname"`
	Framework string `json:"framework" validate:"max=64"`
	PID       int32  `json:"pid" validate:"min=0"`
}

type errorRequest struct {
	Cause string `json:"cause" validate:"max=4096"`
}

// getAgents handles retrieving all agents
func (api *API) getAgents(c *gin.Context) {
	response.New(c, api.logger).Success(api.monitor.Snapshot())
}

// getAgent handles retrieving a specific agent
func (api *API) getAgent(c *gin.Context) {
	agent, err := api.monitor.Agent(c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}
	response.New(c, api.logger).Success(agent)
}

// registerAgent handles registering or relaunching an agent
func (api *API) registerAgent(c *gin.Context) {
	var req registerRequest
	if !api.bind(c, &req) {
		return
	}

	agent, err := api.monitor.Register(registry.Handle{
		ID:        req.ID,
		Name:      req.Name,
		Framework: req.Framework,
		PID:       req.PID,
	})
	if err != nil {
		api.fail(c, err)
		return
	}
	response.New(c, api.logger).Created(agent)
}

// deregisterAgent handles removing an agent
func (api *API) deregisterAgent(c *gin.Context) {
	if err := api.monitor.Deregister(c.Param("id")); err != nil {
		api.fail(c, err)
		return
	}
	response.New(c, api.logger).NoContent()
}

func (api *API) markRunning(c *gin.Context) {
	api.transition(c, api.monitor.MarkRunning(c.Param("id")))
}

func (api *API) markStopped(c *gin.Context) {
	api.transition(c, api.monitor.MarkStopped(c.Param("id")))
}

func (api *API) markError(c *gin.Context) {
	var req errorRequest
	if c.Request.ContentLength != 0 && !api.bind(c, &req) {
		return
	}
	api.transition(c, api.monitor.MarkError(c.Param("id"), req.Cause))
}

// transition responds with the agent after a status change
func (api *API) transition(c *gin.Context, err error) {
	if err != nil {
		api.fail(c, err)
		return
	}
	api.getAgent(c)
}
