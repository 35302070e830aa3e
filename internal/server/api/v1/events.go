package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"agentwatch/internal/server/api/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// streamEvents pushes a server-sent event whenever agent state changes.
// Bursts collapse into a single pending event.
func (api *API) streamEvents(c *gin.Context) {
	// the stream outlives the server write timeout
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		api.logger.Debug("Event stream keeps server write timeout", zap.Error(err))
	}

	events := make(chan response.SSEvent, 1)
	unsubscribe := api.monitor.OnChange(func() {
		data, _ := json.Marshal(gin.H{"type": "changed", "at": time.Now()})
		select {
		case events <- response.SSEvent{Event: "changed", Data: string(data)}:
		default:
		}
	})
	defer unsubscribe()

	response.New(c, api.logger).StreamSSE(events)
}
