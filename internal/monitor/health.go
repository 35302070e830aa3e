package monitor

import (
	"context"
	"time"

	"agentwatch/internal/types"
	"agentwatch/internal/version"
)

// componentChecker is implemented by optional collaborators that can report health
type componentChecker interface {
	Health(ctx context.Context) error
}

// Health reports the monitor's own state and that of its optional collaborators
func (m *Monitor) Health(ctx context.Context) *types.HealthStatus {
	now := time.Now()
	status := &types.HealthStatus{
		Healthy:       true,
		Timestamp:     now,
		Version:       version.GetInfo().Version,
		StartTime:     m.startTime,
		Uptime:        now.Sub(m.startTime),
		Monitoring:    m.Running(),
		AgentsByState: m.registry.Counts(),
	}

	check := func(name string, enabled bool, fn func() error) {
		if !enabled {
			status.Details = append(status.Details, types.ComponentInfo{Name: name, Status: "disabled"})
			return
		}
		if err := fn(); err != nil {
			status.Healthy = false
			status.Details = append(status.Details, types.ComponentInfo{
				Name:   name,
				Status: "unhealthy",
				Error:  err.Error(),
			})
			return
		}
		status.Details = append(status.Details, types.ComponentInfo{Name: name, Status: "healthy"})
	}

	check("storage", m.store != nil, func() error {
		_, err := m.store.ListReports(ctx, "", 1)
		return err
	})

	checker, ok := m.alerter.(componentChecker)
	check("notify", ok, func() error { return checker.Health(ctx) })

	events := types.ComponentInfo{Name: "events", Status: "disabled"}
	if m.publisher != nil {
		events.Status = "enabled"
	}
	status.Details = append(status.Details, events)

	return status
}
