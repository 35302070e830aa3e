package types

import "time"

// AgentStatus represents the lifecycle state of a monitored agent
type AgentStatus string

const (
	AgentStatusStarting AgentStatus = "starting"
	AgentStatusRunning  AgentStatus = "running"
	AgentStatusStopped  AgentStatus = "stopped"
	AgentStatusError    AgentStatus = "error"
)

// Valid reports whether s is a known status
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusStarting, AgentStatusRunning, AgentStatusStopped, AgentStatusError:
		return true
	}
	return false
}

// Agent is a read-only snapshot of a monitored agent.
// Metrics and Logs are filled in by the monitor from their owning components.
type Agent struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Framework    string        `json:"framework"`
	Status       AgentStatus   `json:"status"`
	PID          int32         `json:"pid,omitempty"`
	HasTransport bool          `json:"has_transport"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	LastError    string        `json:"last_error,omitempty"`
	Metrics      *AgentMetrics `json:"metrics,omitempty"`
	Logs         []LogEntry    `json:"logs,omitempty"`
}

// Uptime returns time elapsed since the agent entered running state
func (a *Agent) Uptime(now time.Time) time.Duration {
	if a.StartedAt == nil || a.Status != AgentStatusRunning {
		return 0
	}
	return now.Sub(*a.StartedAt)
}
