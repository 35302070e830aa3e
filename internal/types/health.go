package types

import "time"

// HealthStatus represents the monitor's own health
type HealthStatus struct {
	Healthy       bool            `json:"healthy"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       string          `json:"version"`
	StartTime     time.Time       `json:"start_time"`
	Uptime        time.Duration   `json:"uptime"`
	Monitoring    bool            `json:"monitoring"`
	AgentsByState map[string]int  `json:"agents_by_state"`
	Details       []ComponentInfo `json:"details,omitempty"`
}

// ComponentInfo represents the status of one monitor component
type ComponentInfo struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
