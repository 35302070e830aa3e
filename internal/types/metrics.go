package types

import "time"

// AgentMetrics represents running statistics for one agent
type AgentMetrics struct {
	ResponseTimeMs float64   `json:"response_time_ms"`
	RequestCount   int64     `json:"request_count"`
	ErrorCount     int64     `json:"error_count"`
	SuccessRatePct float64   `json:"success_rate_pct"`
	MemoryMB       *float64  `json:"memory_mb"` // nil when no process sample is available
	CPUPct         *float64  `json:"cpu_pct"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// SuccessRate derives the success percentage from the counters.
// It is 100 when nothing has been observed yet and always lies in [0,100].
func SuccessRate(requests, errors int64) float64 {
	total := requests + errors
	if total <= 0 {
		return 100
	}
	rate := float64(requests) / float64(total) * 100
	switch {
	case rate < 0:
		return 0
	case rate > 100:
		return 100
	}
	return rate
}
