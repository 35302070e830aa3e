package types

import "time"

// TestReport is the immutable result of one diagnostic test run
type TestReport struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	TestType   string    `json:"test_type"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	// Success is nil for fault-injection reports, which carry a classification instead.
	Success *bool `json:"success,omitempty"`
	Details any   `json:"details"`
}

// Passed reports whether the test explicitly succeeded
func (r *TestReport) Passed() bool {
	return r.Success != nil && *r.Success
}

// HealthDetails is the payload of a health check report
type HealthDetails struct {
	Status         AgentStatus `json:"status"`
	UptimeMs       int64       `json:"uptime_ms"`
	MemoryMB       *float64    `json:"memory_mb"`
	ResponseTimeMs float64     `json:"response_time_ms"`
	ProcessAlive   *bool       `json:"process_alive,omitempty"`
	Errors         []string    `json:"errors"`
}

// CallResult describes one correlated call within a multi-call test
type CallResult struct {
	Index          int     `json:"index"`
	Worker         int     `json:"worker,omitempty"`
	Success        bool    `json:"success"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Simulated      bool    `json:"simulated,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// LatencyStats aggregates successful call latencies
type LatencyStats struct {
	Total          int     `json:"total"`
	Successes      int     `json:"successes"`
	Failures       int     `json:"failures"`
	SuccessRatePct float64 `json:"success_rate_pct"`
	MinMs          float64 `json:"min_ms"`
	MaxMs          float64 `json:"max_ms"`
	AverageMs      float64 `json:"average_ms"`
}

// LatencyDetails is the payload of a latency test report
type LatencyDetails struct {
	LatencyStats
	Calls  []CallResult `json:"calls"`
	Errors []string     `json:"errors"`
}

// LoadDetails is the payload of a load test report
type LoadDetails struct {
	LatencyStats
	Workers        int          `json:"workers"`
	CallsPerWorker int          `json:"calls_per_worker"`
	WallTimeMs     int64        `json:"wall_time_ms"`
	Calls          []CallResult `json:"calls"`
	Errors         []string     `json:"errors"`
}

// FaultOutcome classifies how an agent handled a fault probe
type FaultOutcome string

const (
	FaultGraceful FaultOutcome = "graceful"
	FaultTimeout  FaultOutcome = "timeout"
	FaultCrashed  FaultOutcome = "crashed"
	// FaultUnreachable marks a probe that was never attempted: no channel and no pid
	FaultUnreachable FaultOutcome = "unreachable"
)

// FaultProbeResult describes the outcome of one fault probe
type FaultProbeResult struct {
	Name           string       `json:"name"`
	Outcome        FaultOutcome `json:"outcome"`
	ResponseTimeMs float64      `json:"response_time_ms"`
	Error          string       `json:"error,omitempty"`
}

// FaultDetails is the payload of a fault-injection report
type FaultDetails struct {
	Graceful    int                `json:"graceful"`
	Timeout     int                `json:"timeout"`
	Crashed     int                `json:"crashed"`
	Unreachable int                `json:"unreachable,omitempty"`
	Probes      []FaultProbeResult `json:"probes"`
}

// CustomDetails is the payload of a custom test report
type CustomDetails struct {
	Message        string   `json:"message"`
	Response       any      `json:"response"`
	ResponseTimeMs float64  `json:"response_time_ms"`
	Simulated      bool     `json:"simulated,omitempty"`
	Errors         []string `json:"errors"`
}
