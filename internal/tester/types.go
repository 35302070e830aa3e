package tester

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownTestType is returned for a test name outside the closed set
	ErrUnknownTestType = errors.New("unknown test type")
	// ErrMessageRequired is returned when a custom test has an empty message
	ErrMessageRequired = errors.New("custom test requires a message")
)

// TestType is the closed set of diagnostic protocols
type TestType int

const (
	Health TestType = iota
	Latency
	Load
	Fault
	Custom
)

var testTypeNames = [...]string{
	Health:  "health",
	Latency: "latency",
	Load:    "load",
	Fault:   "fault",
	Custom:  "custom",
}

// String returns the wire name of the test type
func (t TestType) String() string {
	if t < 0 || int(t) >= len(testTypeNames) {
		return fmt.Sprintf("TestType(%d)", int(t))
	}
	return testTypeNames[t]
}

// Valid reports whether t is one of the known types
func (t TestType) Valid() bool {
	return t >= 0 && int(t) < len(testTypeNames)
}

// ParseTestType resolves a name such as "latency" or "fault-injection"
func ParseTestType(s string) (TestType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "health", "health-check", "health_check":
		return Health, nil
	case "latency":
		return Latency, nil
	case "load":
		return Load, nil
	case "fault", "fault-injection", "fault_injection", "error":
		return Fault, nil
	case "custom":
		return Custom, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTestType, s)
}

// Params carries caller input for a test run
type Params struct {
	Message string // required for Custom
}

// Config represents test protocol tuning
type Config struct {
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	ProbeTimeout        time.Duration `mapstructure:"probe_timeout"`
	LatencyIterations   int           `mapstructure:"latency_iterations"`
	LatencyPacing       time.Duration `mapstructure:"latency_pacing"`
	LoadWorkers         int           `mapstructure:"load_workers"`
	LoadCallsPerWorker  int           `mapstructure:"load_calls_per_worker"`
	FaultPacing         time.Duration `mapstructure:"fault_pacing"`
	OversizedProbeBytes int           `mapstructure:"oversized_probe_bytes"`
}

// DefaultConfig returns the standard protocol parameters
func DefaultConfig() Config {
	return Config{
		CallTimeout:         10 * time.Second,
		ProbeTimeout:        5 * time.Second,
		LatencyIterations:   10,
		LatencyPacing:       100 * time.Millisecond,
		LoadWorkers:         5,
		LoadCallsPerWorker:  4,
		FaultPacing:         500 * time.Millisecond,
		OversizedProbeBytes: 1 << 20,
	}
}

// SetDefaults fills unset fields from DefaultConfig
func (c Config) SetDefaults() Config {
	d := DefaultConfig()
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.LatencyIterations <= 0 {
		c.LatencyIterations = d.LatencyIterations
	}
	if c.LatencyPacing < 0 {
		c.LatencyPacing = d.LatencyPacing
	}
	if c.LoadWorkers <= 0 {
		c.LoadWorkers = d.LoadWorkers
	}
	if c.LoadCallsPerWorker <= 0 {
		c.LoadCallsPerWorker = d.LoadCallsPerWorker
	}
	if c.FaultPacing < 0 {
		c.FaultPacing = d.FaultPacing
	}
	if c.OversizedProbeBytes <= 0 {
		c.OversizedProbeBytes = d.OversizedProbeBytes
	}
	return c
}
