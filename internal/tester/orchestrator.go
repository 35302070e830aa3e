package tester

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agentwatch/internal/transport"
	"agentwatch/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Caller sends a correlated request
type Caller interface {
	Send(ctx context.Context, target transport.Target, payload any, timeout time.Duration) (*transport.Reply, error)
}

// AgentSource looks up agents under test
type AgentSource interface {
	Get(id string) (types.Agent, error)
	Target(id string) (transport.Target, error)
}

// MetricsSource reads aggregated metrics
type MetricsSource interface {
	Snapshot(agentID string) types.AgentMetrics
}

// Liveness checks whether a process is still running
type Liveness interface {
	Alive(ctx context.Context, pid int32) bool
}

// Orchestrator runs diagnostic test protocols against agents
type Orchestrator struct {
	cfg      Config
	caller   Caller
	agents   AgentSource
	metrics  MetricsSource
	liveness Liveness
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a new orchestrator. metrics and liveness may be nil.
func New(cfg Config, caller Caller, agents AgentSource, metrics MetricsSource, liveness Liveness, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.SetDefaults(),
		caller:   caller,
		agents:   agents,
		metrics:  metrics,
		liveness: liveness,
		logger:   logger.Named("tester"),
		now:      time.Now,
	}
}

// Validate rejects input that can never produce a report
func Validate(tt TestType, p Params) error {
	if !tt.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownTestType, int(tt))
	}
	if tt == Custom && strings.TrimSpace(p.Message) == "" {
		return ErrMessageRequired
	}
	return nil
}

// Run executes one test and returns its report. Transport failures are
// captured in the report; only invalid input or an unknown agent return an error.
func (o *Orchestrator) Run(ctx context.Context, agentID string, tt TestType, p Params) (*types.TestReport, error) {
	if err := Validate(tt, p); err != nil {
		return nil, err
	}

	agent, err := o.agents.Get(agentID)
	if err != nil {
		return nil, err
	}
	target, err := o.agents.Target(agentID)
	if err != nil {
		return nil, err
	}

	report := &types.TestReport{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		TestType:  tt.String(),
		StartedAt: o.now(),
	}

	o.logger.Info("Running test",
		zap.String("agent_id", agentID),
		zap.String("test_type", tt.String()))

	var success *bool
	switch tt {
	case Health:
		details := o.runHealth(ctx, agent, target)
		report.Details, success = details, boolPtr(len(details.Errors) == 0)
	case Latency:
		details := o.runLatency(ctx, target)
		report.Details, success = details, boolPtr(details.Failures == 0)
	case Load:
		details := o.runLoad(ctx, target)
		report.Details, success = details, boolPtr(details.Failures == 0)
	case Fault:
		report.Details = o.runFault(ctx, target)
	case Custom:
		details := o.runCustom(ctx, target, p.Message)
		report.Details, success = details, boolPtr(len(details.Errors) == 0)
	}

	report.Success = success
	report.DurationMs = o.now().Sub(report.StartedAt).Milliseconds()

	o.logger.Info("Test finished",
		zap.String("agent_id", agentID),
		zap.String("test_type", tt.String()),
		zap.Int64("duration_ms", report.DurationMs),
		zap.Bool("passed", report.Passed()))
	return report, nil
}

// call performs one correlated call and converts the outcome into a CallResult
func (o *Orchestrator) call(ctx context.Context, target transport.Target, payload any, timeout time.Duration) (types.CallResult, *transport.Reply) {
	reply, err := o.caller.Send(ctx, target, payload, timeout)
	if err != nil {
		return types.CallResult{Error: err.Error()}, nil
	}

	res := types.CallResult{
		Success:        reply.Error == "",
		ResponseTimeMs: durationMs(reply.Latency),
		Simulated:      reply.Simulated,
		Error:          reply.Error,
	}
	return res, reply
}

func pingPayload(seq int) map[string]any {
	return map[string]any{
		"type":      "ping",
		"sequence":  seq,
		"timestamp": time.Now().UnixMilli(),
	}
}

// pause waits d or until ctx is done
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func boolPtr(b bool) *bool {
	return &b
}

// decodePayload returns the reply payload as a generic JSON value, or as text when undecodable
func decodePayload(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
