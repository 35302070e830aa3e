package tester

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"agentwatch/internal/transport"
	"agentwatch/internal/types"

	"go.uber.org/zap"
)

const errProcessNotRunning = "process not running"

func (o *Orchestrator) runHealth(ctx context.Context, agent types.Agent, target transport.Target) *types.HealthDetails {
	details := &types.HealthDetails{
		Status:   agent.Status,
		UptimeMs: agent.Uptime(o.now()).Milliseconds(),
		Errors:   []string{},
	}

	res, _ := o.call(ctx, target, pingPayload(0), o.cfg.ProbeTimeout)
	details.ResponseTimeMs = res.ResponseTimeMs
	if !res.Success {
		details.Errors = append(details.Errors, res.Error)
	}

	if target.PID != 0 && o.liveness != nil {
		alive := o.liveness.Alive(ctx, target.PID)
		details.ProcessAlive = &alive
		if !alive {
			details.Errors = append(details.Errors, errProcessNotRunning)
		}
	}

	if o.metrics != nil {
		details.MemoryMB = o.metrics.Snapshot(agent.ID).MemoryMB
	}
	return details
}

func (o *Orchestrator) runLatency(ctx context.Context, target transport.Target) *types.LatencyDetails {
	n := o.cfg.LatencyIterations
	calls := make([]types.CallResult, 0, n)

	for i := 0; i < n; i++ {
		if i > 0 {
			pause(ctx, o.cfg.LatencyPacing)
		}
		res, _ := o.call(ctx, target, pingPayload(i), o.cfg.CallTimeout)
		res.Index = i
		calls = append(calls, res)
	}

	return &types.LatencyDetails{
		LatencyStats: computeStats(calls),
		Calls:        calls,
		Errors:       collectErrors(calls),
	}
}

// runLoad fans out LoadWorkers goroutines, each issuing LoadCallsPerWorker
// sequential calls, and joins on all of them
func (o *Orchestrator) runLoad(ctx context.Context, target transport.Target) *types.LoadDetails {
	workers, perWorker := o.cfg.LoadWorkers, o.cfg.LoadCallsPerWorker
	calls := make([]types.CallResult, workers*perWorker)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for k := 0; k < perWorker; k++ {
				idx := w*perWorker + k
				res, _ := o.call(ctx, target, pingPayload(idx), o.cfg.CallTimeout)
				res.Index = idx
				res.Worker = w
				calls[idx] = res
			}
		}(w)
	}
	wg.Wait()

	return &types.LoadDetails{
		LatencyStats:   computeStats(calls),
		Workers:        workers,
		CallsPerWorker: perWorker,
		WallTimeMs:     time.Since(start).Milliseconds(),
		Calls:          calls,
		Errors:         collectErrors(calls),
	}
}

type faultProbe struct {
	name    string
	payload any
}

func (o *Orchestrator) faultProbes() []faultProbe {
	return []faultProbe{
		// a JSON string whose bytes are not valid UTF-8
		{name: "invalid_encoding", payload: transport.Raw("\"\xff\xfe\xfd\xc3\x28\"")},
		{name: "empty_body", payload: ""},
		{name: "oversized_body", payload: strings.Repeat("A", o.cfg.OversizedProbeBytes)},
		{name: "reserved_characters", payload: "\x00\x1b[2J{\"id\":null}</script>'; DROP TABLE agents; --\\"},
		{name: "non_ascii", payload: "héllo wörld 你好 مرحبا 🚀 Ω≈ç√"},
	}
}

func (o *Orchestrator) runFault(ctx context.Context, target transport.Target) *types.FaultDetails {
	probes := o.faultProbes()
	details := &types.FaultDetails{Probes: make([]types.FaultProbeResult, 0, len(probes))}

	for i, probe := range probes {
		if i > 0 {
			pause(ctx, o.cfg.FaultPacing)
		}

		start := time.Now()
		reply, err := o.caller.Send(ctx, target, probe.payload, o.cfg.ProbeTimeout)
		result := types.FaultProbeResult{
			Name:    probe.name,
			Outcome: classifyFault(err),
		}
		if err != nil {
			result.Error = err.Error()
			result.ResponseTimeMs = durationMs(time.Since(start))
		} else {
			result.Error = reply.Error
			result.ResponseTimeMs = durationMs(reply.Latency)
		}

		switch result.Outcome {
		case types.FaultGraceful:
			details.Graceful++
		case types.FaultTimeout:
			details.Timeout++
		case types.FaultCrashed:
			details.Crashed++
		case types.FaultUnreachable:
			details.Unreachable++
		}
		details.Probes = append(details.Probes, result)

		o.logger.Debug("Fault probe finished",
			zap.String("agent_id", target.AgentID),
			zap.String("probe", probe.name),
			zap.String("outcome", string(result.Outcome)))
	}
	return details
}

// classifyFault maps a call outcome to a fault classification.
// Any reply, even one carrying an error, counts as graceful. Only a closed
// transport counts as a crash.
func classifyFault(err error) types.FaultOutcome {
	switch {
	case err == nil:
		return types.FaultGraceful
	case errors.Is(err, transport.ErrUnreachable):
		return types.FaultUnreachable
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.FaultTimeout
	default:
		return types.FaultCrashed
	}
}

func (o *Orchestrator) runCustom(ctx context.Context, target transport.Target, message string) *types.CustomDetails {
	details := &types.CustomDetails{Message: message, Errors: []string{}}

	var payload any = message
	if json.Valid([]byte(message)) {
		payload = json.RawMessage(message)
	}

	res, reply := o.call(ctx, target, payload, o.cfg.CallTimeout)
	details.ResponseTimeMs = res.ResponseTimeMs
	details.Simulated = res.Simulated
	if reply != nil {
		details.Response = decodePayload(reply.Payload)
	}
	if !res.Success {
		details.Errors = append(details.Errors, res.Error)
	}
	return details
}

// computeStats aggregates results; min, max and average cover successful calls only
func computeStats(calls []types.CallResult) types.LatencyStats {
	stats := types.LatencyStats{Total: len(calls)}

	var sum float64
	for _, c := range calls {
		if !c.Success {
			stats.Failures++
			continue
		}
		if stats.Successes == 0 || c.ResponseTimeMs < stats.MinMs {
			stats.MinMs = c.ResponseTimeMs
		}
		if c.ResponseTimeMs > stats.MaxMs {
			stats.MaxMs = c.ResponseTimeMs
		}
		sum += c.ResponseTimeMs
		stats.Successes++
	}

	if stats.Successes > 0 {
		stats.AverageMs = sum / float64(stats.Successes)
	}
	if stats.Total > 0 {
		stats.SuccessRatePct = float64(stats.Successes) / float64(stats.Total) * 100
	}
	return stats
}

func collectErrors(calls []types.CallResult) []string {
	errs := []string{}
	for _, c := range calls {
		if !c.Success {
			errs = append(errs, c.Error)
		}
	}
	return errs
}
