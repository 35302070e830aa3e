package metrics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"agentwatch/internal/types"

	"go.uber.org/zap"
)

// Observation is one discrete input to an agent's statistics
type Observation struct {
	Latency  time.Duration
	Failed   bool
	LogError bool // error-level log line without a matching request
}

// stats holds raw counters for one agent. Success rate is never stored.
type stats struct {
	responseTimeMs float64
	requests       int64
	errors         int64
	memoryMB       *float64
	cpuPct         *float64
	lastActiveAt   time.Time
}

// Aggregator maintains running statistics per agent
type Aggregator struct {
	probe  ProcessProbe
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	agents map[string]*stats
}

// NewAggregator creates a new aggregator. probe may be nil to disable process sampling.
func NewAggregator(probe ProcessProbe, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		probe:  probe,
		logger: logger.Named("metrics"),
		now:    time.Now,
		agents: make(map[string]*stats),
	}
}

// Init ensures a zeroed entry exists. Existing counters are kept across relaunches.
// Only Init creates entries; observations for unknown agents are ignored.
func (a *Aggregator) Init(agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.agents[agentID]; !ok {
		a.agents[agentID] = &stats{}
	}
}

// Record applies an observation
func (a *Aggregator) Record(agentID string, obs Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.agents[agentID]
	if !ok {
		return
	}
	switch {
	case obs.LogError, obs.Failed:
		s.errors++
	default:
		s.requests++
		s.responseTimeMs = float64(obs.Latency.Microseconds()) / 1000
	}
	s.lastActiveAt = a.now()
}

// RecordSuccess records a completed call and its latency
func (a *Aggregator) RecordSuccess(agentID string, latency time.Duration) {
	a.Record(agentID, Observation{Latency: latency})
}

// RecordFailure records a timed-out or failed call
func (a *Aggregator) RecordFailure(agentID string) {
	a.Record(agentID, Observation{Failed: true})
}

// RecordLogError records an out-of-band failure reported through the agent's logs
func (a *Aggregator) RecordLogError(agentID string) {
	a.Record(agentID, Observation{LogError: true})
}

// Snapshot returns a copy of the agent's metrics, zeroed if unknown
func (a *Aggregator) Snapshot(agentID string) types.AgentMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.agents[agentID]
	if !ok {
		return types.AgentMetrics{SuccessRatePct: types.SuccessRate(0, 0)}
	}
	return s.snapshot()
}

// All returns snapshots for every tracked agent
func (a *Aggregator) All() map[string]types.AgentMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]types.AgentMetrics, len(a.agents))
	for id, s := range a.agents {
		out[id] = s.snapshot()
	}
	return out
}

// IDs returns tracked agent ids in sorted order
func (a *Aggregator) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.agents))
	for id := range a.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sample refreshes memory, cpu and last activity from the backing process.
// It returns ErrProcessUnreachable when the process can no longer be queried.
// Without a pid or probe only lastActiveAt moves; memory and cpu stay unavailable.
func (a *Aggregator) Sample(ctx context.Context, agentID string, pid int32) error {
	if pid == 0 || a.probe == nil {
		a.update(agentID, func(s *stats) {
			s.memoryMB, s.cpuPct = nil, nil
			s.lastActiveAt = a.now()
		})
		return nil
	}

	sample, err := a.probe.Sample(ctx, pid)
	if err != nil {
		a.update(agentID, func(s *stats) {
			s.memoryMB, s.cpuPct = nil, nil
		})

		if errors.Is(err, ErrProcessUnreachable) {
			return err
		}
		a.logger.Warn("Failed to sample process",
			zap.String("agent_id", agentID),
			zap.Int32("pid", pid),
			zap.Error(err))
		return nil
	}

	mem, cpu := sample.MemoryMB, sample.CPUPct
	a.update(agentID, func(s *stats) {
		s.memoryMB, s.cpuPct = &mem, &cpu
		s.lastActiveAt = a.now()
	})
	return nil
}

// Remove drops the agent's statistics
func (a *Aggregator) Remove(agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.agents, agentID)
}

// update applies fn to a tracked agent's stats under the lock
func (a *Aggregator) update(agentID string, fn func(s *stats)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.agents[agentID]; ok {
		fn(s)
	}
}

func (s *stats) snapshot() types.AgentMetrics {
	m := types.AgentMetrics{
		ResponseTimeMs: s.responseTimeMs,
		RequestCount:   s.requests,
		ErrorCount:     s.errors,
		SuccessRatePct: types.SuccessRate(s.requests, s.errors),
		LastActiveAt:   s.lastActiveAt,
	}
	if s.memoryMB != nil {
		v := *s.memoryMB
		m.MemoryMB = &v
	}
	if s.cpuPct != nil {
		v := *s.cpuPct
		m.CPUPct = &v
	}
	return m
}
