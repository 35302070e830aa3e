// Package monitor is the entry point tying agents, metrics, logs and tests together.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentwatch/internal/config"
	"agentwatch/internal/events"
	"agentwatch/internal/logs"
	"agentwatch/internal/metrics"
	"agentwatch/internal/registry"
	"agentwatch/internal/store"
	"agentwatch/internal/tester"
	"agentwatch/internal/transport"
	"agentwatch/internal/types"

	"go.uber.org/zap"
)

// ErrStorageDisabled is returned by report queries when no store is configured
var ErrStorageDisabled = errors.New("report storage disabled")

// Alerter receives agent failures and failed test reports
type Alerter interface {
	NotifyAgentStatus(agent types.Agent, cause string)
	NotifyTestFailed(agent types.Agent, report *types.TestReport)
}

// DialFunc opens a channel to an agent endpoint
type DialFunc func(ctx context.Context, endpoint string) (transport.Channel, error)

// Option configures a Monitor
type Option func(*Monitor)

// WithProbe replaces the process probe. A nil probe leaves memory and cpu unavailable.
func WithProbe(p metrics.ProcessProbe) Option {
	return func(m *Monitor) { m.probe = p }
}

// WithStore persists every test report
func WithStore(s store.Store) Option {
	return func(m *Monitor) { m.store = s }
}

// WithAlerter forwards failures to an alerter
func WithAlerter(a Alerter) Option {
	return func(m *Monitor) { m.alerter = a }
}

// WithPublisher publishes coalesced change events
func WithPublisher(p events.Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// WithDialer replaces the endpoint dialer used for configured agents
func WithDialer(d DialFunc) Option {
	return func(m *Monitor) { m.dial = d }
}

// WithLogSource adds a log source watched while monitoring runs
func WithLogSource(src logs.Source) Option {
	return func(m *Monitor) { m.sources = append(m.sources, src) }
}

// Monitor represents the monitoring facade
type Monitor struct {
	cfg    *config.Config
	logger *zap.Logger

	registry   *registry.Registry
	metrics    *metrics.Aggregator
	correlator *transport.Correlator
	logs       *logs.Pipeline
	tester     *tester.Orchestrator

	probe     metrics.ProcessProbe
	store     store.Store
	alerter   Alerter
	publisher events.Publisher
	dial      DialFunc
	sources   []logs.Source
	startTime time.Time

	// lifecycle of the sampler and watchers
	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// channels dialed at boot, closed by Close
	chanMu sync.Mutex
	dialed []transport.Channel

	changes *changeNotifier
}

// New creates a monitor from configuration
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	m := &Monitor{
		cfg:       cfg,
		logger:    logger.Named("monitor"),
		probe:     metrics.NewSystemProbe(),
		startTime: time.Now(),
	}
	m.dial = m.dialWebSocket
	for _, opt := range opts {
		opt(m)
	}

	m.changes = newChangeNotifier(cfg.Monitor.ChangeDebounce, m.publisher, m.logger)
	m.registry = registry.New(logger)
	m.metrics = metrics.NewAggregator(m.probe, logger)
	m.correlator = transport.NewCorrelator(recorder{m}, logger, transport.WithDefaultTimeout(cfg.Tests.CallTimeout))
	m.logs = logs.NewPipeline(cfg.Monitor.LogCapacity, m.registry, m.metrics, logger)
	m.logs.SetOnChange(m.changes.trigger)

	var liveness tester.Liveness
	if m.probe != nil {
		liveness = m.probe
	}
	m.tester = tester.New(cfg.Tests, m.correlator, m.registry, m.metrics, liveness, logger)

	for _, src := range cfg.LogSources {
		m.sources = append(m.sources, logs.NewFileSource(src.Path, src.Label, cfg.Monitor.LogTailLines, logger))
	}

	m.registry.Observe(m.onTransition)
	return m, nil
}

// recorder forwards correlator outcomes to the aggregator and signals a change
type recorder struct{ m *Monitor }

func (r recorder) RecordSuccess(agentID string, latency time.Duration) {
	r.m.metrics.RecordSuccess(agentID, latency)
	r.m.changes.trigger()
}

func (r recorder) RecordFailure(agentID string) {
	r.m.metrics.RecordFailure(agentID)
	r.m.changes.trigger()
}

// onTransition runs after every registry status change
func (m *Monitor) onTransition(t registry.Transition) {
	switch t.To {
	case types.AgentStatusRunning:
		m.metrics.Init(t.AgentID)
	case types.AgentStatusError:
		msg := t.Cause
		if msg == "" {
			msg = "agent entered error state"
		}
		m.logs.Append(t.AgentID, types.LogEntry{
			Level:     types.LogLevelError,
			Message:   msg,
			AgentName: t.Name,
			Metadata:  map[string]any{"source": "registry"},
		})
	}

	if m.alerter != nil && (t.To == types.AgentStatusError || t.To == types.AgentStatusStopped) {
		if agent, err := m.registry.Get(t.AgentID); err == nil {
			m.alerter.NotifyAgentStatus(agent, t.Cause)
		}
	}

	m.changes.trigger()
}

// Register adds an agent in Starting. When the handle carries a channel, the
// agent is marked Stopped once that channel closes.
func (m *Monitor) Register(h registry.Handle) (types.Agent, error) {
	agent, err := m.registry.Register(h)
	if err != nil {
		return types.Agent{}, err
	}
	m.metrics.Init(agent.ID)
	if h.Channel != nil {
		m.watchChannel(agent.ID, h.Channel)
	}
	return agent, nil
}

func (m *Monitor) watchChannel(agentID string, ch transport.Channel) {
	go func() {
		<-ch.Done()
		target, err := m.registry.Target(agentID)
		if err != nil || target.Channel != ch {
			return
		}
		m.logger.Info("Agent channel closed", zap.String("agent_id", agentID))
		if err := m.registry.MarkStopped(agentID); err != nil {
			m.logger.Debug("Failed to mark agent stopped", zap.String("agent_id", agentID), zap.Error(err))
		}
	}()
}

// MarkRunning moves an agent from Starting to Running
func (m *Monitor) MarkRunning(id string) error {
	return m.registry.MarkRunning(id)
}

// MarkStopped moves an agent to Stopped
func (m *Monitor) MarkStopped(id string) error {
	return m.registry.MarkStopped(id)
}

// MarkError moves an agent to Error and records cause as an error log entry
func (m *Monitor) MarkError(id, cause string) error {
	return m.registry.MarkError(id, cause)
}

// Deregister removes an agent together with its metrics and logs
func (m *Monitor) Deregister(id string) error {
	if err := m.registry.Deregister(id); err != nil {
		return err
	}
	m.correlator.Detach(id)
	m.metrics.Remove(id)
	m.logs.Remove(id)
	m.changes.trigger()
	return nil
}

// Snapshot returns copies of every agent with metrics and logs attached
func (m *Monitor) Snapshot() []types.Agent {
	agents := m.registry.List()
	for i := range agents {
		m.attach(&agents[i])
	}
	return agents
}

// Agent returns a snapshot of one agent
func (m *Monitor) Agent(id string) (types.Agent, error) {
	agent, err := m.registry.Get(id)
	if err != nil {
		return types.Agent{}, err
	}
	m.attach(&agent)
	return agent, nil
}

func (m *Monitor) attach(a *types.Agent) {
	snap := m.metrics.Snapshot(a.ID)
	a.Metrics = &snap
	a.Logs = m.logs.Entries(a.ID)
}

// Logs returns the agent's buffered entries at or above minLevel
func (m *Monitor) Logs(id string, minLevel types.LogLevel) ([]types.LogEntry, error) {
	if _, err := m.registry.Get(id); err != nil {
		return nil, err
	}
	return m.logs.Filter(id, minLevel), nil
}

// IngestLine feeds one pushed log line. It reports whether the line matched an agent.
func (m *Monitor) IngestLine(line, source string) bool {
	return m.logs.OnLine(line, source)
}

// RunTest runs a diagnostic test. Invalid input and unknown agents return an
// error; every other outcome is described by the report.
func (m *Monitor) RunTest(ctx context.Context, agentID string, tt tester.TestType, p tester.Params) (*types.TestReport, error) {
	report, err := m.tester.Run(ctx, agentID, tt, p)
	if err != nil {
		return nil, err
	}

	if m.store != nil {
		if err := m.store.SaveReport(context.WithoutCancel(ctx), report); err != nil {
			m.logger.Warn("Failed to persist test report",
				zap.String("report_id", report.ID),
				zap.Error(err))
		}
	}

	if m.alerter != nil {
		if agent, err := m.registry.Get(agentID); err == nil {
			m.alerter.NotifyTestFailed(agent, report)
		}
	}

	m.changes.trigger()
	return report, nil
}

// Reports returns persisted reports for an agent, newest first
func (m *Monitor) Reports(ctx context.Context, agentID string, limit int) ([]*types.TestReport, error) {
	if m.store == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := m.registry.Get(agentID); err != nil {
		return nil, err
	}
	return m.store.ListReports(ctx, agentID, limit)
}

// OnChange registers fn to be called after coalesced changes. The returned
// function removes the subscription.
func (m *Monitor) OnChange(fn func()) func() {
	return m.changes.subscribe(fn)
}

// Metrics returns the aggregator, used by the prometheus exporter
func (m *Monitor) Metrics() *metrics.Aggregator {
	return m.metrics
}

// AgentName returns the name of an agent, or empty if unknown
func (m *Monitor) AgentName(id string) string {
	return m.registry.Name(id)
}

// Pending returns the number of in-flight correlated calls for an agent
func (m *Monitor) Pending(agentID string) int {
	return m.correlator.Pending(agentID)
}

// Close stops monitoring and releases the store, publisher and dialed channels
func (m *Monitor) Close() error {
	m.Stop()
	m.changes.stop()

	var errs []error
	m.chanMu.Lock()
	for _, ch := range m.dialed {
		if c, ok := ch.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	m.dialed = nil
	m.chanMu.Unlock()

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}
