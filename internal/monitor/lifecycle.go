package monitor

import (
	"context"
	"errors"
	"time"

	"agentwatch/internal/logs"
	"agentwatch/internal/metrics"
	"agentwatch/internal/registry"
	"agentwatch/internal/transport"

	"go.uber.org/zap"
)

const pruneInterval = time.Hour

// Start begins periodic sampling and log watching. Calling Start while
// monitoring is already running does nothing.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.sampleLoop(ctx)

	for _, src := range m.sources {
		m.wg.Add(1)
		go m.watch(ctx, src)
	}

	if m.store != nil && m.cfg.Storage.Retention > 0 {
		m.wg.Add(1)
		go m.pruneLoop(ctx)
	}

	m.logger.Info("Monitoring started",
		zap.Duration("sample_interval", m.cfg.Monitor.SampleInterval),
		zap.Int("log_sources", len(m.sources)))
}

// Stop cancels the sampler and log watchers. In-flight correlated calls are
// left to complete or time out on their own.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.runMu.Unlock()

	m.wg.Wait()
	m.logger.Info("Monitoring stopped")
}

// Running reports whether the sampler is active
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

func (m *Monitor) sampleLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.cfg.Monitor.SampleInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SampleOnce(ctx)
		}
	}
}

// SampleOnce refreshes process samples for every Running agent. Agents whose
// process is gone or whose channel has closed are marked Stopped.
func (m *Monitor) SampleOnce(ctx context.Context) {
	agents := m.registry.Running()
	if len(agents) == 0 {
		return
	}

	for _, agent := range agents {
		if ctx.Err() != nil {
			return
		}

		if target, err := m.registry.Target(agent.ID); err == nil && target.Channel != nil && !target.Channel.IsOpen() {
			m.markStopped(agent.ID, "channel closed")
			continue
		}

		err := m.metrics.Sample(ctx, agent.ID, agent.PID)
		if errors.Is(err, metrics.ErrProcessUnreachable) {
			m.markStopped(agent.ID, "process unreachable")
		}
	}

	m.changes.trigger()
}

func (m *Monitor) markStopped(agentID, reason string) {
	m.logger.Info("Stopping agent", zap.String("agent_id", agentID), zap.String("reason", reason))
	if err := m.registry.MarkStopped(agentID); err != nil {
		m.logger.Debug("Failed to mark agent stopped", zap.String("agent_id", agentID), zap.Error(err))
	}
}

func (m *Monitor) watch(ctx context.Context, src logs.Source) {
	defer m.wg.Done()

	if err := m.logs.Watch(ctx, src); err != nil && ctx.Err() == nil {
		m.logger.Error("Log watcher failed",
			zap.String("source", src.Label()),
			zap.Error(err))
	}
}

func (m *Monitor) pruneLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-m.cfg.Storage.Retention)
		if _, err := m.store.Prune(ctx, cutoff); err != nil && ctx.Err() == nil {
			m.logger.Error("Failed to prune test reports", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Bootstrap registers the statically configured agents. Agents with an
// endpoint are dialed first; a failed dial registers the agent without a channel.
func (m *Monitor) Bootstrap(ctx context.Context) error {
	var errs []error

	for _, ac := range m.cfg.Agents {
		h := registry.Handle{
			ID:        ac.ID,
			Name:      ac.Name,
			Framework: ac.Framework,
			PID:       ac.PID,
		}

		if ac.Endpoint != "" {
			ch, err := m.dial(ctx, ac.Endpoint)
			if err != nil {
				m.logger.Warn("Failed to connect to agent",
					zap.String("name", ac.Name),
					zap.String("endpoint", ac.Endpoint),
					zap.Error(err))
			} else {
				h.Channel = ch
				m.chanMu.Lock()
				m.dialed = append(m.dialed, ch)
				m.chanMu.Unlock()
			}
		}

		agent, err := m.Register(h)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if ac.Running {
			if err := m.registry.MarkRunning(agent.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (m *Monitor) dialWebSocket(ctx context.Context, endpoint string) (transport.Channel, error) {
	ch, err := transport.DialWebSocket(ctx, endpoint, transport.WebSocketConfig{}, m.logger)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
