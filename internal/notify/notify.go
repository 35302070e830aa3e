package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentwatch/internal/config"
	"agentwatch/internal/retry"
	"agentwatch/internal/types"

	"go.uber.org/zap"
)

// deliveryTimeout bounds one event delivery including retries
const deliveryTimeout = 5 * time.Minute

// notification represents a notification to be sent
type notification struct {
	notifierType NotifierType
	event        Event
}

// Manager represents notifier manager
type Manager struct {
	config      *config.NotifyConfig
	logger      *zap.Logger
	notifiers   map[NotifierType]Notifier
	mu          sync.RWMutex
	rateLimiter *RateLimiter
	notifyChan  chan notification
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewManager creates new notifier manager
func NewManager(cfg *config.NotifyConfig, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notify config is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:      cfg,
		logger:      logger.Named("notify"),
		notifiers:   make(map[NotifierType]Notifier),
		rateLimiter: NewRateLimiter(cfg.RateLimit.Interval, cfg.RateLimit.MaxEvents),
		notifyChan:  make(chan notification, 100),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.Enabled && cfg.Webhook.Enabled {
		if n, err := NewWebhookNotifier(&cfg.Webhook, m.logger); err == nil {
			m.notifiers[NotifierWebhook] = n
		} else {
			m.logger.Error("Failed to initialize webhook notifier", zap.Error(err))
		}
	}

	if cfg.Enabled && cfg.Slack.Enabled {
		if n, err := NewSlackNotifier(&cfg.Slack, m.logger); err == nil {
			m.notifiers[NotifierSlack] = n
		} else {
			m.logger.Error("Failed to initialize slack notifier", zap.Error(err))
		}
	}

	m.wg.Add(1)
	go m.processNotifications()

	return m, nil
}

// Register adds or replaces a notifier
func (m *Manager) Register(t NotifierType, n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers[t] = n
}

// processNotifications handles notification sending in background
func (m *Manager) processNotifications() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case n := <-m.notifyChan:
			m.deliver(n)
		}
	}
}

func (m *Manager) deliver(n notification) {
	m.mu.RLock()
	notifier, ok := m.notifiers[n.notifierType]
	m.mu.RUnlock()

	if !ok {
		return
	}

	if m.config.RateLimit.Enabled && !m.rateLimiter.AllowNotification(n.notifierType) {
		m.logger.Warn("Rate limit exceeded for notifier",
			zap.String("type", string(n.notifierType)),
			zap.String("event", string(n.event.Type)))
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, deliveryTimeout)
	defer cancel()

	err := retry.Execute(ctx, m.config.Retry, m.logger, func(ctx context.Context) error {
		return notifier.Notify(ctx, n.event)
	})
	if err != nil {
		m.logger.Error("Failed to send notification",
			zap.String("type", string(n.notifierType)),
			zap.String("event", string(n.event.Type)),
			zap.String("agent_id", n.event.AgentID),
			zap.Error(err))
	}
}

// Publish queues an event for every registered notifier. Events are dropped
// rather than blocking the caller when the queue is full.
func (m *Manager) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for t := range m.notifiers {
		select {
		case m.notifyChan <- notification{notifierType: t, event: event}:
		default:
			m.logger.Warn("Notification queue full, dropping event",
				zap.String("type", string(t)),
				zap.String("event", string(event.Type)))
		}
	}
}

// NotifyAgentStatus alerts on an agent entering Error or Stopped
func (m *Manager) NotifyAgentStatus(agent types.Agent, cause string) {
	var eventType EventType
	switch agent.Status {
	case types.AgentStatusError:
		eventType = EventAgentError
	case types.AgentStatusStopped:
		eventType = EventAgentStopped
	default:
		return
	}

	m.Publish(Event{
		Type:      eventType,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Framework: agent.Framework,
		Status:    agent.Status,
		Cause:     cause,
	})
}

// NotifyTestFailed alerts on a report that did not pass.
// Fault reports carry no verdict and only alert when a probe crashed the agent.
func (m *Manager) NotifyTestFailed(agent types.Agent, report *types.TestReport) {
	if !m.config.OnTestFailure || report == nil || report.Passed() {
		return
	}
	if report.Success == nil {
		details, ok := report.Details.(*types.FaultDetails)
		if !ok || details.Crashed == 0 {
			return
		}
	}

	m.Publish(Event{
		Type:      EventTestFailed,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Framework: agent.Framework,
		Status:    agent.Status,
		Report:    report,
	})
}

// Stop gracefully stops the notification manager
func (m *Manager) Stop() error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for notifications to complete")
	}
}

// Health checks every registered notifier
func (m *Manager) Health(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for t, n := range m.notifiers {
		if err := n.Health(ctx); err != nil {
			return fmt.Errorf("%s notifier unhealthy: %w", t, err)
		}
	}
	return nil
}

// IsEnabled checks if notifications are enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// IsNotifierEnabled checks if a notifier is enabled
func (m *Manager) IsNotifierEnabled(notifierType NotifierType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.notifiers[notifierType]
	return ok
}

// Notifiers returns the registered notifier types
func (m *Manager) Notifiers() []NotifierType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NotifierType, 0, len(m.notifiers))
	for t := range m.notifiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
