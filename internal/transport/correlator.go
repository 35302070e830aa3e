package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout applies when a call does not set its own timeout
const DefaultTimeout = 10 * time.Second

// Recorder receives the metric side effects of completed calls
type Recorder interface {
	RecordSuccess(agentID string, latency time.Duration)
	RecordFailure(agentID string)
}

// Target identifies where a call is sent
type Target struct {
	AgentID string
	Channel Channel // nil for process-only agents
	PID     int32
}

// Reply is the result of a correlated call
type Reply struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Latency   time.Duration   `json:"latency"`
	Simulated bool            `json:"simulated"`
}

// simulatedPayload is returned for process-only agents
var simulatedPayload = json.RawMessage(`{"status":"ok","simulated":true}`)

// Correlator matches replies to requests by correlation id
type Correlator struct {
	recorder       Recorder
	logger         *zap.Logger
	defaultTimeout time.Duration
	newID          func() string

	mu       sync.Mutex
	sessions map[string]*session
}

// session holds the pending calls on one agent channel
type session struct {
	agentID string
	channel Channel
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan Envelope
}

// Option configures a Correlator
type Option func(*Correlator)

// WithDefaultTimeout overrides DefaultTimeout
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// WithIDGenerator overrides uuid correlation ids
func WithIDGenerator(fn func() string) Option {
	return func(c *Correlator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewCorrelator creates a new correlator. recorder may be nil.
func NewCorrelator(recorder Recorder, logger *zap.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		recorder:       recorder,
		logger:         logger.Named("correlator"),
		defaultTimeout: DefaultTimeout,
		newID:          uuid.NewString,
		sessions:       make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send writes payload to the target and waits for the reply carrying the same id.
// A zero timeout uses the default. Process-only targets get a simulated reply that
// is not counted in metrics; targets with neither channel nor PID fail with ErrUnreachable.
func (c *Correlator) Send(ctx context.Context, target Target, payload any, timeout time.Duration) (*Reply, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	if target.Channel == nil {
		if target.PID != 0 {
			return &Reply{
				ID:        c.newID(),
				Payload:   simulatedPayload,
				Simulated: true,
			}, nil
		}
		return nil, ErrUnreachable
	}

	if !target.Channel.IsOpen() {
		c.recordFailure(target.AgentID)
		return nil, ErrTransportClosed
	}

	s := c.session(target)
	id, replyCh := s.register(c.newID)
	defer s.release(id)

	frame, err := encodeFrame(id, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := target.Channel.Send(frame); err != nil {
		c.recordFailure(target.AgentID)
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-replyCh:
		latency := time.Since(start)
		if c.recorder != nil {
			c.recorder.RecordSuccess(target.AgentID, latency)
		}
		return &Reply{
			ID:      env.ID,
			Payload: env.Payload,
			Error:   env.Error,
			Latency: latency,
		}, nil
	case <-timer.C:
		c.recordFailure(target.AgentID)
		c.logger.Debug("Request timed out",
			zap.String("agent_id", target.AgentID),
			zap.String("request_id", id),
			zap.Duration("timeout", timeout))
		return nil, ErrTimeout
	case <-target.Channel.Done():
		c.recordFailure(target.AgentID)
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of calls awaiting a reply for the agent
func (c *Correlator) Pending(agentID string) int {
	c.mu.Lock()
	s, ok := c.sessions[agentID]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Detach forgets the agent's session. Calls already in flight finish on their own timers.
func (c *Correlator) Detach(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, agentID)
}

func (c *Correlator) recordFailure(agentID string) {
	if c.recorder != nil {
		c.recorder.RecordFailure(agentID)
	}
}

// session returns the session bound to the target's channel, replacing a stale one
func (c *Correlator) session(target Target) *session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[target.AgentID]; ok && s.channel == target.Channel {
		return s
	}

	s := &session{
		agentID: target.AgentID,
		channel: target.Channel,
		logger:  c.logger.With(zap.String("agent_id", target.AgentID)),
		pending: make(map[string]chan Envelope),
	}
	target.Channel.OnMessage(s.dispatch)
	c.sessions[target.AgentID] = s
	return s
}

// register allocates an id that is not currently pending
func (s *session) register(newID func() string) (string, chan Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newID()
	for {
		if _, exists := s.pending[id]; !exists {
			break
		}
		id = newID()
	}

	ch := make(chan Envelope, 1)
	s.pending[id] = ch
	return id, ch
}

func (s *session) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// dispatch routes an inbound frame to the waiting call, dropping unmatched replies
func (s *session) dispatch(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		s.logger.Debug("Dropping inbound frame", zap.Error(err))
		return
	}

	s.mu.Lock()
	ch, ok := s.pending[env.ID]
	if ok {
		delete(s.pending, env.ID)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("No pending request for reply", zap.String("request_id", env.ID))
		return
	}

	select {
	case ch <- env:
	default:
	}
}
