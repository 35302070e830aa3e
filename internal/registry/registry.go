package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"agentwatch/internal/transport"
	"agentwatch/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handle is what an external collaborator supplies to register an agent
type Handle struct {
	ID        string
	Name      string
	Framework string
	PID       int32
	Channel   transport.Channel // optional
}

// Transition describes one status change
type Transition struct {
	AgentID string
	Name    string
	From    types.AgentStatus // empty for a new registration
	To      types.AgentStatus
	Cause   string
	At      time.Time
}

// Observer is called after every status change, outside the registry lock
type Observer func(Transition)

type record struct {
	agent   types.Agent
	channel transport.Channel
}

// Registry owns the authoritative set of monitored agents.
// All mutations are serialized; readers receive copies.
type Registry struct {
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	agents    map[string]*record
	byName    map[string]string
	observers []Observer
}

// New creates a new registry
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("registry"),
		now:    time.Now,
		agents: make(map[string]*record),
		byName: make(map[string]string),
	}
}

// Observe adds a transition observer
func (r *Registry) Observe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Register creates an agent in Starting. A Stopped or Error agent with the same id
// is relaunched into Starting; a live one yields ErrAgentExists.
func (r *Registry) Register(h Handle) (types.Agent, error) {
	if h.Name == "" {
		return types.Agent{}, fmt.Errorf("%w: name is required", types.ErrInvalidHandle)
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	now := r.now()

	r.mu.Lock()
	rec, exists := r.agents[h.ID]
	var from types.AgentStatus
	if exists {
		switch rec.agent.Status {
		case types.AgentStatusStopped, types.AgentStatusError:
		default:
			r.mu.Unlock()
			return types.Agent{}, fmt.Errorf("%w: %s", types.ErrAgentExists, h.ID)
		}
		from = rec.agent.Status
		if rec.agent.Name != h.Name && r.byName[rec.agent.Name] == h.ID {
			delete(r.byName, rec.agent.Name)
		}
		rec.agent.Name = h.Name
		rec.agent.Framework = h.Framework
		rec.agent.StartedAt = nil
		rec.agent.LastError = ""
	} else {
		rec = &record{agent: types.Agent{
			ID:           h.ID,
			Name:         h.Name,
			Framework:    h.Framework,
			RegisteredAt: now,
		}}
		r.agents[h.ID] = rec
	}

	rec.channel = h.Channel
	rec.agent.PID = h.PID
	rec.agent.HasTransport = h.Channel != nil
	rec.agent.Status = types.AgentStatusStarting
	rec.agent.UpdatedAt = now
	r.byName[h.Name] = h.ID

	snapshot := rec.agent
	observers := r.observers
	r.mu.Unlock()

	r.logger.Info("Agent registered",
		zap.String("agent_id", h.ID),
		zap.String("name", h.Name),
		zap.String("framework", h.Framework),
		zap.Bool("relaunch", exists))

	notify(observers, Transition{AgentID: h.ID, Name: h.Name, From: from, To: types.AgentStatusStarting, At: now})
	return snapshot, nil
}

// MarkRunning moves an agent from Starting to Running and stamps startedAt
func (r *Registry) MarkRunning(id string) error {
	return r.transition(id, types.AgentStatusRunning, "")
}

// MarkStopped moves an agent from any state to Stopped
func (r *Registry) MarkStopped(id string) error {
	return r.transition(id, types.AgentStatusStopped, "")
}

// MarkError moves an agent from any state to Error, recording cause
func (r *Registry) MarkError(id, cause string) error {
	return r.transition(id, types.AgentStatusError, cause)
}

func (r *Registry) transition(id string, to types.AgentStatus, cause string) error {
	now := r.now()

	r.mu.Lock()
	rec, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrAgentNotFound, id)
	}

	from := rec.agent.Status
	if to == types.AgentStatusRunning && from != types.AgentStatusStarting {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
	}
	if from == to && to == types.AgentStatusStopped {
		r.mu.Unlock()
		return nil
	}

	rec.agent.Status = to
	rec.agent.UpdatedAt = now
	switch to {
	case types.AgentStatusRunning:
		startedAt := now
		rec.agent.StartedAt = &startedAt
	case types.AgentStatusError:
		rec.agent.LastError = cause
	}

	name := rec.agent.Name
	observers := r.observers
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("agent_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	}
	if cause != "" {
		fields = append(fields, zap.String("cause", cause))
	}
	r.logger.Info("Agent status changed", fields...)

	notify(observers, Transition{AgentID: id, Name: name, From: from, To: to, Cause: cause, At: now})
	return nil
}

// Deregister removes an agent. This is the only way agents leave the registry.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	rec, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrAgentNotFound, id)
	}
	delete(r.agents, id)
	if r.byName[rec.agent.Name] == id {
		delete(r.byName, rec.agent.Name)
	}
	r.mu.Unlock()

	r.logger.Info("Agent deregistered", zap.String("agent_id", id))
	return nil
}

// Get returns a snapshot of one agent
func (r *Registry) Get(id string) (types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.agents[id]
	if !ok {
		return types.Agent{}, fmt.Errorf("%w: %s", types.ErrAgentNotFound, id)
	}
	return copyAgent(rec.agent), nil
}

// List returns snapshots of all agents ordered by registration time
func (r *Registry) List() []types.Agent {
	r.mu.RLock()
	out := make([]types.Agent, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, copyAgent(rec.agent))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// Running returns snapshots of agents in Running state
func (r *Registry) Running() []types.Agent {
	var out []types.Agent
	for _, a := range r.List() {
		if a.Status == types.AgentStatusRunning {
			out = append(out, a)
		}
	}
	return out
}

// Target returns the transport target for an agent
func (r *Registry) Target(id string) (transport.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.agents[id]
	if !ok {
		return transport.Target{}, fmt.Errorf("%w: %s", types.ErrAgentNotFound, id)
	}
	return transport.Target{AgentID: id, Channel: rec.channel, PID: rec.agent.PID}, nil
}

// ResolveName maps an agent name to its id. The most recent registration wins.
func (r *Registry) ResolveName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Name returns the agent's name, or empty if unknown
func (r *Registry) Name(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.agents[id]; ok {
		return rec.agent.Name
	}
	return ""
}

// Counts returns the number of agents per status
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, 4)
	for _, rec := range r.agents {
		counts[string(rec.agent.Status)]++
	}
	return counts
}

func copyAgent(a types.Agent) types.Agent {
	if a.StartedAt != nil {
		t := *a.StartedAt
		a.StartedAt = &t
	}
	return a
}

func notify(observers []Observer, t Transition) {
	for _, fn := range observers {
		fn(t)
	}
}
