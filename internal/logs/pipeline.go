package logs

import (
	"context"
	"sync"
	"time"

	"agentwatch/internal/types"

	"go.uber.org/zap"
)

// Resolver maps a log agent name to a registered agent id
type Resolver interface {
	ResolveName(name string) (agentID string, ok bool)
}

// ErrorSink receives error-level entries as out-of-band failures
type ErrorSink interface {
	RecordLogError(agentID string)
}

// Pipeline parses log lines into bounded per-agent buffers
type Pipeline struct {
	resolver Resolver
	sink     ErrorSink
	capacity int
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	buffers map[string]*Ring

	changeMu sync.RWMutex
	onChange func()
}

// NewPipeline creates a new pipeline. sink may be nil.
func NewPipeline(capacity int, resolver Resolver, sink ErrorSink, logger *zap.Logger) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pipeline{
		resolver: resolver,
		sink:     sink,
		capacity: capacity,
		logger:   logger.Named("logs"),
		now:      time.Now,
		buffers:  make(map[string]*Ring),
	}
}

// SetOnChange sets the callback invoked once per appended batch
func (p *Pipeline) SetOnChange(fn func()) {
	p.changeMu.Lock()
	defer p.changeMu.Unlock()
	p.onChange = fn
}

// OnLine ingests a single raw line. It reports whether the line was kept.
func (p *Pipeline) OnLine(raw, label string) bool {
	return p.OnLines([]string{raw}, label) == 1
}

// OnLines ingests a batch of lines from one source in order and returns how many were kept.
// Lines naming an unregistered agent are dropped.
func (p *Pipeline) OnLines(lines []string, label string) int {
	now := p.now()
	kept := 0
	var errorAgents []string

	p.mu.Lock()
	for _, raw := range lines {
		if raw == "" {
			continue
		}
		entry := Parse(raw, label, now)

		agentID, ok := p.resolver.ResolveName(entry.AgentName)
		if !ok {
			p.logger.Debug("Dropping log line for unknown agent",
				zap.String("agent", entry.AgentName),
				zap.String("source", label))
			continue
		}

		p.push(agentID, entry)
		kept++
		if entry.Level == types.LogLevelError {
			errorAgents = append(errorAgents, agentID)
		}
	}
	p.mu.Unlock()

	p.afterAppend(kept, errorAgents)
	return kept
}

// Append adds an entry for a known agent id, bypassing name resolution
func (p *Pipeline) Append(agentID string, entry types.LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.now()
	}
	if entry.Level == "" {
		entry.Level = types.LogLevelInfo
	}

	p.mu.Lock()
	p.push(agentID, entry)
	p.mu.Unlock()

	var errorAgents []string
	if entry.Level == types.LogLevelError {
		errorAgents = []string{agentID}
	}
	p.afterAppend(1, errorAgents)
}

// Entries returns the agent's buffer ordered oldest to newest
func (p *Pipeline) Entries(agentID string) []types.LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.buffers[agentID]
	if !ok {
		return []types.LogEntry{}
	}
	return r.Entries()
}

// Filter returns entries at or above the given severity
func (p *Pipeline) Filter(agentID string, minLevel types.LogLevel) []types.LogEntry {
	entries := p.Entries(agentID)
	out := entries[:0]
	for _, e := range entries {
		if e.Level.Severity() >= minLevel.Severity() {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered entries for the agent
func (p *Pipeline) Len(agentID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.buffers[agentID]; ok {
		return r.Len()
	}
	return 0
}

// Remove drops the agent's buffer
func (p *Pipeline) Remove(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.buffers, agentID)
}

// Watch feeds a source into the pipeline until ctx is done
func (p *Pipeline) Watch(ctx context.Context, src Source) error {
	return src.Run(ctx, func(lines []string) {
		p.OnLines(lines, src.Label())
	})
}

// push appends to the agent's ring. Caller holds p.mu.
func (p *Pipeline) push(agentID string, entry types.LogEntry) {
	r, ok := p.buffers[agentID]
	if !ok {
		r = NewRing(p.capacity)
		p.buffers[agentID] = r
	}
	r.Push(entry)
}

func (p *Pipeline) afterAppend(kept int, errorAgents []string) {
	if p.sink != nil {
		for _, id := range errorAgents {
			p.sink.RecordLogError(id)
		}
	}
	if kept == 0 {
		return
	}

	p.changeMu.RLock()
	fn := p.onChange
	p.changeMu.RUnlock()
	if fn != nil {
		fn()
	}
}
