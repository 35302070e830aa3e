package monitor

import (
	"context"
	"encoding/json"
	"sync"

	"agentwatch/internal/events"
	"agentwatch/internal/metrics"
	"agentwatch/internal/transport"
	"agentwatch/internal/types"
)

// echoChannel answers every request with "pong". Closing it fires Done.
type echoChannel struct {
	mu      sync.Mutex
	handler func([]byte)
	open    bool
	silent  bool
	done    chan struct{}
	once    sync.Once
}

func newEchoChannel() *echoChannel {
	return &echoChannel{open: true, done: make(chan struct{})}
}

func (c *echoChannel) Send(data []byte) error {
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.mu.Lock()
	silent := c.silent
	c.mu.Unlock()
	if silent {
		return nil
	}

	go func() {
		out, _ := json.Marshal(transport.Envelope{ID: env.ID, Payload: json.RawMessage(`"pong"`)})
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(out)
		}
	}()
	return nil
}

func (c *echoChannel) OnMessage(h func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *echoChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *echoChannel) Done() <-chan struct{} { return c.done }

func (c *echoChannel) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// fakeProbe returns fixed samples; pids listed in dead are unreachable
type fakeProbe struct {
	mu   sync.Mutex
	dead map[int32]bool
}

func (p *fakeProbe) Sample(_ context.Context, pid int32) (metrics.ProcessSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead[pid] {
		return metrics.ProcessSample{}, metrics.ErrProcessUnreachable
	}
	return metrics.ProcessSample{MemoryMB: 64, CPUPct: 12.5}, nil
}

func (p *fakeProbe) Alive(_ context.Context, pid int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.dead[pid]
}

func (p *fakeProbe) kill(pid int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead == nil {
		p.dead = make(map[int32]bool)
	}
	p.dead[pid] = true
}

type statusAlert struct {
	agent types.Agent
	cause string
}

type fakeAlerter struct {
	mu      sync.Mutex
	status  []statusAlert
	reports []*types.TestReport
}

func (a *fakeAlerter) NotifyAgentStatus(agent types.Agent, cause string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = append(a.status, statusAlert{agent: agent, cause: cause})
}

func (a *fakeAlerter) NotifyTestFailed(_ types.Agent, report *types.TestReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, report)
}

func (a *fakeAlerter) statuses() []statusAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]statusAlert(nil), a.status...)
}

func (a *fakeAlerter) testReports() []*types.TestReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*types.TestReport(nil), a.reports...)
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []events.Change
	closed  bool
}

func (p *fakePublisher) Publish(_ context.Context, c events.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}
