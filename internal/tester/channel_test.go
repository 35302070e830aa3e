package tester

import (
	"encoding/json"
	"sync"
	"time"

	"agentwatch/internal/transport"
)

// echoChannel answers every request after a fixed delay and tracks concurrency
type echoChannel struct {
	delay time.Duration
	done  chan struct{}

	mu       sync.Mutex
	handler  func([]byte)
	total    int
	inFlight int
	peak     int
}

func newEchoChannel(delay time.Duration) *echoChannel {
	return &echoChannel{delay: delay, done: make(chan struct{})}
}

func (c *echoChannel) Send(data []byte) error {
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	c.mu.Lock()
	c.total++
	c.inFlight++
	if c.inFlight > c.peak {
		c.peak = c.inFlight
	}
	c.mu.Unlock()

	go func() {
		time.Sleep(c.delay)
		out, _ := json.Marshal(transport.Envelope{ID: env.ID, Payload: json.RawMessage(`"pong"`)})

		c.mu.Lock()
		c.inFlight--
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

func (c *echoChannel) IsOpen() bool          { return true }
func (c *echoChannel) Done() <-chan struct{} { return c.done }

func (c *echoChannel) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *echoChannel) maxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// channelAgents serves the same agents as fakeAgents but attaches ch to every target
type channelAgents struct {
	fakeAgents
	ch transport.Channel
}

func (c channelAgents) Target(id string) (transport.Target, error) {
	target, err := c.fakeAgents.Target(id)
	if err != nil {
		return target, err
	}
	target.Channel = c.ch
	return target, nil
}
