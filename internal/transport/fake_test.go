package transport

import (
	"encoding/json"
	"sync"
	"time"
)

// fakeChannel is an in-memory Channel. respond decides how each request is answered.
type fakeChannel struct {
	mu       sync.Mutex
	handler  func([]byte)
	open     bool
	done     chan struct{}
	sent     []Envelope
	sendErr  error
	respond  func(env Envelope) (reply []byte, delay time.Duration, ok bool)
	doneOnce sync.Once
}

func newFakeChannel(respond func(Envelope) ([]byte, time.Duration, bool)) *fakeChannel {
	return &fakeChannel{open: true, done: make(chan struct{}), respond: respond}
}

// echoChannel replies to every request with its own payload after delay
func echoChannel(delay time.Duration) *fakeChannel {
	return newFakeChannel(func(env Envelope) ([]byte, time.Duration, bool) {
		out, _ := json.Marshal(Envelope{ID: env.ID, Payload: env.Payload})
		return out, delay, true
	})
}

// silentChannel never replies
func silentChannel() *fakeChannel {
	return newFakeChannel(func(Envelope) ([]byte, time.Duration, bool) { return nil, 0, false })
}

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	var env Envelope
	_ = json.Unmarshal(data, &env)
	f.sent = append(f.sent, env)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return nil
	}
	reply, delay, ok := respond(env)
	if !ok {
		return nil
	}
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		f.deliver(reply)
	}()
	return nil
}

func (f *fakeChannel) deliver(data []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(data)
	}
}

func (f *fakeChannel) OnMessage(handler func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeChannel) Done() <-chan struct{} { return f.done }

func (f *fakeChannel) close() {
	f.doneOnce.Do(func() {
		f.mu.Lock()
		f.open = false
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeChannel) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.sent))
	for _, env := range f.sent {
		ids = append(ids, env.ID)
	}
	return ids
}

type countingRecorder struct {
	mu        sync.Mutex
	successes int
	failures  int
	latencies []time.Duration
}

func (r *countingRecorder) RecordSuccess(_ string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
	r.latencies = append(r.latencies, latency)
}

func (r *countingRecorder) RecordFailure(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *countingRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes, r.failures
}
