package monitor

import (
	"context"
	"sync"
	"time"

	"agentwatch/internal/events"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// changeNotifier coalesces bursts of changes into one callback round
type changeNotifier struct {
	debounce  time.Duration
	publisher events.Publisher
	logger    *zap.Logger

	mu      sync.Mutex
	subs    map[int]func()
	nextID  int
	timer   *time.Timer
	stopped bool
}

func newChangeNotifier(debounce time.Duration, publisher events.Publisher, logger *zap.Logger) *changeNotifier {
	return &changeNotifier{
		debounce:  debounce,
		publisher: publisher,
		logger:    logger,
		subs:      make(map[int]func()),
	}
}

func (c *changeNotifier) subscribe(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// trigger schedules a flush unless one is already pending
func (c *changeNotifier) trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.timer != nil {
		return
	}
	if len(c.subs) == 0 && c.publisher == nil {
		return
	}
	c.timer = time.AfterFunc(c.debounce, c.flush)
}

func (c *changeNotifier) flush() {
	c.mu.Lock()
	c.timer = nil
	if c.stopped {
		c.mu.Unlock()
		return
	}
	subs := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn()
	}

	if c.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := c.publisher.Publish(ctx, events.Change{Type: events.TypeChanged, At: time.Now()}); err != nil {
			c.logger.Warn("Failed to publish change event", zap.Error(err))
		}
	}
}

func (c *changeNotifier) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
