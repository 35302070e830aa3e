package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSendReceivesReply(t *testing.T) {
	rec := &countingRecorder{}
	c := NewCorrelator(rec, zaptest.NewLogger(t))
	ch := echoChannel(5 * time.Millisecond)

	reply, err := c.Send(context.Background(), Target{AgentID: "a1", Channel: ch}, map[string]string{"type": "ping"}, time.Second)
	require.NoError(t, err)
	assert.False(t, reply.Simulated)
	assert.JSONEq(t, `{"type":"ping"}`, string(reply.Payload))
	assert.Equal(t, ch.sentIDs()[0], reply.ID)
	assert.GreaterOrEqual(t, reply.Latency, 5*time.Millisecond)

	successes, failures := rec.counts()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, failures)
	assert.Equal(t, 0, c.Pending("a1"))
}

func TestSendTimeoutReleasesListener(t *testing.T) {
	rec := &countingRecorder{}
	c := NewCorrelator(rec, zaptest.NewLogger(t))
	ch := silentChannel()
	target := Target{AgentID: "a1", Channel: ch}

	start := time.Now()
	_, err := c.Send(context.Background(), target, "ping", 50*time.Millisecond)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)

	const calls = 1000
	var wg sync.WaitGroup
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Send(context.Background(), target, i, 10*time.Millisecond)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrTimeout)
	}
	assert.Equal(t, 0, c.Pending("a1"))

	successes, failures := rec.counts()
	assert.Equal(t, 0, successes)
	assert.Equal(t, calls+1, failures)
}

func TestConcurrentCallsHaveDistinctIDs(t *testing.T) {
	c := NewCorrelator(nil, zaptest.NewLogger(t))
	ch := silentChannel()
	target := Target{AgentID: "a1", Channel: ch}

	const calls = 20
	var wg sync.WaitGroup
	replies := make([]*Reply, calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i], errs[i] = c.Send(context.Background(), target, i, 2*time.Second)
		}(i)
	}

	require.Eventually(t, func() bool {
		return c.Pending("a1") == calls && len(ch.sentIDs()) == calls
	}, time.Second, 5*time.Millisecond)

	ids := ch.sentIDs()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	for _, id := range ids {
		out, _ := json.Marshal(Envelope{ID: id, Payload: json.RawMessage(`"pong"`)})
		ch.deliver(out)
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		require.NoError(t, errs[i])
		assert.True(t, seen[replies[i].ID])
	}
	assert.Equal(t, 0, c.Pending("a1"))
}

func TestIDCollisionIsSkipped(t *testing.T) {
	seq := []string{"a", "a", "b"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := seq[0]
		if len(seq) > 1 {
			seq = seq[1:]
		}
		return id
	}

	c := NewCorrelator(nil, zaptest.NewLogger(t), WithIDGenerator(next))
	ch := silentChannel()
	target := Target{AgentID: "a1", Channel: ch}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Send(context.Background(), target, 1, 200*time.Millisecond)
	}()
	require.Eventually(t, func() bool { return c.Pending("a1") == 1 }, time.Second, time.Millisecond)

	_, err := c.Send(context.Background(), target, 2, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	<-done

	assert.Equal(t, []string{"a", "b"}, ch.sentIDs())
}

func TestSendWithoutChannel(t *testing.T) {
	tests := []struct {
		name    string
		pid     int32
		wantErr error
	}{
		{name: "process only", pid: 4242},
		{name: "unreachable", wantErr: ErrUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			c := NewCorrelator(rec, zaptest.NewLogger(t))

			reply, err := c.Send(context.Background(), Target{AgentID: "a1", PID: tt.pid}, "ping", 0)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, "agent unreachable", err.Error())
			} else {
				require.NoError(t, err)
				assert.True(t, reply.Simulated)
			}

			successes, failures := rec.counts()
			assert.Zero(t, successes)
			assert.Zero(t, failures)
		})
	}
}

func TestSendTransportFailures(t *testing.T) {
	t.Run("closed before send", func(t *testing.T) {
		rec := &countingRecorder{}
		c := NewCorrelator(rec, zaptest.NewLogger(t))
		ch := silentChannel()
		ch.close()

		_, err := c.Send(context.Background(), Target{AgentID: "a1", Channel: ch}, "ping", time.Second)
		assert.ErrorIs(t, err, ErrTransportClosed)
		_, failures := rec.counts()
		assert.Equal(t, 1, failures)
	})

	t.Run("write error", func(t *testing.T) {
		rec := &countingRecorder{}
		c := NewCorrelator(rec, zaptest.NewLogger(t))
		ch := silentChannel()
		ch.sendErr = errors.New("broken pipe")

		_, err := c.Send(context.Background(), Target{AgentID: "a1", Channel: ch}, "ping", time.Second)
		assert.ErrorIs(t, err, ErrTransportClosed)
		assert.Equal(t, 0, c.Pending("a1"))
		_, failures := rec.counts()
		assert.Equal(t, 1, failures)
	})

	t.Run("closed while waiting", func(t *testing.T) {
		rec := &countingRecorder{}
		c := NewCorrelator(rec, zaptest.NewLogger(t))
		ch := silentChannel()
		time.AfterFunc(20*time.Millisecond, ch.close)

		start := time.Now()
		_, err := c.Send(context.Background(), Target{AgentID: "a1", Channel: ch}, "ping", 5*time.Second)
		assert.ErrorIs(t, err, ErrTransportClosed)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 0, c.Pending("a1"))
	})

	t.Run("caller cancels", func(t *testing.T) {
		rec := &countingRecorder{}
		c := NewCorrelator(rec, zaptest.NewLogger(t))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := c.Send(ctx, Target{AgentID: "a1", Channel: silentChannel()}, "ping", 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, c.Pending("a1"))
		successes, failures := rec.counts()
		assert.Zero(t, successes+failures)
	})
}

func TestDispatchDropsUnmatchedFrames(t *testing.T) {
	c := NewCorrelator(nil, zaptest.NewLogger(t))
	ch := newFakeChannel(func(env Envelope) ([]byte, time.Duration, bool) {
		return []byte(fmt.Sprintf(`{"id":%q,"error":"bad input"}`, env.ID)), 100 * time.Millisecond, true
	})
	target := Target{AgentID: "a1", Channel: ch}

	done := make(chan *Reply, 1)
	go func() {
		reply, err := c.Send(context.Background(), target, "x", time.Second)
		assert.NoError(t, err)
		done <- reply
	}()

	require.Eventually(t, func() bool { return c.Pending("a1") == 1 }, time.Second, time.Millisecond)
	ch.deliver([]byte("not json"))
	ch.deliver([]byte(`{"payload":1}`))
	ch.deliver([]byte(`{"id":"unknown","payload":1}`))

	reply := <-done
	assert.Equal(t, "bad input", reply.Error)
}

func TestDetachRebindsChannel(t *testing.T) {
	c := NewCorrelator(nil, zaptest.NewLogger(t))
	first := echoChannel(0)
	_, err := c.Send(context.Background(), Target{AgentID: "a1", Channel: first}, 1, time.Second)
	require.NoError(t, err)

	c.Detach("a1")
	assert.Equal(t, 0, c.Pending("a1"))

	second := echoChannel(0)
	_, err = c.Send(context.Background(), Target{AgentID: "a1", Channel: second}, 2, time.Second)
	require.NoError(t, err)
	assert.Len(t, second.sentIDs(), 1)
}

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
		wantErr bool
	}{
		{name: "object", payload: map[string]int{"n": 1}, want: `{"id":"x","payload":{"n":1}}`},
		{name: "empty string", payload: "", want: `{"id":"x","payload":""}`},
		{name: "raw bytes", payload: Raw("\xff\xfe"), want: "{\"id\":\"x\",\"payload\":\xff\xfe}"},
		{name: "empty raw", payload: Raw(nil), want: `{"id":"x","payload":null}`},
		{name: "invalid raw json", payload: json.RawMessage(`{`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeFrame("x", tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
