package registry

import (
	"fmt"
	"sync"
	"testing"

	"agentwatch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegister(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	a, err := r.Register(Handle{ID: "a1", Name: "researcher", Framework: "crewai", PID: 42})
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusStarting, a.Status)
	assert.Nil(t, a.StartedAt)
	assert.False(t, a.HasTransport)

	_, err = r.Register(Handle{ID: "a1", Name: "researcher"})
	assert.ErrorIs(t, err, types.ErrAgentExists)

	_, err = r.Register(Handle{ID: "a2"})
	assert.ErrorIs(t, err, types.ErrInvalidHandle)

	generated, err := r.Register(Handle{Name: "writer"})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)

	id, ok := r.ResolveName("researcher")
	assert.True(t, ok)
	assert.Equal(t, "a1", id)
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		name    string
		steps   func(r *Registry) error
		want    types.AgentStatus
		wantErr error
	}{
		{
			name:  "starting to running",
			steps: func(r *Registry) error { return r.MarkRunning("a1") },
			want:  types.AgentStatusRunning,
		},
		{
			name: "running to stopped",
			steps: func(r *Registry) error {
				require.NoError(t, r.MarkRunning("a1"))
				return r.MarkStopped("a1")
			},
			want: types.AgentStatusStopped,
		},
		{
			name:  "starting to error",
			steps: func(r *Registry) error { return r.MarkError("a1", "import failed") },
			want:  types.AgentStatusError,
		},
		{
			name: "stopped cannot resume running",
			steps: func(r *Registry) error {
				require.NoError(t, r.MarkStopped("a1"))
				return r.MarkRunning("a1")
			},
			want:    types.AgentStatusStopped,
			wantErr: types.ErrInvalidTransition,
		},
		{
			name: "running twice",
			steps: func(r *Registry) error {
				require.NoError(t, r.MarkRunning("a1"))
				return r.MarkRunning("a1")
			},
			want:    types.AgentStatusRunning,
			wantErr: types.ErrInvalidTransition,
		},
		{
			name: "error to stopped",
			steps: func(r *Registry) error {
				require.NoError(t, r.MarkError("a1", "oom"))
				return r.MarkStopped("a1")
			},
			want: types.AgentStatusStopped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(zaptest.NewLogger(t))
			_, err := r.Register(Handle{ID: "a1", Name: "researcher"})
			require.NoError(t, err)

			err = tt.steps(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			a, err := r.Get("a1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Status)
		})
	}
}

func TestMarkRunningSetsStartedAt(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	_, err := r.Register(Handle{ID: "a1", Name: "researcher"})
	require.NoError(t, err)
	require.NoError(t, r.MarkRunning("a1"))

	for _, a := range r.Running() {
		assert.NotNil(t, a.StartedAt)
	}
	assert.Len(t, r.Running(), 1)
}

func TestRelaunch(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	_, err := r.Register(Handle{ID: "a1", Name: "researcher", PID: 1})
	require.NoError(t, err)
	require.NoError(t, r.MarkRunning("a1"))
	require.NoError(t, r.MarkError("a1", "crashed"))

	a, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, "crashed", a.LastError)

	a, err = r.Register(Handle{ID: "a1", Name: "researcher-v2", PID: 2})
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusStarting, a.Status)
	assert.Equal(t, int32(2), a.PID)
	assert.Nil(t, a.StartedAt)
	assert.Empty(t, a.LastError)

	_, ok := r.ResolveName("researcher")
	assert.False(t, ok)
	id, ok := r.ResolveName("researcher-v2")
	assert.True(t, ok)
	assert.Equal(t, "a1", id)
}

func TestUnknownAgent(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	assert.ErrorIs(t, r.MarkRunning("nope"), types.ErrAgentNotFound)
	assert.ErrorIs(t, r.MarkStopped("nope"), types.ErrAgentNotFound)
	assert.ErrorIs(t, r.MarkError("nope", "x"), types.ErrAgentNotFound)
	assert.ErrorIs(t, r.Deregister("nope"), types.ErrAgentNotFound)
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, types.ErrAgentNotFound)
	_, err = r.Target("nope")
	assert.ErrorIs(t, err, types.ErrAgentNotFound)
}

func TestDeregister(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	_, err := r.Register(Handle{ID: "a1", Name: "researcher"})
	require.NoError(t, err)
	require.NoError(t, r.MarkStopped("a1"))

	// stopped agents are kept until deregistered
	assert.Len(t, r.List(), 1)

	require.NoError(t, r.Deregister("a1"))
	assert.Empty(t, r.List())
	_, ok := r.ResolveName("researcher")
	assert.False(t, ok)
}

func TestObserversSeeTransitions(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	var got []Transition
	r.Observe(func(tr Transition) {
		// observers run outside the lock and may read back
		_, err := r.Get(tr.AgentID)
		assert.NoError(t, err)
		got = append(got, tr)
	})

	_, err := r.Register(Handle{ID: "a1", Name: "researcher"})
	require.NoError(t, err)
	require.NoError(t, r.MarkRunning("a1"))
	require.NoError(t, r.MarkError("a1", "boom"))
	require.NoError(t, r.MarkStopped("a1"))
	require.NoError(t, r.MarkStopped("a1"))

	require.Len(t, got, 4)
	assert.Equal(t, types.AgentStatus(""), got[0].From)
	assert.Equal(t, types.AgentStatusStarting, got[0].To)
	assert.Equal(t, types.AgentStatusRunning, got[1].To)
	assert.Equal(t, "boom", got[2].Cause)
	assert.Equal(t, types.AgentStatusError, got[3].From)
	assert.Equal(t, types.AgentStatusStopped, got[3].To)
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	_, err := r.Register(Handle{ID: "a1", Name: "researcher"})
	require.NoError(t, err)
	require.NoError(t, r.MarkRunning("a1"))

	a, err := r.Get("a1")
	require.NoError(t, err)
	original := *a.StartedAt
	*a.StartedAt = original.Add(100000)
	a.Status = types.AgentStatusError

	b, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusRunning, b.Status)
	assert.True(t, original.Equal(*b.StartedAt))
}

func TestConcurrentMutations(t *testing.T) {
	r := New(zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("a%d", i)
			_, err := r.Register(Handle{ID: id, Name: id})
			assert.NoError(t, err)
			assert.NoError(t, r.MarkRunning(id))
			_ = r.List()
			assert.NoError(t, r.MarkStopped(id))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"stopped": 50}, r.Counts())
}
