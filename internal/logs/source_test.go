package logs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type lineCollector struct {
	mu      sync.Mutex
	batches [][]string
}

func (c *lineCollector) emit(lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]string(nil), lines...))
}

func (c *lineCollector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func TestReadNewTracksOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	src := NewFileSource(path, "agent", 0, zaptest.NewLogger(t))

	_, err := src.readNew()
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte("a\nb\npart"), 0644))
	lines, err := src.readNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, _ = f.WriteString("ial\r\nc\n")
	require.NoError(t, f.Close())

	lines, err = src.readNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"partial", "c"}, lines)

	lines, err = src.readNew()
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReadNewAfterTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	src := NewFileSource(path, "agent", 0, zaptest.NewLogger(t))

	require.NoError(t, os.WriteFile(path, []byte("old line one\nold line two\n"), 0644))
	_, err := src.readNew()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("new\n"), 0644))
	lines, err := src.readNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, lines)
}

func TestReadDeltaKeepsLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	var sb strings.Builder
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))

	c := &lineCollector{}
	src := NewFileSource(path, "agent", 100, zaptest.NewLogger(t))
	src.readDelta(c.emit)

	lines := c.all()
	require.Len(t, lines, 100)
	assert.Equal(t, "line 150", lines[0])
	assert.Equal(t, "line 249", lines[99])
}

func TestFileSourceFollowsCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.log")

	c := &lineCollector{}
	src := NewFileSource(path, "late", 0, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, c.emit) }()

	// give the watcher a moment to register the directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"hello"}, c.all())

	cancel()
	assert.NoError(t, <-done)
}
