package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrProcessUnreachable is returned when the backing process cannot be queried
var ErrProcessUnreachable = errors.New("process unreachable")

// ProcessSample is one memory/cpu reading
type ProcessSample struct {
	MemoryMB float64
	CPUPct   float64
}

// ProcessProbe reads resource usage of a local process
type ProcessProbe interface {
	Sample(ctx context.Context, pid int32) (ProcessSample, error)
	Alive(ctx context.Context, pid int32) bool
}

// SystemProbe implements ProcessProbe with gopsutil
type SystemProbe struct {
	mu    sync.Mutex
	procs map[int32]*process.Process
}

// NewSystemProbe creates a new gopsutil backed probe
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{procs: make(map[int32]*process.Process)}
}

// Alive reports whether pid refers to a running process
func (p *SystemProbe) Alive(ctx context.Context, pid int32) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, pid)
	return err == nil && exists
}

// Sample reads RSS memory and cpu percent for pid
func (p *SystemProbe) Sample(ctx context.Context, pid int32) (ProcessSample, error) {
	if !p.Alive(ctx, pid) {
		p.forget(pid)
		return ProcessSample{}, fmt.Errorf("%w: pid %d", ErrProcessUnreachable, pid)
	}

	proc, err := p.lookup(ctx, pid)
	if err != nil {
		return ProcessSample{}, fmt.Errorf("%w: %v", ErrProcessUnreachable, err)
	}

	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessSample{}, fmt.Errorf("failed to read memory of pid %d: %w", pid, err)
	}

	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return ProcessSample{}, fmt.Errorf("failed to read cpu of pid %d: %w", pid, err)
	}

	return ProcessSample{
		MemoryMB: float64(mem.RSS) / (1024 * 1024),
		CPUPct:   cpu,
	}, nil
}

// lookup caches process handles so repeated samples reuse them
func (p *SystemProbe) lookup(ctx context.Context, pid int32) (*process.Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if proc, ok := p.procs[pid]; ok {
		return proc, nil
	}
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	p.procs[pid] = proc
	return proc, nil
}

func (p *SystemProbe) forget(pid int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.procs, pid)
}
