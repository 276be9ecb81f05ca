package screen

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNotRunning is returned by Stats when no player process is running.
var ErrNotRunning = errors.New("screen: player not running")

// PlayerStats is one resource sample of the player process.
type PlayerStats struct {
	PID        int32
	CPUPercent float64
	RSS        uint64
}

// StatsReporter is a Decoder that can sample its own resource use.
type StatsReporter interface {
	Stats(ctx context.Context) (PlayerStats, error)
}

// Stats samples the running player's CPU and resident memory.
func (d *ExecDecoder) Stats(ctx context.Context) (PlayerStats, error) {
	d.mu.Lock()
	if !d.running || d.cmd.Process == nil {
		d.mu.Unlock()
		return PlayerStats{}, ErrNotRunning
	}
	pid := int32(d.cmd.Process.Pid)
	d.mu.Unlock()

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("player %d: %w", pid, err)
	}
	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("player %d cpu: %w", pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("player %d memory: %w", pid, err)
	}
	return PlayerStats{PID: pid, CPUPercent: cpu, RSS: mem.RSS}, nil
}
