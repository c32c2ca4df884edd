// Package monitor collects a small host snapshot (CPU, load, memory) for the
// operator dashboard header.
package monitor

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// snapshotCacheTTL bounds how often gopsutil is polled; the dashboard refreshes
// faster than the numbers meaningfully change.
const snapshotCacheTTL = 2 * time.Second

type Snapshot struct {
	CPUUsage    float64   `json:"cpu_usage"`
	CPUCores    int       `json:"cpu_cores"`
	LoadAverage []float64 `json:"load_average,omitempty"`

	MemoryTotalBytes  uint64  `json:"memory_total_bytes"`
	MemoryUsedBytes   uint64  `json:"memory_used_bytes"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`

	Platform    string `json:"platform"`
	TimestampMs int64  `json:"timestamp_ms"`
}

type Service struct {
	log *slog.Logger

	mu      sync.Mutex
	hasSnap bool
	snap    Snapshot
	snapAt  time.Time
}

func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log}
}

// Snapshot returns the current host snapshot, reusing a recent one when
// available. Individual probe failures degrade to zero values rather than
// failing the whole snapshot.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	s.mu.Lock()
	if s.hasSnap && now.Sub(s.snapAt) < snapshotCacheTTL {
		out := s.snap
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	snap := s.collect(ctx)

	s.mu.Lock()
	s.snap = snap
	s.snapAt = now
	s.hasSnap = true
	s.mu.Unlock()

	return snap
}

func (s *Service) collect(ctx context.Context) Snapshot {
	out := Snapshot{
		Platform:    runtime.GOOS,
		TimestampMs: time.Now().UnixMilli(),
	}

	// Non-blocking sampling: diff against the previous call instead of
	// sleeping inside the request.
	if p, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(p) > 0 {
		out.CPUUsage = p[0]
	} else if err != nil {
		s.log.Warn("status: get cpu percent failed", "error", err)
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.CPUCores = cores
	} else {
		s.log.Warn("status: get cpu cores failed", "error", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		out.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	} else if err != nil {
		s.log.Warn("status: get load average failed", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		out.MemoryTotalBytes = vm.Total
		out.MemoryUsedBytes = vm.Used
		out.MemoryUsedPercent = vm.UsedPercent
	} else if err != nil {
		s.log.Warn("status: get memory failed", "error", err)
	}

	return out
}
