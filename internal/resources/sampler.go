package resources

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSampler reads live CPU and memory usage from the host via
// gopsutil, refreshing at most once per second. Network and storage are
// not sampled; those budgets are reservation-only.
type HostSampler struct {
	mu         sync.Mutex
	interval   time.Duration
	lastSample time.Time
	cpuPercent float64
	memoryMB   float64
}

// NewHostSampler creates a sampler with a 1-second refresh interval.
func NewHostSampler() *HostSampler {
	return &HostSampler{interval: time.Second}
}

// Sample returns the most recent CPU percent and memory megabytes,
// refreshing from the host when the cached figures are stale.
func (s *HostSampler) Sample() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastSample) < s.interval {
		return s.cpuPercent, s.memoryMB
	}
	s.lastSample = time.Now()

	// A zero interval returns the usage since the previous call instead
	// of blocking for a measurement window.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.cpuPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.memoryMB = float64(vm.Used) / (1 << 20)
	}
	return s.cpuPercent, s.memoryMB
}
