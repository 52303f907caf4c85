// Package resources tracks CPU, memory, network and storage budgets and
// admits work against them. Reservations are advisory: nothing is
// enforced at the OS level, but the scheduler refuses admission when a
// task's estimate does not fit.
package resources

import (
	"sync"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// Usage is a point on all four budget axes. CPU is percent of total;
// the rest are megabytes (network is Mbps).
type Usage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryMB    float64 `json:"mem_mb"`
	NetworkMbps float64 `json:"net_mbps"`
	StorageMB   float64 `json:"storage_mb"`
}

// Limits bounds the reservable budget per axis.
type Limits = Usage

// DefaultLimits returns the budget used when configuration carries none.
func DefaultLimits() Limits {
	return Limits{CPUPercent: 80, MemoryMB: 2048, NetworkMbps: 100, StorageMB: 10240}
}

// Sampler reports live host usage. CPU and memory come from the host;
// network and storage are reservation-only and always sample zero.
type Sampler interface {
	Sample() (cpuPercent, memoryMB float64)
}

// Manager reserves and releases budget against the configured limits
// plus live host samples.
type Manager struct {
	mu       sync.Mutex
	limits   Limits
	reserved Usage
	sampler  Sampler

	// floor is the headroom each axis must keep for CheckAvailability.
	floor Usage
}

// NewManager creates a manager. A nil sampler disables live sampling
// (reservation-only on every axis).
func NewManager(limits Limits, sampler Sampler) *Manager {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Manager{
		limits:  limits,
		sampler: sampler,
		floor:   Usage{CPUPercent: 5, MemoryMB: 64, NetworkMbps: 1, StorageMB: 128},
	}
}

// state returns reserved plus live usage. Callers hold mu.
func (m *Manager) state() Usage {
	s := m.reserved
	if m.sampler != nil {
		cpu, mem := m.sampler.Sample()
		if cpu > s.CPUPercent {
			s.CPUPercent = cpu
		}
		if mem > s.MemoryMB {
			s.MemoryMB = mem
		}
	}
	return s
}

// CheckAvailability reports whether every axis has headroom above its
// floor.
func (m *Manager) CheckAvailability() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state()
	return m.limits.CPUPercent-s.CPUPercent >= m.floor.CPUPercent &&
		m.limits.MemoryMB-s.MemoryMB >= m.floor.MemoryMB &&
		m.limits.NetworkMbps-s.NetworkMbps >= m.floor.NetworkMbps &&
		m.limits.StorageMB-s.StorageMB >= m.floor.StorageMB
}

// Reserve atomically adds usage when it fits on every axis. On refusal
// it returns a resource error naming the first exhausted axis.
func (m *Manager) Reserve(u Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state()
	switch {
	case s.CPUPercent+u.CPUPercent > m.limits.CPUPercent:
		return errdefs.NewResourceError(errdefs.ResourceCPU,
			"cpu budget exhausted: %.1f%% + %.1f%% > %.1f%%", s.CPUPercent, u.CPUPercent, m.limits.CPUPercent)
	case s.MemoryMB+u.MemoryMB > m.limits.MemoryMB:
		return errdefs.NewResourceError(errdefs.ResourceMemory,
			"memory budget exhausted: %.0fMB + %.0fMB > %.0fMB", s.MemoryMB, u.MemoryMB, m.limits.MemoryMB)
	case s.NetworkMbps+u.NetworkMbps > m.limits.NetworkMbps:
		return errdefs.NewResourceError(errdefs.ResourceNetwork,
			"network budget exhausted")
	case s.StorageMB+u.StorageMB > m.limits.StorageMB:
		return errdefs.NewResourceError(errdefs.ResourceStorage,
			"storage budget exhausted")
	}

	m.reserved.CPUPercent += u.CPUPercent
	m.reserved.MemoryMB += u.MemoryMB
	m.reserved.NetworkMbps += u.NetworkMbps
	m.reserved.StorageMB += u.StorageMB
	return nil
}

// Release subtracts usage, saturating at zero on every axis.
func (m *Manager) Release(u Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved.CPUPercent = max(0, m.reserved.CPUPercent-u.CPUPercent)
	m.reserved.MemoryMB = max(0, m.reserved.MemoryMB-u.MemoryMB)
	m.reserved.NetworkMbps = max(0, m.reserved.NetworkMbps-u.NetworkMbps)
	m.reserved.StorageMB = max(0, m.reserved.StorageMB-u.StorageMB)
}

// Snapshot returns the current reserved state (without live samples).
func (m *Manager) Snapshot() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}
