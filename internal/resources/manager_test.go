package resources

import (
	"sync"
	"testing"

	"github.com/agiworkforce/workforce/internal/errdefs"
)

// stubSampler reports fixed live usage.
type stubSampler struct {
	mu  sync.Mutex
	cpu float64
	mem float64
}

func (s *stubSampler) Sample() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu, s.mem
}

func (s *stubSampler) set(cpu, mem float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu = cpu
	s.mem = mem
}

func TestReserveReleaseBalances(t *testing.T) {
	m := NewManager(Limits{CPUPercent: 50, MemoryMB: 256, NetworkMbps: 10, StorageMB: 100}, nil)
	before := m.Snapshot()

	u := Usage{CPUPercent: 5, MemoryMB: 32, NetworkMbps: 1, StorageMB: 10}
	if err := m.Reserve(u); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if m.Snapshot() == before {
		t.Error("snapshot should reflect the reservation")
	}

	m.Release(u)
	if got := m.Snapshot(); got != before {
		t.Errorf("state should return to pre-task value, got %+v want %+v", got, before)
	}
}

func TestReserveRefusesOverBudget(t *testing.T) {
	m := NewManager(Limits{CPUPercent: 10, MemoryMB: 64, NetworkMbps: 10, StorageMB: 100}, nil)

	err := m.Reserve(Usage{CPUPercent: 15})
	if !errdefs.IsKind(err, errdefs.KindResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if e, _ := errdefs.AsError(err); e.Resource != errdefs.ResourceCPU {
		t.Errorf("expected cpu axis, got %s", e.Resource)
	}
	if !errdefs.IsRetryable(err) {
		t.Error("resource denial must be retryable")
	}

	if err := m.Reserve(Usage{MemoryMB: 100}); err == nil {
		t.Error("memory over budget should refuse")
	}
}

func TestReserveAgainstLiveSample(t *testing.T) {
	sampler := &stubSampler{}
	sampler.set(48, 0)
	m := NewManager(Limits{CPUPercent: 50, MemoryMB: 256, NetworkMbps: 10, StorageMB: 100}, sampler)

	u := Usage{CPUPercent: 5, MemoryMB: 32}
	if err := m.Reserve(u); err == nil {
		t.Fatal("reserve should refuse while live cpu is 48%")
	}

	// Load drops; the same reservation now fits.
	sampler.set(10, 0)
	if err := m.Reserve(u); err != nil {
		t.Fatalf("reserve should succeed at cpu=10%%: %v", err)
	}

	before := Usage{}
	m.Release(u)
	if got := m.Snapshot(); got != before {
		t.Errorf("release should restore pre-reservation state, got %+v", got)
	}
}

func TestReleaseSaturatesAtZero(t *testing.T) {
	m := NewManager(DefaultLimits(), nil)
	m.Release(Usage{CPUPercent: 100, MemoryMB: 9999, NetworkMbps: 50, StorageMB: 9999})

	got := m.Snapshot()
	if got.CPUPercent != 0 || got.MemoryMB != 0 || got.NetworkMbps != 0 || got.StorageMB != 0 {
		t.Errorf("release must saturate at zero, got %+v", got)
	}
}

func TestCheckAvailability(t *testing.T) {
	m := NewManager(Limits{CPUPercent: 50, MemoryMB: 256, NetworkMbps: 10, StorageMB: 1024}, nil)
	if !m.CheckAvailability() {
		t.Error("fresh manager should have headroom")
	}

	if err := m.Reserve(Usage{CPUPercent: 48, MemoryMB: 200, NetworkMbps: 5, StorageMB: 512}); err != nil {
		t.Fatal(err)
	}
	if m.CheckAvailability() {
		t.Error("cpu headroom below floor should report unavailable")
	}
}
