package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*MockDistributedLock)(nil)

// MockDistributedLock keeps named leases in memory. One instance shared by
// several schedulers or sweepers behaves like one lock server.
type MockDistributedLock struct {
	mu       sync.Mutex
	leases   map[string]time.Time // name -> expiry
	acquired map[string]int

	// AcquireErr fails every Acquire without touching the leases.
	AcquireErr error
	PingErr    error
}

// NewMockDistributedLock creates an empty lock server.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		leases:   make(map[string]time.Time),
		acquired: make(map[string]int),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireErr != nil {
		return false, m.AcquireErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heldLocked(name) {
		return false, nil
	}
	m.leases[name] = time.Now().Add(ttl)
	m.acquired[name]++
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.heldLocked(name) {
		return fmt.Errorf("lease %s expired or never taken", name)
	}
	m.leases[name] = time.Now().Add(ttl)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return m.PingErr
}

// HoldFor simulates another instance owning name for ttl.
func (m *MockDistributedLock) HoldFor(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[name] = time.Now().Add(ttl)
}

// Held reports whether name is currently leased by anyone.
func (m *MockDistributedLock) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldLocked(name)
}

// Acquisitions returns how many times Acquire succeeded for name.
func (m *MockDistributedLock) Acquisitions(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired[name]
}

func (m *MockDistributedLock) heldLocked(name string) bool {
	expiry, ok := m.leases[name]
	return ok && time.Now().Before(expiry)
}
