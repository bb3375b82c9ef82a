package monitor

import (
	"sort"
	"sync"
	"time"
)

// Handle describes one believed-live subscription.
type Handle struct {
	// DeviceID is the subscribed device.
	DeviceID string

	// Generation is the reconciliation pass that committed the handle.
	Generation uint64

	// StartedAt is when the subscription was committed.
	StartedAt time.Time
}

// MonitorSet tracks the subscriptions this engine believes are live. It is
// bookkeeping, not transport truth: the two converge through reconciliation
// and transport events. Injected into the Reconciler so tests control its
// lifecycle. Safe for concurrent use.
type MonitorSet struct {
	mu     sync.Mutex
	active map[string]Handle
}

// NewMonitorSet creates an empty set.
func NewMonitorSet() *MonitorSet {
	return &MonitorSet{active: make(map[string]Handle)}
}

// Add commits a handle, replacing any previous handle for the device.
func (s *MonitorSet) Add(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[h.DeviceID] = h
}

// Remove drops the handle for a device. Returns false when absent.
func (s *MonitorSet) Remove(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[deviceID]
	delete(s.active, deviceID)
	return ok
}

// Contains reports whether a device has a committed handle.
func (s *MonitorSet) Contains(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[deviceID]
	return ok
}

// Get returns the handle for a device.
func (s *MonitorSet) Get(deviceID string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.active[deviceID]
	return h, ok
}

// IDs returns all subscribed device IDs, sorted.
func (s *MonitorSet) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of committed handles.
func (s *MonitorSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Clear removes every handle and returns the removed IDs, sorted.
func (s *MonitorSet) Clear() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.active = make(map[string]Handle)
	return ids
}
