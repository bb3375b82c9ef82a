package registry

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDuplicateID is returned when adding a device whose ID is already
// registered.
var ErrDuplicateID = errors.New("device already registered")

// Persister saves the full device list. Implemented by FileStore.
type Persister interface {
	Save(devices []Device) error
}

// Store is the owner of registered device records. All accessors return deep
// copies; mutations go through Add/Remove/Update and persist the list before
// observers run. Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	devices   []Device
	index     map[string]int
	persister Persister
	observers []func([]Device)
	log       *slog.Logger
}

// NewStore creates a store. The persister may be nil for a memory-only store
// (tests); the logger may be nil to use the default.
func NewStore(persister Persister, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		index:     make(map[string]int),
		persister: persister,
		log:       log,
	}
}

// Restore replaces the store contents with an already-normalized device list,
// typically the output of FileStore.Load. No persistence write is triggered.
func (s *Store) Restore(devices []Device) {
	s.mu.Lock()
	s.devices = make([]Device, 0, len(devices))
	s.index = make(map[string]int, len(devices))
	for _, d := range devices {
		if _, dup := s.index[d.ID]; dup {
			continue
		}
		s.index[d.ID] = len(s.devices)
		s.devices = append(s.devices, d.Clone())
	}
	s.mu.Unlock()
	s.notify()
}

// Add registers a new device. Fails with ErrDuplicateID when the ID exists.
func (s *Store) Add(dev Device) error {
	s.mu.Lock()
	if _, exists := s.index[dev.ID]; exists {
		s.mu.Unlock()
		return ErrDuplicateID
	}
	s.index[dev.ID] = len(s.devices)
	s.devices = append(s.devices, dev.Clone())
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// Remove unregisters a device. Returns false when the ID is unknown.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i, exists := s.index[id]
	if !exists {
		s.mu.Unlock()
		return false
	}
	s.devices = append(s.devices[:i], s.devices[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.devices); j++ {
		s.index[s.devices[j].ID] = j
	}
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// Update applies fn to one device under the store lock, as an atomic
// read-modify-write. fn must not retain the pointer past its return.
// Returns false when the ID is unknown.
func (s *Store) Update(id string, fn func(*Device)) bool {
	s.mu.Lock()
	i, exists := s.index[id]
	if !exists {
		s.mu.Unlock()
		return false
	}
	fn(&s.devices[i])
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// Get returns a deep copy of one device.
func (s *Store) Get(id string) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, exists := s.index[id]
	if !exists {
		return Device{}, false
	}
	return s.devices[i].Clone(), true
}

// List returns deep copies of all devices in registration order.
func (s *Store) List() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// IDs returns all device IDs in registration order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.devices))
	for i, d := range s.devices {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of registered devices.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// OnChange registers an observer invoked with a fresh snapshot after every
// mutation, outside the store lock, in registration order.
func (s *Store) OnChange(fn func([]Device)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Flush persists the current list and reports the write error, unlike the
// log-only persistence of regular mutations. Used at shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persister == nil {
		return nil
	}
	return s.persister.Save(s.snapshotLocked())
}

func (s *Store) snapshotLocked() []Device {
	out := make([]Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.Clone()
	}
	return out
}

// persistLocked writes the list through the persister. A failed write keeps
// the in-memory mutation; losing a write beats losing the state.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(s.snapshotLocked()); err != nil {
		s.log.Warn("device list persist failed", "error", err)
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	observers := append([]func([]Device){}, s.observers...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	for _, fn := range observers {
		fn(snapshot)
	}
}
