package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileVersion is the current version of the device list file format.
const FileVersion = 1

// fileState is the on-disk envelope around the device list. Entries are kept
// raw so a single malformed record never poisons the whole file.
type fileState struct {
	// Version is the file format version.
	Version int `json:"version"`

	// SavedAt is when the list was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Devices holds the registered device records.
	Devices []json.RawMessage `json:"devices,omitempty"`
}

// FileStore persists the device list to a JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the device list to disk. The write goes through a temp file
// in the same directory and a rename, so readers never observe a partial
// file even when the process dies mid-write.
func (s *FileStore) Save(devices []Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state := fileState{
		Version: FileVersion,
		SavedAt: time.Now(),
		Devices: make([]json.RawMessage, 0, len(devices)),
	}
	for _, d := range devices {
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode device %s: %w", d.ID, err)
		}
		state.Devices = append(state.Devices, raw)
	}

	data, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Load reads and normalizes the device list from disk.
// Returns nil, 0, nil if the file doesn't exist (empty list). The dropped
// count reports entries that could not be repaired.
func (s *FileStore) Load() (devices []Device, dropped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	state := fileState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, 0, fmt.Errorf("device list unreadable: %w", err)
	}

	seen := make(map[string]bool, len(state.Devices))
	for _, raw := range state.Devices {
		dev, ok := normalizeRecord(raw)
		if !ok || seen[dev.ID] {
			dropped++
			continue
		}
		seen[dev.ID] = true
		devices = append(devices, dev)
	}
	return devices, dropped, nil
}

// Clear removes the device list file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
