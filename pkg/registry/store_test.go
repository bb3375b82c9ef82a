package registry

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

func TestStoreAddRemove(t *testing.T) {
	store := NewStore(nil, nil)

	if err := store.Add(Device{ID: "dev-1", Name: "Corne"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Add(Device{ID: "dev-2", Name: "Lily58"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Add(Device{ID: "dev-1", Name: "again"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate Add() error = %v, want ErrDuplicateID", err)
	}

	if got := store.IDs(); len(got) != 2 || got[0] != "dev-1" || got[1] != "dev-2" {
		t.Errorf("IDs() = %v, want [dev-1 dev-2]", got)
	}

	if !store.Remove("dev-1") {
		t.Error("Remove(dev-1) = false, want true")
	}
	if store.Remove("dev-1") {
		t.Error("second Remove(dev-1) = true, want false")
	}
	if got := store.IDs(); len(got) != 1 || got[0] != "dev-2" {
		t.Errorf("IDs() after remove = %v, want [dev-2]", got)
	}
}

func TestStoreRemoveKeepsOrderAndIndex(t *testing.T) {
	store := NewStore(nil, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := store.Add(Device{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	store.Remove("b")

	if got := store.IDs(); got[0] != "a" || got[1] != "c" || got[2] != "d" {
		t.Fatalf("IDs() = %v, want [a c d]", got)
	}
	// Index must still resolve devices shifted by the removal.
	if !store.Update("d", func(dev *Device) { dev.Name = "renamed" }) {
		t.Fatal("Update(d) = false after removal of b")
	}
	d, _ := store.Get("d")
	if d.Name != "renamed" {
		t.Errorf("d.Name = %q, want renamed", d.Name)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(nil, nil)
	if err := store.Add(Device{ID: "dev-1", Disconnected: true}); err != nil {
		t.Fatal(err)
	}

	ok := store.Update("dev-1", func(dev *Device) {
		dev.Disconnected = false
		dev.Sources = battery.Merge(dev.Sources, []battery.Source{{Level: battery.Lvl(50)}})
	})
	if !ok {
		t.Fatal("Update() = false, want true")
	}
	if store.Update("ghost", func(*Device) {}) {
		t.Error("Update(ghost) = true, want false")
	}

	d, _ := store.Get("dev-1")
	if d.Disconnected {
		t.Error("Disconnected still true after update")
	}
	if len(d.Sources) != 1 || *d.Sources[0].Level != 50 {
		t.Errorf("sources = %+v, want single level 50", d.Sources)
	}
}

func TestStoreAccessorsReturnCopies(t *testing.T) {
	store := NewStore(nil, nil)
	if err := store.Add(Device{ID: "dev-1", Sources: []battery.Source{{Level: battery.Lvl(75)}}}); err != nil {
		t.Fatal(err)
	}

	list := store.List()
	*list[0].Sources[0].Level = 1
	list[0].Name = "mutated"

	d, _ := store.Get("dev-1")
	if *d.Sources[0].Level != 75 || d.Name != "" {
		t.Error("List() exposed internal state")
	}

	got, _ := store.Get("dev-1")
	*got.Sources[0].Level = 2
	again, _ := store.Get("dev-1")
	if *again.Sources[0].Level != 75 {
		t.Error("Get() exposed internal state")
	}
}

func TestStorePersistsOnEveryMutation(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(filepath.Join(dir, "devices.json"))
	store := NewStore(fs, nil)

	if err := store.Add(Device{ID: "dev-1", Name: "Corne"}); err != nil {
		t.Fatal(err)
	}
	store.Update("dev-1", func(dev *Device) { dev.Disconnected = true })

	loaded, _, err := fs.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "Corne" {
		t.Fatalf("persisted list = %+v", loaded)
	}

	store.Remove("dev-1")
	loaded, _, err = fs.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("persisted list after remove = %+v, want empty", loaded)
	}
}

func TestStoreRestore(t *testing.T) {
	store := NewStore(nil, nil)
	store.Restore([]Device{
		{ID: "dev-1", Disconnected: true},
		{ID: "dev-1", Name: "dup"},
		{ID: "dev-2", Disconnected: true},
	})

	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (duplicate skipped)", store.Len())
	}
	d, ok := store.Get("dev-1")
	if !ok || d.Name != "" {
		t.Errorf("dev-1 = %+v, want first occurrence kept", d)
	}
}

func TestStoreObservers(t *testing.T) {
	store := NewStore(nil, nil)

	var mu sync.Mutex
	var snapshots [][]Device
	store.OnChange(func(devices []Device) {
		mu.Lock()
		snapshots = append(snapshots, devices)
		mu.Unlock()
	})

	if err := store.Add(Device{ID: "dev-1"}); err != nil {
		t.Fatal(err)
	}
	store.Update("dev-1", func(dev *Device) { dev.Name = "named" })
	store.Remove("dev-1")

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots) != 3 {
		t.Fatalf("observer fired %d times, want 3", len(snapshots))
	}
	if len(snapshots[0]) != 1 || snapshots[1][0].Name != "named" || len(snapshots[2]) != 0 {
		t.Errorf("snapshots wrong: %+v", snapshots)
	}
}

type failingPersister struct{ err error }

func (p failingPersister) Save([]Device) error { return p.err }

func TestStorePersistFailureKeepsMutation(t *testing.T) {
	store := NewStore(failingPersister{err: errors.New("disk full")}, nil)

	if err := store.Add(Device{ID: "dev-1"}); err != nil {
		t.Fatalf("Add() error = %v, want nil despite persist failure", err)
	}
	if _, ok := store.Get("dev-1"); !ok {
		t.Error("mutation lost on persist failure")
	}
	if err := store.Flush(); err == nil {
		t.Error("Flush() error = nil, want persist error surfaced")
	}
}
