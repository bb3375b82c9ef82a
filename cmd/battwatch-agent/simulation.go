package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

const defaultDrainInterval = 30 * time.Second

var (
	errBadPair  = errors.New("expected name=level")
	errBadLevel = errors.New("level must be between 0 and 100")
)

// simulation is a SourceProvider backed by slowly draining virtual cells.
// The central cell has no descriptor, matching a device that reports its
// main battery anonymously; peripherals carry their configured names.
type simulation struct {
	mu      sync.Mutex
	sources []battery.Source
	subs    map[int]func(battery.Source)
	nextSub int

	drainEvery time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	started    bool
}

func newSimulation(centralLevel int, drainEvery time.Duration) *simulation {
	central := centralLevel
	return &simulation{
		sources:    []battery.Source{{Level: &central}},
		subs:       make(map[int]func(battery.Source)),
		drainEvery: drainEvery,
		stopCh:     make(chan struct{}),
	}
}

// AddPeripheral registers one named cell. Call before Start.
func (s *simulation) AddPeripheral(name string, level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, l := name, level
	s.sources = append(s.sources, battery.Source{Descriptor: &n, Level: &l})
}

// Read implements bridge.SourceProvider.
func (s *simulation) Read(ctx context.Context) ([]battery.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return battery.CloneSources(s.sources), nil
}

// Subscribe implements bridge.SourceProvider.
func (s *simulation) Subscribe(fn func(battery.Source)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Start begins the drain loop. A zero drain interval leaves levels fixed.
func (s *simulation) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.drainEvery <= 0 {
		s.started = true
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.drainLoop()
}

func (s *simulation) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

// drainLoop lowers every cell by one percent each tick and pushes the
// changed reading to subscribers. Cells stop at zero.
func (s *simulation) drainLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.drainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.drainStep()
		}
	}
}

func (s *simulation) drainStep() {
	s.mu.Lock()
	var changed []battery.Source
	for i := range s.sources {
		lvl := s.sources[i].Level
		if lvl == nil || *lvl <= 0 {
			continue
		}
		*lvl--
		changed = append(changed, s.sources[i].Clone())
	}
	subs := make([]func(battery.Source), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, src := range changed {
		for _, fn := range subs {
			fn(src)
		}
	}
}
