package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/battwatch/battwatch-go/pkg/registry"
)

// DefaultPollInterval is the poll cycle length when none is configured.
const DefaultPollInterval = time.Minute

// Scheduler drives the Reader over all registered devices on a timer.
// Only used in polling mode. Devices within a cycle are read concurrently;
// they are independent and carry no ordering guarantee.
type Scheduler struct {
	reader   *Reader
	store    *registry.Store
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	loopWg  sync.WaitGroup
	running atomic.Bool
}

// NewScheduler creates a Scheduler. A non-positive interval selects
// DefaultPollInterval.
func NewScheduler(reader *Reader, store *registry.Store, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		reader:   reader,
		store:    store,
		interval: interval,
	}
}

// Interval returns the poll cycle length.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Running reports whether the poll loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start begins the poll loop. The first cycle runs immediately.
func (s *Scheduler) Start() {
	if s.running.Swap(true) {
		return // Already running
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.loopWg.Add(1)
	go s.loop()
}

// Stop halts the poll loop and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if !s.running.Swap(false) {
		return // Not running
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.loopWg.Wait()
}

// RunOnce reads every registered device concurrently and waits for all reads
// to finish. Backs both the poll cycle and the manual refresh operation.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ids := s.store.IDs()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.reader.Read(ctx, id)
		}(id)
	}
	wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.loopWg.Done()

	s.RunOnce(s.ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}
