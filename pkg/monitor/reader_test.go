package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/battwatch/battwatch-go/pkg/battery"
	"github.com/battwatch/battwatch-go/pkg/notify"
	"github.com/battwatch/battwatch-go/pkg/registry"
	"github.com/battwatch/battwatch-go/pkg/transport/transporttest"
)

// sleepRecorder is an injected SleepFunc that returns immediately.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}

func (s *sleepRecorder) sleeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

type readerFixture struct {
	fake    *transporttest.Fake
	store   *registry.Store
	rec     *notifyRecorder
	sleeper *sleepRecorder
	reader  *Reader
}

func newReaderFixture(t *testing.T, dev registry.Device) *readerFixture {
	t.Helper()
	fake := transporttest.NewFake()
	store := registry.NewStore(nil, nil)
	if err := store.Add(dev); err != nil {
		t.Fatal(err)
	}
	rec := &notifyRecorder{}
	applier := NewStateApplier(ApplierConfig{Store: store, Sink: rec})
	sleeper := &sleepRecorder{}
	return &readerFixture{
		fake:    fake,
		store:   store,
		rec:     rec,
		sleeper: sleeper,
		reader:  NewReader(fake, applier, sleeper.sleep, nil, nil),
	}
}

func TestReaderSingleAttemptWhenPreviouslyDisconnected(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1", Disconnected: true})
	// No scripted results: every read fails.

	outcome := f.reader.Read(context.Background(), "dev-1")

	if outcome.State != ReadExhausted {
		t.Errorf("state = %v, want exhausted", outcome.State)
	}
	if outcome.Attempts != 1 || outcome.Budget != 1 {
		t.Errorf("attempts/budget = %d/%d, want 1/1", outcome.Attempts, outcome.Budget)
	}
	if calls := f.fake.CountOf("read", "dev-1"); calls != 1 {
		t.Errorf("transport reads = %d, want exactly 1", calls)
	}
	if f.sleeper.sleeps() != 0 {
		t.Errorf("slept %d times, want 0", f.sleeper.sleeps())
	}
}

func TestReaderThreeAttemptsWhenBelievedUp(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1"})

	outcome := f.reader.Read(context.Background(), "dev-1")

	if outcome.State != ReadExhausted || outcome.Attempts != 3 {
		t.Errorf("outcome = %+v, want 3 exhausted attempts", outcome)
	}
	if calls := f.fake.CountOf("read", "dev-1"); calls != 3 {
		t.Errorf("transport reads = %d, want 3", calls)
	}
	if f.sleeper.sleeps() != 2 {
		t.Errorf("slept %d times, want 2 (between attempts only)", f.sleeper.sleeps())
	}
	for _, d := range f.sleeper.delays {
		if d != RetryDelay {
			t.Errorf("slept %v, want %v", d, RetryDelay)
		}
	}
}

func TestReaderRecoversOnLaterAttempt(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1"})
	f.fake.ScriptRead("dev-1",
		transporttest.Result{Err: errors.New("busy")},
		transporttest.Result{Err: errors.New("busy")},
		transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(64)}}},
	)

	outcome := f.reader.Read(context.Background(), "dev-1")

	if outcome.State != ReadSucceeded || outcome.Attempts != 3 {
		t.Fatalf("outcome = %+v, want success on attempt 3", outcome)
	}
	d, _ := f.store.Get("dev-1")
	if len(d.Sources) != 1 || *d.Sources[0].Level != 64 {
		t.Errorf("sources = %+v, want level 64 applied", d.Sources)
	}
	if d.Disconnected {
		t.Error("device still marked disconnected")
	}
}

func TestReaderExhaustionNotifiesDisconnect(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1", Name: "Corne"})

	f.reader.Read(context.Background(), "dev-1")

	d, _ := f.store.Get("dev-1")
	if !d.Disconnected {
		t.Error("device not marked disconnected after exhaustion")
	}
	if got := f.rec.byKind(notify.KindDisconnected); len(got) != 1 {
		t.Errorf("disconnected notifications = %d, want 1", len(got))
	}

	// A second failing read: already down, no second notification.
	f.reader.Read(context.Background(), "dev-1")
	if got := f.rec.byKind(notify.KindDisconnected); len(got) != 1 {
		t.Errorf("disconnected notifications after repeat = %d, want 1", len(got))
	}
}

func TestReaderSuccessAfterDownNotifiesConnect(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1", Name: "Corne", Disconnected: true})
	f.fake.ScriptRead("dev-1", transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(42)}}})

	outcome := f.reader.Read(context.Background(), "dev-1")

	if outcome.State != ReadSucceeded || outcome.Attempts != 1 {
		t.Fatalf("outcome = %+v, want immediate success", outcome)
	}
	if got := f.rec.byKind(notify.KindConnected); len(got) != 1 {
		t.Errorf("connected notifications = %d, want 1", len(got))
	}
}

func TestReaderLowBatteryAcrossReads(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1", Name: "Corne",
		Sources: []battery.Source{{Level: battery.Lvl(25)}}})
	f.fake.ScriptRead("dev-1",
		transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(18)}}},
		transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(18)}}},
	)

	f.reader.Read(context.Background(), "dev-1")
	f.reader.Read(context.Background(), "dev-1")

	if got := f.rec.byKind(notify.KindLowBattery); len(got) != 1 {
		t.Errorf("low notifications across 25->18->18 = %d, want exactly 1", len(got))
	}
}

func TestReaderAbortAppliesNothing(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1"})
	f.sleeper.err = context.Canceled

	outcome := f.reader.Read(context.Background(), "dev-1")

	if outcome.State != ReadAborted {
		t.Fatalf("state = %v, want aborted", outcome.State)
	}
	d, _ := f.store.Get("dev-1")
	if d.Disconnected {
		t.Error("aborted read flipped device state")
	}
	if f.rec.count() != 0 {
		t.Errorf("aborted read emitted %d notifications", f.rec.count())
	}
}

func TestReaderCancelledContextAborts(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := f.reader.Read(ctx, "dev-1")

	if outcome.State != ReadAborted {
		t.Errorf("state = %v, want aborted with dead context", outcome.State)
	}
	if calls := f.fake.CountOf("read", "dev-1"); calls != 1 {
		t.Errorf("transport reads = %d, want 1 (no retries after cancel)", calls)
	}
}

func TestReaderUnknownDeviceIsNoop(t *testing.T) {
	f := newReaderFixture(t, registry.Device{ID: "dev-1"})

	outcome := f.reader.Read(context.Background(), "ghost")

	if outcome.State != ReadAborted {
		t.Errorf("state = %v, want aborted for unknown device", outcome.State)
	}
	if calls := f.fake.CountOf("read", ""); calls != 0 {
		t.Errorf("transport reads = %d, want 0", calls)
	}
}

func TestReadStateStrings(t *testing.T) {
	if ReadAttempting.String() != "attempting" || ReadSucceeded.String() != "succeeded" ||
		ReadExhausted.String() != "exhausted" || ReadAborted.String() != "aborted" {
		t.Error("read state names wrong")
	}
}
