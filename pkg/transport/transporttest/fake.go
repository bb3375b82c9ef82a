// Package transporttest provides a scriptable in-memory Transport for engine
// tests.
package transporttest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/battwatch/battwatch-go/pkg/battery"
	"github.com/battwatch/battwatch-go/pkg/transport"
)

// ErrUnscripted is returned for read/start calls with no scripted result.
// The default makes unreachable devices the baseline; tests script successes.
var ErrUnscripted = errors.New("transporttest: no scripted result")

// Result is one scripted outcome for a read or start call.
type Result struct {
	Sources []battery.Source
	Err     error
}

// Call records one transport invocation.
type Call struct {
	Op       string // "list", "read", "start", "stop", "stopAll"
	DeviceID string
}

// Fake is a scriptable Transport. The zero value is usable: scans return
// nothing, reads and starts fail with ErrUnscripted, stops succeed.
//
// Scripted results are consumed in order; the last result of a queue is
// sticky and answers all further calls.
type Fake struct {
	mu        sync.Mutex
	devices   []transport.DeviceInfo
	scanErr   error
	reads     map[string][]Result
	starts    map[string][]Result
	stopErrs  map[string]error
	monitored map[string]bool
	calls     []Call
	startGate chan struct{}
	onReport  func(transport.ReportEvent)
	onStatus  func(transport.StatusEvent)
}

// NewFake returns an empty fake.
func NewFake() *Fake {
	return &Fake{}
}

// SetDevices sets the scan result.
func (f *Fake) SetDevices(devices ...transport.DeviceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append([]transport.DeviceInfo(nil), devices...)
}

// SetScanError makes scans fail.
func (f *Fake) SetScanError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanErr = err
}

// ScriptRead queues read outcomes for a device.
func (f *Fake) ScriptRead(deviceID string, results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reads == nil {
		f.reads = make(map[string][]Result)
	}
	f.reads[deviceID] = append(f.reads[deviceID], results...)
}

// ScriptStart queues subscription-start outcomes for a device.
func (f *Fake) ScriptStart(deviceID string, results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.starts == nil {
		f.starts = make(map[string][]Result)
	}
	f.starts[deviceID] = append(f.starts[deviceID], results...)
}

// SetStopError makes StopMonitor fail for a device. The subscription is
// still released; stops are best-effort on the real stack too.
func (f *Fake) SetStopError(deviceID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErrs == nil {
		f.stopErrs = make(map[string]error)
	}
	f.stopErrs[deviceID] = err
}

// BlockStarts makes StartMonitor calls record themselves and then block until
// the returned release function is called. Used to hold passes in flight.
func (f *Fake) BlockStarts() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.startGate = gate
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

func pop(queue map[string][]Result, id string) (Result, bool) {
	results := queue[id]
	if len(results) == 0 {
		return Result{}, false
	}
	head := results[0]
	if len(results) > 1 {
		queue[id] = results[1:]
	}
	return head, true
}

// ListDevices implements Transport.
func (f *Fake) ListDevices(ctx context.Context) ([]transport.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "list"})
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return append([]transport.DeviceInfo(nil), f.devices...), nil
}

// ReadInfo implements Transport.
func (f *Fake) ReadInfo(ctx context.Context, deviceID string) ([]battery.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "read", DeviceID: deviceID})
	res, ok := pop(f.reads, deviceID)
	if !ok {
		return nil, ErrUnscripted
	}
	return battery.CloneSources(res.Sources), res.Err
}

// StartMonitor implements Transport.
func (f *Fake) StartMonitor(ctx context.Context, deviceID string) ([]battery.Source, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: "start", DeviceID: deviceID})
	gate := f.startGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := pop(f.starts, deviceID)
	if !ok {
		return nil, ErrUnscripted
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if f.monitored == nil {
		f.monitored = make(map[string]bool)
	}
	f.monitored[deviceID] = true
	return battery.CloneSources(res.Sources), nil
}

// StopMonitor implements Transport.
func (f *Fake) StopMonitor(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "stop", DeviceID: deviceID})
	delete(f.monitored, deviceID)
	return f.stopErrs[deviceID]
}

// StopAllMonitors implements Transport.
func (f *Fake) StopAllMonitors(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "stopAll"})
	f.monitored = nil
	return nil
}

// OnReport implements Transport.
func (f *Fake) OnReport(fn func(transport.ReportEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReport = fn
}

// OnStatus implements Transport.
func (f *Fake) OnStatus(fn func(transport.StatusEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStatus = fn
}

// EmitReport delivers a report event to the registered callback,
// synchronously on the caller's goroutine.
func (f *Fake) EmitReport(ev transport.ReportEvent) {
	f.mu.Lock()
	fn := f.onReport
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// EmitStatus delivers a status event to the registered callback.
func (f *Fake) EmitStatus(ev transport.StatusEvent) {
	f.mu.Lock()
	fn := f.onStatus
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Monitored returns the devices with a live subscription, sorted.
func (f *Fake) Monitored() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.monitored))
	for id := range f.monitored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Calls returns a copy of all recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns recorded calls for one operation.
func (f *Fake) CallsOf(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// CountOf returns how many calls of one operation were recorded, optionally
// narrowed to a device.
func (f *Fake) CountOf(op, deviceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op && (deviceID == "" || c.DeviceID == deviceID) {
			n++
		}
	}
	return n
}

var _ transport.Transport = (*Fake)(nil)
