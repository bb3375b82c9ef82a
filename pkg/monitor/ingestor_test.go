package monitor

import (
	"context"
	"testing"

	"github.com/battwatch/battwatch-go/pkg/battery"
	"github.com/battwatch/battwatch-go/pkg/notify"
	"github.com/battwatch/battwatch-go/pkg/registry"
	"github.com/battwatch/battwatch-go/pkg/transport"
	"github.com/battwatch/battwatch-go/pkg/transport/transporttest"
)

type ingestorFixture struct {
	fake  *transporttest.Fake
	store *registry.Store
	rec   *notifyRecorder
}

func newIngestorFixture(t *testing.T, dev registry.Device) *ingestorFixture {
	t.Helper()
	fake := transporttest.NewFake()
	store := registry.NewStore(nil, nil)
	if err := store.Add(dev); err != nil {
		t.Fatal(err)
	}
	rec := &notifyRecorder{}
	applier := NewStateApplier(ApplierConfig{Store: store, Sink: rec})
	NewIngestor(applier, nil).Bind(context.Background(), fake)
	return &ingestorFixture{fake: fake, store: store, rec: rec}
}

func TestReportFlipsConnectedSilently(t *testing.T) {
	f := newIngestorFixture(t, registry.Device{ID: "dev-1", Name: "Corne", Disconnected: true})

	f.fake.EmitReport(transport.ReportEvent{
		DeviceID: "dev-1",
		Source:   battery.Source{Descriptor: battery.Desc("Left"), Level: battery.Lvl(64)},
	})

	d, _ := f.store.Get("dev-1")
	if d.Disconnected {
		t.Error("report did not flip the device to connected")
	}
	if len(d.Sources) != 1 || *d.Sources[0].Level != 64 {
		t.Errorf("sources = %+v, want the report merged", d.Sources)
	}
	// A report proves liveness by itself; no connected notification.
	if f.rec.count() != 0 {
		t.Errorf("report emitted %d notifications, want 0", f.rec.count())
	}
}

func TestReportCrossingThresholdNotifiesLow(t *testing.T) {
	f := newIngestorFixture(t, registry.Device{
		ID: "dev-1", Name: "Corne",
		Sources: []battery.Source{{Descriptor: battery.Desc("Left"), Level: battery.Lvl(25)}},
	})

	f.fake.EmitReport(transport.ReportEvent{
		DeviceID: "dev-1",
		Source:   battery.Source{Descriptor: battery.Desc("Left"), Level: battery.Lvl(19)},
	})
	f.fake.EmitReport(transport.ReportEvent{
		DeviceID: "dev-1",
		Source:   battery.Source{Descriptor: battery.Desc("Left"), Level: battery.Lvl(18)},
	})

	if got := f.rec.byKind(notify.KindLowBattery); len(got) != 1 {
		t.Fatalf("low notifications = %d, want exactly 1 for the crossing", len(got))
	}
	if got := f.rec.byKind(notify.KindLowBattery)[0]; got.Level != 19 {
		t.Errorf("low notification level = %d, want 19", got.Level)
	}
}

func TestReportForUnknownDeviceIsDropped(t *testing.T) {
	f := newIngestorFixture(t, registry.Device{ID: "dev-1"})

	f.fake.EmitReport(transport.ReportEvent{
		DeviceID: "ghost",
		Source:   battery.Source{Level: battery.Lvl(5)},
	})

	if f.store.Len() != 1 {
		t.Errorf("store size = %d, want 1", f.store.Len())
	}
	if f.rec.count() != 0 {
		t.Errorf("unknown-device report emitted %d notifications", f.rec.count())
	}
}

func TestStatusFlipNotifiesOnce(t *testing.T) {
	f := newIngestorFixture(t, registry.Device{ID: "dev-1", Name: "Corne"})

	f.fake.EmitStatus(transport.StatusEvent{DeviceID: "dev-1", Connected: false})
	f.fake.EmitStatus(transport.StatusEvent{DeviceID: "dev-1", Connected: false})

	d, _ := f.store.Get("dev-1")
	if !d.Disconnected {
		t.Error("status event did not flip the device")
	}
	if got := f.rec.byKind(notify.KindDisconnected); len(got) != 1 {
		t.Errorf("disconnected notifications = %d, want 1", len(got))
	}

	f.fake.EmitStatus(transport.StatusEvent{DeviceID: "dev-1", Connected: true})
	if got := f.rec.byKind(notify.KindConnected); len(got) != 1 {
		t.Errorf("connected notifications = %d, want 1", len(got))
	}
}

func TestStatusMatchingCurrentStateIsNoop(t *testing.T) {
	f := newIngestorFixture(t, registry.Device{ID: "dev-1"})

	f.fake.EmitStatus(transport.StatusEvent{DeviceID: "dev-1", Connected: true})

	d, _ := f.store.Get("dev-1")
	if d.Disconnected {
		t.Error("redundant status changed the device state")
	}
	if f.rec.count() != 0 {
		t.Errorf("redundant status emitted %d notifications", f.rec.count())
	}
}

func TestStatusForUnknownDeviceIsDropped(t *testing.T) {
	f := newIngestorFixture(t, registry.Device{ID: "dev-1"})

	f.fake.EmitStatus(transport.StatusEvent{DeviceID: "ghost", Connected: false})

	if f.rec.count() != 0 {
		t.Errorf("unknown-device status emitted %d notifications", f.rec.count())
	}
}
