package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/battwatch/battwatch-go/pkg/battery"
	"github.com/battwatch/battwatch-go/pkg/monitor"
	"github.com/battwatch/battwatch-go/pkg/registry"
	"github.com/battwatch/battwatch-go/pkg/transport"
	"github.com/battwatch/battwatch-go/pkg/transport/transporttest"
)

func newService(t *testing.T, mode monitor.Mode) (*Service, *transporttest.Fake, *registry.Store) {
	t.Helper()
	fake := transporttest.NewFake()
	store := registry.NewStore(nil, nil)
	svc := New(Options{
		Store:        store,
		Transport:    fake,
		Mode:         mode,
		PollInterval: time.Hour, // Only the immediate first cycle runs in tests.
	})
	t.Cleanup(svc.Stop)
	return svc, fake, store
}

func TestAddDevicePollingPerformsInitialRead(t *testing.T) {
	svc, fake, store := newService(t, monitor.ModePolling)
	fake.ScriptRead("dev-1", transporttest.Result{
		Sources: []battery.Source{{Level: battery.Lvl(85)}},
	})

	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "Corne"))

	dev, ok := store.Get("dev-1")
	require.True(t, ok)
	require.False(t, dev.Disconnected)
	require.Len(t, dev.Sources, 1)
	require.Equal(t, 85, *dev.Sources[0].Level)
}

func TestAddDeviceDuplicateRejected(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModePolling)
	fake.ScriptRead("dev-1", transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(50)}}})

	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "Corne"))
	require.ErrorIs(t, svc.AddDevice(context.Background(), "dev-1", "Corne"), registry.ErrDuplicateID)
}

func TestAddDeviceNotificationModeSubscribes(t *testing.T) {
	svc, fake, store := newService(t, monitor.ModeNotifications)
	require.NoError(t, svc.Start(context.Background()))

	fake.ScriptStart("dev-1", transporttest.Result{
		Sources: []battery.Source{{Level: battery.Lvl(60)}},
	})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "Corne"))
	svc.Quiesce()

	require.Equal(t, []string{"dev-1"}, svc.ActiveMonitors())
	dev, _ := store.Get("dev-1")
	require.Equal(t, 60, *dev.Sources[0].Level)
	// Snapshot merge alone does not prove liveness.
	require.True(t, dev.Disconnected)
}

func TestModeSwitchStartsMonitorsForAllDevices(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModePolling)
	require.NoError(t, svc.Start(context.Background()))

	fake.ScriptRead("dev-1", transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(10)}}})
	fake.ScriptRead("dev-2", transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(20)}}})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "One"))
	require.NoError(t, svc.AddDevice(context.Background(), "dev-2", "Two"))

	fake.ScriptStart("dev-1", transporttest.Result{})
	fake.ScriptStart("dev-2", transporttest.Result{})
	svc.SetMode(context.Background(), monitor.ModeNotifications)
	svc.Quiesce()

	require.Equal(t, monitor.ModeNotifications, svc.Mode())
	require.Equal(t, 1, fake.CountOf("start", "dev-1"))
	require.Equal(t, 1, fake.CountOf("start", "dev-2"))
	got := svc.ActiveMonitors()
	sort.Strings(got)
	require.Equal(t, []string{"dev-1", "dev-2"}, got)
}

func TestLeavingNotificationModeStopsEverything(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModeNotifications)
	require.NoError(t, svc.Start(context.Background()))

	fake.ScriptStart("dev-1", transporttest.Result{})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "One"))
	svc.Quiesce()
	require.Equal(t, []string{"dev-1"}, svc.ActiveMonitors())

	svc.SetMode(context.Background(), monitor.ModePolling)
	svc.Quiesce()

	require.Empty(t, svc.ActiveMonitors())
	require.Equal(t, 1, fake.CountOf("stop", "dev-1"))
	// The bulk teardown safety net ran as well.
	require.Equal(t, 1, fake.CountOf("stopAll", ""))
}

func TestRemoveDeviceTearsDownMonitorFirst(t *testing.T) {
	svc, fake, store := newService(t, monitor.ModeNotifications)
	require.NoError(t, svc.Start(context.Background()))

	fake.ScriptStart("dev-1", transporttest.Result{})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "One"))
	svc.Quiesce()

	require.NoError(t, svc.RemoveDevice(context.Background(), "dev-1"))
	svc.Quiesce()

	require.Empty(t, svc.ActiveMonitors())
	require.Equal(t, 1, fake.CountOf("stop", "dev-1"))
	_, ok := store.Get("dev-1")
	require.False(t, ok)
}

func TestRemoveDeviceMidStartLeavesNoStraySubscription(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModeNotifications)
	require.NoError(t, svc.Start(context.Background()))

	release := fake.BlockStarts()
	fake.ScriptStart("dev-1", transporttest.Result{})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "One"))

	// The start is in flight; removing the device supersedes its pass.
	require.NoError(t, svc.RemoveDevice(context.Background(), "dev-1"))
	release()
	svc.Quiesce()

	require.Empty(t, svc.ActiveMonitors())
	require.Empty(t, fake.Monitored(), "superseded start must reverse its own subscription")
}

func TestRemoveUnknownDevice(t *testing.T) {
	svc, _, _ := newService(t, monitor.ModePolling)
	require.ErrorIs(t, svc.RemoveDevice(context.Background(), "ghost"), ErrUnknownDevice)
}

func TestScanReportsDevicesAndFailures(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModePolling)
	fake.SetDevices(transport.DeviceInfo{ID: "dev-1", Name: "One"})

	var events []Event
	svc.OnEvent(func(ev Event) { events = append(events, ev) })

	infos, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	fake.SetScanError(errors.New("adapter gone"))
	_, err = svc.Scan(context.Background())
	require.Error(t, err)

	require.Len(t, events, 2)
	require.Equal(t, EventScanCompleted, events[0].Kind)
	require.Equal(t, 1, events[0].Found)
	require.NotEmpty(t, events[1].Err)
}

func TestReloadAllReadsEveryDeviceInPollingMode(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModePolling)

	fake.ScriptRead("dev-1", transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(40)}}})
	fake.ScriptRead("dev-2", transporttest.Result{Sources: []battery.Source{{Level: battery.Lvl(41)}}})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "One"))
	require.NoError(t, svc.AddDevice(context.Background(), "dev-2", "Two"))

	before1 := fake.CountOf("read", "dev-1")
	before2 := fake.CountOf("read", "dev-2")
	svc.ReloadAll(context.Background())

	require.Equal(t, before1+1, fake.CountOf("read", "dev-1"))
	require.Equal(t, before2+1, fake.CountOf("read", "dev-2"))
}

func TestReloadAllNoOpInNotificationMode(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModeNotifications)
	svc.ReloadAll(context.Background())
	require.Zero(t, fake.CountOf("read", ""))
}

func TestStopReconcilesToEmptyAndRunsSafetyNet(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModeNotifications)
	require.NoError(t, svc.Start(context.Background()))

	fake.ScriptStart("dev-1", transporttest.Result{})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "One"))
	svc.Quiesce()

	svc.Stop()

	require.Empty(t, svc.ActiveMonitors())
	require.Empty(t, fake.Monitored())
	require.Equal(t, 1, fake.CountOf("stopAll", ""))
}

func TestStatusEventsFlowThroughToStore(t *testing.T) {
	svc, fake, store := newService(t, monitor.ModeNotifications)
	require.NoError(t, svc.Start(context.Background()))

	fake.ScriptStart("dev-1", transporttest.Result{})
	require.NoError(t, svc.AddDevice(context.Background(), "dev-1", "One"))
	svc.Quiesce()

	fake.EmitStatus(transport.StatusEvent{DeviceID: "dev-1", Connected: true})
	dev, _ := store.Get("dev-1")
	require.False(t, dev.Disconnected)

	fake.EmitReport(transport.ReportEvent{
		DeviceID: "dev-1",
		Source:   battery.Source{Level: battery.Lvl(33)},
	})
	dev, _ = store.Get("dev-1")
	require.Equal(t, 33, *dev.Sources[0].Level)
}

func TestQuiescentConvergenceUnderChurn(t *testing.T) {
	svc, fake, _ := newService(t, monitor.ModeNotifications)
	require.NoError(t, svc.Start(context.Background()))

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		fake.ScriptStart(id, transporttest.Result{})
		require.NoError(t, svc.AddDevice(context.Background(), id, "Device "+id))
	}
	svc.SetMode(context.Background(), monitor.ModePolling)
	svc.SetMode(context.Background(), monitor.ModeNotifications)
	require.NoError(t, svc.RemoveDevice(context.Background(), "b"))
	svc.Quiesce()

	want := []string{"a", "c", "d"}
	got := svc.ActiveMonitors()
	sort.Strings(got)
	require.Equal(t, want, got)
	monitored := fake.Monitored()
	sort.Strings(monitored)
	require.Equal(t, want, monitored)
}
