// Package metrics exposes engine and device state as Prometheus collectors.
//
// The Metrics struct implements monitor.Hooks, so handing it to the engine is
// all the wiring the counters need. Device-level gauges are driven by the
// registry's change feed through ObserveDevices. The HTTP endpoint lives in
// the command, not here.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/battwatch/battwatch-go/pkg/monitor"
	"github.com/battwatch/battwatch-go/pkg/registry"
)

const namespace = "battwatch"

// Metrics contains all engine metrics.
type Metrics struct {
	// Device state gauges, rebuilt from registry snapshots.
	BatteryLevel      *prometheus.GaugeVec
	DeviceConnected   *prometheus.GaugeVec
	DeviceInfo        *prometheus.GaugeVec
	DevicesRegistered prometheus.Gauge

	// Engine progress.
	ActiveMonitors        prometheus.Gauge
	ReadsTotal            *prometheus.CounterVec
	ReadAttemptsTotal     prometheus.Counter
	ReconcilePassesTotal  prometheus.Counter
	SupersededPassesTotal prometheus.Counter
	ReportsTotal          prometheus.Counter
	NotificationsTotal    *prometheus.CounterVec

	mu sync.Mutex
}

// New creates all collectors and registers them on reg. A nil reg leaves the
// collectors unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatteryLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "battery_level",
				Help:      "Last known battery level per source (0-100).",
			},
			[]string{"device", "source"},
		),

		DeviceConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "connected",
				Help:      "Device liveness (0=disconnected, 1=connected).",
			},
			[]string{"device"},
		),

		DeviceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "info",
				Help:      "Device identity labels; value is always 1.",
			},
			[]string{"device", "name"},
		),

		DevicesRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "devices_registered",
				Help:      "Number of registered devices.",
			},
		),

		ActiveMonitors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "active_monitors",
				Help:      "Number of committed notification subscriptions.",
			},
		),

		ReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "reads_total",
				Help:      "Completed battery reads by result.",
			},
			[]string{"result"},
		),

		ReadAttemptsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "read_attempts_total",
				Help:      "Individual read attempts, including retries.",
			},
		),

		ReconcilePassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "reconcile_passes_total",
				Help:      "Reconciliation passes started.",
			},
		),

		SupersededPassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "superseded_passes_total",
				Help:      "Monitor starts discarded because a newer pass began.",
			},
		),

		ReportsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "reports_total",
				Help:      "Pushed battery reports accepted.",
			},
		),

		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications emitted by kind.",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.BatteryLevel,
			m.DeviceConnected,
			m.DeviceInfo,
			m.DevicesRegistered,
			m.ActiveMonitors,
			m.ReadsTotal,
			m.ReadAttemptsTotal,
			m.ReconcilePassesTotal,
			m.SupersededPassesTotal,
			m.ReportsTotal,
			m.NotificationsTotal,
		)
	}
	return m
}

// ObserveDevices rebuilds the device gauges from a registry snapshot.
// Register it with Store.OnChange. Resetting before repopulating drops the
// series of removed devices; the cardinality is a handful of keyboards, so
// the rebuild cost is irrelevant.
func (m *Metrics) ObserveDevices(devices []registry.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BatteryLevel.Reset()
	m.DeviceConnected.Reset()
	m.DeviceInfo.Reset()

	m.DevicesRegistered.Set(float64(len(devices)))
	for _, d := range devices {
		m.DeviceInfo.WithLabelValues(d.ID, d.Name).Set(1)

		connected := 1.0
		if d.Disconnected {
			connected = 0
		}
		m.DeviceConnected.WithLabelValues(d.ID).Set(connected)

		for _, s := range d.Sources {
			if s.Level == nil {
				continue
			}
			m.BatteryLevel.WithLabelValues(d.ID, s.DescriptorKey()).Set(float64(*s.Level))
		}
	}
}

// ReconcilePass implements monitor.Hooks.
func (m *Metrics) ReconcilePass(generation uint64, desired, toStart, toStop int) {
	m.ReconcilePassesTotal.Inc()
}

// PassSuperseded implements monitor.Hooks.
func (m *Metrics) PassSuperseded(generation uint64) {
	m.SupersededPassesTotal.Inc()
}

// MonitorStarted implements monitor.Hooks.
func (m *Metrics) MonitorStarted(deviceID string) {
	m.ActiveMonitors.Inc()
}

// MonitorStopped implements monitor.Hooks.
func (m *Metrics) MonitorStopped(deviceID string) {
	m.ActiveMonitors.Dec()
}

// ReadCompleted implements monitor.Hooks.
func (m *Metrics) ReadCompleted(deviceID string, attempts int, succeeded bool) {
	result := "exhausted"
	if succeeded {
		result = "succeeded"
	}
	m.ReadsTotal.WithLabelValues(result).Inc()
	m.ReadAttemptsTotal.Add(float64(attempts))
}

// ReportIngested implements monitor.Hooks.
func (m *Metrics) ReportIngested(deviceID string) {
	m.ReportsTotal.Inc()
}

// NotificationEmitted implements monitor.Hooks.
func (m *Metrics) NotificationEmitted(kind string) {
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

var _ monitor.Hooks = (*Metrics)(nil)
