package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/battwatch/battwatch-go/pkg/battery"
	"github.com/battwatch/battwatch-go/pkg/transport"
)

// Client defaults.
const (
	// DefaultBrowseTimeout bounds one discovery browse.
	DefaultBrowseTimeout = 5 * time.Second

	// DefaultDialTimeout bounds one connection attempt.
	DefaultDialTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds one request-response exchange.
	DefaultRequestTimeout = 10 * time.Second
)

// Client errors.
var (
	// ErrUnknownDevice indicates the device has no known agent address.
	// A discovery scan teaches the client addresses.
	ErrUnknownDevice = errors.New("no agent address known for device")

	// ErrClientClosed indicates the client was closed.
	ErrClientClosed = errors.New("bridge client closed")

	// errNotConnected indicates the monitored connection is down and
	// reconnecting.
	errNotConnected = errors.New("bridge connection down")
)

// ClientConfig configures a bridge client.
type ClientConfig struct {
	// Interface restricts mDNS browsing to one network interface.
	Interface string

	// Instance narrows discovery to one announced agent name. Empty accepts
	// every agent found.
	Instance string

	// BrowseTimeout bounds one discovery browse. Zero selects the default.
	BrowseTimeout time.Duration

	// DialTimeout bounds one connection attempt. Zero selects the default.
	DialTimeout time.Duration

	// RequestTimeout bounds one request-response exchange when the caller's
	// context carries no deadline. Zero selects the default.
	RequestTimeout time.Duration

	// Log may be nil to use the default logger.
	Log *slog.Logger
}

type knownDevice struct {
	name string
	addr string
}

// Client implements transport.Transport over the LAN bridge. Devices are
// learned from discovery scans (or AddKnown); monitored devices hold one
// persistent connection each for pushed reports, re-established with backoff
// when it drops.
type Client struct {
	cfg ClientConfig
	log *slog.Logger

	mu       sync.Mutex
	known    map[string]knownDevice
	monitors map[string]*monitorConn
	onReport func(transport.ReportEvent)
	onStatus func(transport.StatusEvent)
	closed   bool
}

// NewClient creates a bridge client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BrowseTimeout <= 0 {
		cfg.BrowseTimeout = DefaultBrowseTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		log:      log,
		known:    make(map[string]knownDevice),
		monitors: make(map[string]*monitorConn),
	}
}

// AddKnown registers a device address without discovery, for static
// configurations and tests.
func (c *Client) AddKnown(deviceID, deviceName, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[deviceID] = knownDevice{name: deviceName, addr: addr}
}

// OnReport implements transport.Transport.
func (c *Client) OnReport(fn func(transport.ReportEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReport = fn
}

// OnStatus implements transport.Transport.
func (c *Client) OnStatus(fn func(transport.StatusEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// ListDevices browses for bridge agents until the context ends or the browse
// timeout elapses, whichever is sooner. Every agent found is remembered as a
// dialable device.
func (c *Client) ListDevices(ctx context.Context) ([]transport.DeviceInfo, error) {
	browseCtx, cancel := context.WithTimeout(ctx, c.cfg.BrowseTimeout)
	defer cancel()

	results, err := browse(browseCtx, c.cfg.Interface)
	if err != nil {
		return nil, err
	}

	infos := make([]transport.DeviceInfo, 0, len(results))
	c.mu.Lock()
	for _, f := range results {
		if c.cfg.Instance != "" && f.info.Name != c.cfg.Instance {
			continue
		}
		c.known[f.info.ID] = knownDevice{name: f.info.Name, addr: f.addr}
		infos = append(infos, f.info)
	}
	c.mu.Unlock()
	return infos, nil
}

// ReadInfo implements transport.Transport. A monitored device is read over
// its persistent connection; otherwise a transient connection serves the one
// exchange.
func (c *Client) ReadInfo(ctx context.Context, deviceID string) ([]battery.Source, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	mc := c.monitors[deviceID]
	dev, knownOK := c.known[deviceID]
	c.mu.Unlock()

	if mc != nil {
		resp, err := mc.call(ctx, OpRead)
		if err != nil {
			return nil, err
		}
		return decodeSources(resp)
	}

	if !knownOK {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return c.oneShotRead(ctx, dev.addr)
}

// StartMonitor implements transport.Transport: it opens the persistent
// connection, subscribes, and returns the initial reading. An empty reading
// with a nil error means subscribed but currently unreachable.
func (c *Client) StartMonitor(ctx context.Context, deviceID string) ([]battery.Source, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if mc := c.monitors[deviceID]; mc != nil {
		c.mu.Unlock()
		// Already monitored: re-issue the subscribe for a fresh reading.
		resp, err := mc.call(ctx, OpSubscribe)
		if err != nil {
			return nil, err
		}
		sources, err := decodeSources(resp)
		if err != nil {
			return nil, err
		}
		c.emitStatus(deviceID, true)
		return sources, nil
	}
	dev, ok := c.known[deviceID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	mc := newMonitorConn(c, deviceID, dev.addr)
	if err := mc.connect(ctx); err != nil {
		return nil, err
	}

	resp, err := mc.call(ctx, OpSubscribe)
	if err != nil {
		mc.teardown()
		return nil, err
	}
	sources, err := decodeSources(resp)
	if err != nil {
		mc.teardown()
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		mc.teardown()
		return nil, ErrClientClosed
	}
	if existing := c.monitors[deviceID]; existing != nil {
		c.mu.Unlock()
		// Lost a concurrent start for the same device. The committed
		// connection stays; this one unsubscribes and unwinds so the agent
		// holds exactly one subscription per client.
		mc.stop(ctx)
		return sources, nil
	}
	c.monitors[deviceID] = mc
	c.mu.Unlock()

	// The subscription is live: report the device up. The connection
	// watcher emits the matching down event if the link later drops.
	c.emitStatus(deviceID, true)
	return sources, nil
}

// StopMonitor implements transport.Transport. Idempotent; the unsubscribe is
// best-effort, the connection closes regardless.
func (c *Client) StopMonitor(ctx context.Context, deviceID string) error {
	c.mu.Lock()
	mc := c.monitors[deviceID]
	delete(c.monitors, deviceID)
	c.mu.Unlock()

	if mc == nil {
		return nil
	}
	mc.stop(ctx)
	return nil
}

// StopAllMonitors implements transport.Transport.
func (c *Client) StopAllMonitors(ctx context.Context) error {
	c.mu.Lock()
	monitors := c.monitors
	c.monitors = make(map[string]*monitorConn)
	c.mu.Unlock()

	for _, mc := range monitors {
		mc.stop(ctx)
	}
	return nil
}

// Close stops every monitor and refuses further use.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	monitors := c.monitors
	c.monitors = make(map[string]*monitorConn)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	for _, mc := range monitors {
		mc.stop(ctx)
	}
	return nil
}

func (c *Client) emitReport(deviceID string, src battery.Source) {
	c.mu.Lock()
	fn := c.onReport
	c.mu.Unlock()
	if fn != nil {
		fn(transport.ReportEvent{DeviceID: deviceID, Source: src})
	}
}

func (c *Client) emitStatus(deviceID string, connected bool) {
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(transport.StatusEvent{DeviceID: deviceID, Connected: connected})
	}
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bridge dial %s: %w", addr, err)
	}
	return conn, nil
}

// oneShotRead performs a read over a transient connection.
func (c *Client) oneShotRead(ctx context.Context, addr string) ([]battery.Source, error) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.RequestTimeout)
	}
	conn.SetDeadline(deadline)

	framer := NewFramer(conn)
	req := Request{MessageID: 1, Op: OpRead}
	data, err := EncodeRequest(&req)
	if err != nil {
		return nil, err
	}
	if err := framer.WriteFrame(data); err != nil {
		return nil, err
	}

	for {
		payload, err := framer.ReadFrame()
		if err != nil {
			return nil, err
		}
		resp, _, err := DecodeServerFrame(payload)
		if err != nil {
			return nil, err
		}
		if resp == nil || resp.MessageID != req.MessageID {
			continue // A report or a stale response; not ours.
		}
		return decodeSources(resp)
	}
}

func decodeSources(resp *Response) ([]battery.Source, error) {
	if resp.Status != StatusSuccess {
		return nil, fmt.Errorf("bridge: device unreachable (%s)", resp.Status)
	}
	return FromRecords(resp.Sources), nil
}
