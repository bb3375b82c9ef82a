package bridge

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// monitorConn is the persistent connection behind one monitored device. The
// read loop demultiplexes responses (by message id) from pushed reports; a
// dropped connection fails pending calls, emits a disconnected status event
// and reconnects with backoff until stop.
type monitorConn struct {
	client   *Client
	deviceID string
	addr     string
	log      *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	framer  *Framer
	pending map[uint32]chan *Response
	nextID  uint32
	stopped bool

	// stopCh aborts reconnect waits.
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newMonitorConn(client *Client, deviceID, addr string) *monitorConn {
	return &monitorConn{
		client:   client,
		deviceID: deviceID,
		addr:     addr,
		log:      client.log.With("device", deviceID, "agent", addr),
		pending:  make(map[uint32]chan *Response),
		stopCh:   make(chan struct{}),
	}
}

// connect dials the agent and starts the read loop. Used for the initial
// connection; reconnects go through reconnectLoop.
func (m *monitorConn) connect(ctx context.Context) error {
	conn, err := m.client.dial(ctx, m.addr)
	if err != nil {
		return err
	}
	m.install(conn)
	return nil
}

func (m *monitorConn) install(conn net.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.framer = NewFramer(conn)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.readLoop(conn)
}

// call performs one request-response exchange on the live connection.
func (m *monitorConn) call(ctx context.Context, op Op) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.client.cfg.RequestTimeout)
		defer cancel()
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrClientClosed
	}
	if m.conn == nil {
		m.mu.Unlock()
		return nil, errNotConnected
	}
	framer := m.framer
	m.nextID++
	id := m.nextID
	ch := make(chan *Response, 1)
	m.pending[id] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	data, err := EncodeRequest(&Request{MessageID: id, Op: op})
	if err != nil {
		return nil, err
	}
	if err := framer.WriteFrame(data); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errNotConnected
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *monitorConn) readLoop(conn net.Conn) {
	defer m.wg.Done()

	framer := NewFrameReader(conn)
	for {
		payload, err := framer.ReadFrame()
		if err != nil {
			m.connectionLost(conn)
			return
		}

		resp, report, err := DecodeServerFrame(payload)
		if err != nil {
			m.log.Warn("undecodable bridge frame", "error", err)
			continue
		}

		switch {
		case report != nil:
			m.client.emitReport(m.deviceID, FromRecord(report.Source))
		case resp != nil:
			m.mu.Lock()
			ch := m.pending[resp.MessageID]
			delete(m.pending, resp.MessageID)
			m.mu.Unlock()
			if ch != nil {
				ch <- resp
			}
		}
	}
}

// connectionLost reacts to a read loop ending. An intentional stop is
// silent; a drop fails the in-flight calls, reports the device down and
// begins reconnecting.
func (m *monitorConn) connectionLost(conn net.Conn) {
	m.mu.Lock()
	if m.stopped || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.framer = nil
	m.failPendingLocked()
	m.mu.Unlock()

	conn.Close()
	m.log.Debug("bridge connection lost")
	m.client.emitStatus(m.deviceID, false)

	m.wg.Add(1)
	go m.reconnectLoop()
}

func (m *monitorConn) failPendingLocked() {
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
}

// reconnectLoop re-establishes the connection and re-subscribes, backing off
// between attempts. A successful re-subscribe reports the device up again
// and replays the fresh reading as report events.
func (m *monitorConn) reconnectLoop() {
	defer m.wg.Done()

	backoff := NewBackoff()
	for {
		timer := time.NewTimer(backoff.Next())
		select {
		case <-m.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.client.cfg.DialTimeout)
		conn, err := m.client.dial(ctx, m.addr)
		cancel()
		if err != nil {
			m.log.Debug("bridge reconnect failed", "attempt", backoff.Attempts(), "error", err)
			continue
		}

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.mu.Unlock()
		m.install(conn)

		subCtx, cancelSub := context.WithTimeout(context.Background(), m.client.cfg.RequestTimeout)
		resp, err := m.call(subCtx, OpSubscribe)
		cancelSub()
		if err != nil {
			// The agent answered the dial but not the subscribe; drop the
			// connection and keep backing off.
			m.log.Debug("bridge re-subscribe failed", "error", err)
			m.dropConn(conn)
			continue
		}

		backoff.Reset()
		m.log.Debug("bridge reconnected")
		m.client.emitStatus(m.deviceID, true)
		for _, rec := range resp.Sources {
			m.client.emitReport(m.deviceID, FromRecord(rec))
		}
		return
	}
}

// dropConn detaches and closes a connection without triggering the
// reconnect path.
func (m *monitorConn) dropConn(conn net.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.framer = nil
	}
	m.failPendingLocked()
	m.mu.Unlock()
	conn.Close()
}

// stop ends monitoring: best-effort unsubscribe, then teardown. No status
// event is emitted; the engine asked for this.
func (m *monitorConn) stop(ctx context.Context) {
	m.mu.Lock()
	alive := m.conn != nil && !m.stopped
	m.mu.Unlock()

	if alive {
		if _, err := m.call(ctx, OpUnsubscribe); err != nil {
			m.log.Debug("bridge unsubscribe failed", "error", err)
		}
	}
	m.teardown()
}

// teardown closes the connection and stops the reconnect loop, then waits
// for the goroutines to finish.
func (m *monitorConn) teardown() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.stopped = true
	conn := m.conn
	m.conn = nil
	m.framer = nil
	m.failPendingLocked()
	close(m.stopCh)
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.wg.Wait()
}
