// Package feed broadcasts live device state over WebSocket so UI layers can
// render battery levels without polling the service. Clients receive the full
// device list on connect and after every change, plus each emitted
// notification. The protocol is one-way; anything a client sends is ignored.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/battwatch/battwatch-go/pkg/notify"
	"github.com/battwatch/battwatch-go/pkg/registry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds the per-client queue. A client that falls this far
	// behind is dropped rather than allowed to stall the broadcast.
	sendBuffer = 16
)

// Event is one feed frame.
type Event struct {
	// Type is "devices" or "notification".
	Type string `json:"type"`

	// Devices carries the full device list for "devices" frames.
	Devices []registry.Device `json:"devices,omitempty"`

	// Notification carries the emitted notification for "notification"
	// frames.
	Notification *Notification `json:"notification,omitempty"`
}

// Notification is the wire form of an emitted notification.
type Notification struct {
	DeviceID   string  `json:"device_id"`
	DeviceName string  `json:"device_name"`
	Kind       string  `json:"kind"`
	Source     *string `json:"source,omitempty"`
	Level      int     `json:"level,omitempty"`
	Title      string  `json:"title"`
	Body       string  `json:"body"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans device snapshots and notifications out to WebSocket clients.
// Wire ObserveDevices to the registry's change feed and hand the hub to the
// engine as an additional notification sink.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	snapshot []byte
	closed   bool
}

// NewHub creates a hub. log may be nil to use the default logger.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is bound to loopback by default; remote UIs opt in
			// via config, so cross-origin upgrades are accepted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams feed frames until the client
// disconnects. The latest device snapshot is delivered first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.snapshot != nil {
		c.send <- h.snapshot
	}
	h.mu.Unlock()

	h.log.Debug("feed client connected", "remote", r.RemoteAddr)
	go h.writePump(c)
	go h.readPump(c)
}

// ObserveDevices broadcasts a device snapshot and caches it for joining
// clients. Register with Store.OnChange.
func (h *Hub) ObserveDevices(devices []registry.Device) {
	data, err := json.Marshal(Event{Type: "devices", Devices: devices})
	if err != nil {
		h.log.Warn("feed snapshot encode failed", "error", err)
		return
	}

	h.mu.Lock()
	h.snapshot = data
	h.broadcastLocked(data)
	h.mu.Unlock()
}

// Deliver implements notify.Sink: every emitted notification becomes a feed
// frame. Never returns an error; a dead client is the client's problem.
func (h *Hub) Deliver(ctx context.Context, msg notify.Message) error {
	data, err := json.Marshal(Event{Type: "notification", Notification: &Notification{
		DeviceID:   msg.DeviceID,
		DeviceName: msg.DeviceName,
		Kind:       msg.Kind.String(),
		Source:     msg.SourceDescriptor,
		Level:      msg.Level,
		Title:      msg.Title,
		Body:       msg.Body,
	}})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.broadcastLocked(data)
	h.mu.Unlock()
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. The hub accepts no new connections after.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) broadcastLocked(data []byte) {
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Queue full: the consumer stopped reading. Cut it loose.
			delete(h.clients, c)
			c.close()
			h.log.Warn("feed client dropped, send queue full")
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the client. Inbound frames carry no meaning, but reading
// is what services pong frames and surfaces disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ notify.Sink = (*Hub)(nil)
