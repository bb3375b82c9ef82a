package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

// readTimeout bounds a provider read issued on behalf of one request.
const readTimeout = 10 * time.Second

// SourceProvider supplies battery data for the device an agent hosts. The
// real implementation reads the paired hardware; tests and the example agent
// use simulated sources.
type SourceProvider interface {
	// Read returns the current battery sources. An error means the device
	// is unreachable right now.
	Read(ctx context.Context) ([]battery.Source, error)

	// Subscribe registers fn for source changes and returns a cancel
	// function. fn may be called from any goroutine until cancel returns.
	Subscribe(fn func(battery.Source)) (cancel func())
}

// ServerConfig configures an agent server.
type ServerConfig struct {
	// DeviceID identifies the hosted device. Required.
	DeviceID string

	// DeviceName is the advertised display name.
	DeviceName string

	// Port is the TCP listen port. Zero picks an ephemeral port.
	Port int

	// Interface restricts mDNS advertising to one network interface.
	// Empty advertises on all interfaces.
	Interface string

	// Advertise controls mDNS advertising. Tests disable it and dial the
	// listener address directly.
	Advertise bool

	// Log may be nil to use the default logger.
	Log *slog.Logger
}

// Server hosts one device on the bridge: it advertises the device over mDNS
// and serves battery reads and subscriptions to connected clients.
type Server struct {
	cfg      ServerConfig
	provider SourceProvider
	log      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	mdns     *zeroconf.Server
	started  bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server for the given provider.
func NewServer(cfg ServerConfig, provider SourceProvider) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		provider: provider,
		log:      log.With("device", cfg.DeviceID),
	}
}

// Start binds the listener, begins advertising and accepts connections until
// Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("bridge server already started")
	}
	if s.cfg.DeviceID == "" {
		return errors.New("bridge server requires a device id")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("bridge listen: %w", err)
	}

	if s.cfg.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		mdns, err := zeroconf.Register(
			instanceName(s.cfg.DeviceID),
			ServiceType,
			Domain,
			port,
			encodeTXT(s.cfg.DeviceID, s.cfg.DeviceName),
			selectIfaces(s.cfg.Interface),
		)
		if err != nil {
			listener.Close()
			return fmt.Errorf("bridge advertise: %w", err)
		}
		s.mdns = mdns
	}

	s.listener = listener
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("bridge agent listening", "addr", listener.Addr().String(), "advertise", s.cfg.Advertise)
	return nil
}

// Addr returns the listener address, valid after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop withdraws the advertisement, closes the listener and every client
// connection, and waits for the handlers to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.mdns != nil {
		s.mdns.Shutdown()
		s.mdns = nil
	}
	s.listener.Close()
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // Listener closed
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn handles one client connection: a request loop plus, once
// subscribed, report pushes interleaved on the same framed writer.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	framer := NewFramer(conn)
	log := s.log.With("remote", conn.RemoteAddr().String())

	// Close the connection when the server stops so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var cancelSub func()
	defer func() {
		if cancelSub != nil {
			cancelSub()
		}
	}()

	for {
		payload, err := framer.ReadFrame()
		if err != nil {
			return
		}

		req, err := DecodeRequest(payload)
		if err != nil {
			log.Warn("bad bridge request", "error", err)
			// Without a message id there is nothing to address the error to.
			continue
		}

		resp := Response{MessageID: req.MessageID}
		switch req.Op {
		case OpRead:
			resp.Status, resp.Sources = s.readSources()

		case OpSubscribe:
			if cancelSub == nil {
				cancelSub = s.provider.Subscribe(func(src battery.Source) {
					s.pushReport(framer.FrameWriter, log, src)
				})
			}
			// The initial reading rides on the response. A failed read
			// still subscribes: empty sources mean "subscribed, currently
			// unreachable".
			_, resp.Sources = s.readSources()
			resp.Status = StatusSuccess

		case OpUnsubscribe:
			if cancelSub != nil {
				cancelSub()
				cancelSub = nil
			}
			resp.Status = StatusSuccess

		default:
			resp.Status = StatusBadRequest
		}

		data, err := EncodeResponse(&resp)
		if err != nil {
			log.Error("encode bridge response", "error", err)
			return
		}
		if err := framer.WriteFrame(data); err != nil {
			return
		}
	}
}

func (s *Server) readSources() (Status, []SourceRecord) {
	ctx, cancel := context.WithTimeout(s.ctx, readTimeout)
	defer cancel()

	sources, err := s.provider.Read(ctx)
	if err != nil {
		return StatusUnreachable, nil
	}
	return StatusSuccess, ToRecords(sources)
}

func (s *Server) pushReport(fw *FrameWriter, log *slog.Logger, src battery.Source) {
	data, err := EncodeReport(ToRecord(src))
	if err != nil {
		log.Error("encode bridge report", "error", err)
		return
	}
	if err := fw.WriteFrame(data); err != nil {
		log.Debug("push report failed", "error", err)
	}
}
