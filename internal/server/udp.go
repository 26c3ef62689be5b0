package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/skypro1111/udp-peer-service/internal/config"
	"github.com/skypro1111/udp-peer-service/internal/eventlog"
	"github.com/skypro1111/udp-peer-service/internal/metrics"
	"github.com/skypro1111/udp-peer-service/internal/protocol"
	"github.com/skypro1111/udp-peer-service/internal/registry"
)

// ErrNotStarted is returned when stopping a server that never started
var ErrNotStarted = errors.New("udp server not started")

// UDPServer answers datagrams from remote peers and keeps their liveness registry.
// It runs two loops for its lifetime: the listener, which receives, replies and
// records activity, and the sweeper, which evicts silent peers.
type UDPServer struct {
	conn     *net.UDPConn
	config   *config.ServerConfig
	logger   *slog.Logger
	registry *registry.Registry
	sweeper  *registry.Sweeper
	sink     eventlog.Sink
	metrics  *metrics.Metrics

	bufferSize int
	limiter    *rate.Limiter // nil when responses are unlimited

	// Concurrency management
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	groupCtx context.Context
	stopOnce sync.Once
	stopErr  error

	// Statistics
	startTime          time.Time
	datagramsReceived  uint64
	bytesReceived      uint64
	responsesSent      uint64
	responsesThrottled uint64
	receiveErrors      uint64
	sendErrors         uint64
	mu                 sync.RWMutex
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, reg *registry.Registry,
	sweeper *registry.Sweeper, sink eventlog.Sink, m *metrics.Metrics) (*UDPServer, error) {

	bufferSize, err := cfg.GetBufferSize()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &UDPServer{
		config:     cfg,
		logger:     logger,
		registry:   reg,
		sweeper:    sweeper,
		sink:       sink,
		metrics:    m,
		bufferSize: bufferSize,
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.ResponseRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ResponseRate), cfg.ResponseBurst)
	}

	sweeper.OnSweep = s.observeSweep

	return s, nil
}

// Start binds the transport and launches the listener and sweeper loops
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.UDPPort)))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn
	s.startTime = time.Now()

	if err := s.conn.SetReadBuffer(s.bufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.bufferSize),
			slog.String("error", err.Error()),
		)
	}

	local := s.LocalAddr()
	s.logger.Info("UDP server started",
		slog.String("address", local.String()),
		slog.Int("buffer_size", s.bufferSize),
		slog.Bool("rate_limited", s.limiter != nil),
	)
	s.sink.Log(eventlog.ServerStarted(int(local.Port())))

	s.group, s.groupCtx = errgroup.WithContext(s.ctx)
	s.group.Go(func() error {
		return s.receiveLoop(s.groupCtx)
	})
	s.group.Go(func() error {
		return s.sweeper.Run(s.groupCtx)
	})

	return nil
}

// Done is closed once either loop has exited or Stop was called
func (s *UDPServer) Done() <-chan struct{} {
	if s.groupCtx == nil {
		return s.ctx.Done()
	}
	return s.groupCtx.Done()
}

// Stop signals both loops, releases the transport and waits for the loops to exit.
// It returns the first error a loop failed with, if any.
func (s *UDPServer) Stop() error {
	if s.conn == nil {
		return ErrNotStarted
	}

	s.stopOnce.Do(func() {
		s.logger.Info("Stopping UDP server...")

		// Cancel context to signal shutdown
		s.cancel()

		// Close UDP connection to unblock the receive loop
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}

		s.stopErr = s.group.Wait()

		stats := s.GetStatistics()
		s.logger.Info("UDP server stopped",
			slog.Uint64("datagrams_received", stats.DatagramsReceived),
			slog.Uint64("responses_sent", stats.ResponsesSent),
			slog.Uint64("send_errors", stats.SendErrors),
			slog.Uint64("receive_errors", stats.ReceiveErrors),
		)
	})

	return s.stopErr
}

// LocalAddr returns the bound transport address
func (s *UDPServer) LocalAddr() netip.AddrPort {
	if s.conn == nil {
		return netip.AddrPort{}
	}
	return registry.Normalize(s.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

// receiveLoop is the listener: one datagram in, one response out, until shutdown
func (s *UDPServer) receiveLoop(ctx context.Context) error {
	buffer := make([]byte, s.bufferSize)

	for {
		n, remoteAddr, err := s.conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			// Closing the socket is how shutdown unblocks the read
			if ctx.Err() != nil {
				s.logger.Info("Receive loop stopping due to context cancellation")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("udp transport closed unexpectedly: %w", err)
			}

			s.mu.Lock()
			s.receiveErrors++
			s.mu.Unlock()
			s.metrics.RecordReceiveError()

			s.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
			s.sink.Log(eventlog.Error(err))
			continue
		}

		s.handleDatagram(remoteAddr, buffer[:n])
	}
}

// handleDatagram processes one datagram. Activity is recorded before the reply
// is attempted so liveness tracking never depends on the send outcome.
func (s *UDPServer) handleDatagram(remoteAddr netip.AddrPort, payload []byte) {
	remoteAddr = registry.Normalize(remoteAddr)

	s.mu.Lock()
	s.datagramsReceived++
	s.bytesReceived += uint64(len(payload))
	s.mu.Unlock()
	s.metrics.RecordDatagram(len(payload))

	activity := s.registry.RecordActivity(remoteAddr)
	if activity.New {
		s.metrics.RecordPeerConnected()
	}

	s.logger.Debug("Datagram received",
		slog.String("remote_addr", remoteAddr.String()),
		slog.Int("size", len(payload)),
		slog.Uint64("request_count", activity.RequestCount),
	)

	if s.limiter != nil && !s.limiter.Allow() {
		s.mu.Lock()
		s.responsesThrottled++
		s.mu.Unlock()
		s.metrics.RecordResponseThrottled()

		s.logger.Debug("Response throttled", slog.String("remote_addr", remoteAddr.String()))
		return
	}

	response, wire := protocol.Respond(payload)

	// UDPConn writes are safe for concurrent use
	if _, err := s.conn.WriteToUDPAddrPort(wire, remoteAddr); err != nil {
		s.mu.Lock()
		s.sendErrors++
		s.mu.Unlock()
		s.metrics.RecordSendError()

		s.logger.Error("Failed to send response",
			slog.String("remote_addr", remoteAddr.String()),
			slog.String("error", err.Error()),
		)
		s.sink.Log(eventlog.Error(err))
		return
	}

	s.mu.Lock()
	s.responsesSent++
	s.mu.Unlock()
	s.metrics.RecordResponseSent()

	s.sink.Log(eventlog.ResponseSent(remoteAddr, response))
}

// observeSweep feeds sweep results into metrics
func (s *UDPServer) observeSweep(evicted []registry.PeerInfo, elapsed time.Duration) {
	s.metrics.RecordSweep(elapsed.Seconds())

	for _, p := range evicted {
		s.metrics.RecordPeerDisconnected(p.RequestCount)
	}
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime)
	}

	return ServerStatistics{
		DatagramsReceived:  s.datagramsReceived,
		BytesReceived:      s.bytesReceived,
		ResponsesSent:      s.responsesSent,
		ResponsesThrottled: s.responsesThrottled,
		ReceiveErrors:      s.receiveErrors,
		SendErrors:         s.sendErrors,
		ActivePeers:        uint64(s.registry.Len()),
		Uptime:             uptime,
	}
}

// ServerStatistics represents server counters
type ServerStatistics struct {
	DatagramsReceived  uint64        `json:"datagrams_received"`
	BytesReceived      uint64        `json:"bytes_received"`
	ResponsesSent      uint64        `json:"responses_sent"`
	ResponsesThrottled uint64        `json:"responses_throttled"`
	ReceiveErrors      uint64        `json:"receive_errors"`
	SendErrors         uint64        `json:"send_errors"`
	ActivePeers        uint64        `json:"active_peers"`
	Uptime             time.Duration `json:"uptime"`
}
