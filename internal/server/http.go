package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/udp-peer-service/internal/config"
	"github.com/skypro1111/udp-peer-service/internal/eventlog"
	"github.com/skypro1111/udp-peer-service/internal/metrics"
	"github.com/skypro1111/udp-peer-service/internal/registry"
)

const (
	serviceName    = "udp-peer-service"
	serviceVersion = "1.0.0"
)

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	registry  *registry.Registry
	udpServer *UDPServer
	history   *eventlog.History
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int
	Address string
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	reg *registry.Registry, udpServer *UDPServer, history *eventlog.History,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		registry:  reg,
		udpServer: udpServer,
		history:   history,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed API handler
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/peers", h.withMetrics("/peers", h.handlePeers))
	mux.HandleFunc("/peers/", h.withMetrics("/peers/{addr}", h.handlePeerDetail))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/events", h.withMetrics("/events", h.handleEvents))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))

	return mux
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Capture the status code written by the handler
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server in the background
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode HTTP response", slog.String("error", err.Error()))
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]any{
			"udp_server": map[string]any{
				"status":             "running",
				"address":            h.udpServer.LocalAddr().String(),
				"datagrams_received": udpStats.DatagramsReceived,
				"responses_sent":     udpStats.ResponsesSent,
			},
			"registry": map[string]any{
				"status":       "running",
				"active_peers": udpStats.ActivePeers,
				"shards":       h.registry.Shards(),
			},
		},
	}

	h.writeJSON(w, health)
}

// handlePeers implements the /peers endpoint
func (h *HTTPServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	peers := h.registry.Snapshot()
	if peers == nil {
		peers = []registry.PeerInfo{}
	}

	h.writeJSON(w, map[string]any{
		"total_peers": len(peers),
		"timestamp":   time.Now().UTC(),
		"peers":       peers,
	})
}

// handlePeerDetail implements the /peers/{addr} endpoint
func (h *HTTPServer) handlePeerDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Path[len("/peers/"):]
	if raw == "" {
		http.Error(w, "Peer address required", http.StatusBadRequest)
		return
	}

	addr, err := netip.ParseAddrPort(raw)
	if err != nil {
		http.Error(w, "Invalid peer address", http.StatusBadRequest)
		return
	}

	info, ok := h.registry.Lookup(addr)
	if !ok {
		http.Error(w, "Peer not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, map[string]any{
		"addr":          info.Addr,
		"request_count": info.RequestCount,
		"first_seen":    info.FirstSeen,
		"last_activity": info.LastActivity,
		"idle":          time.Since(info.LastActivity).Round(time.Millisecond).String(),
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()

	h.writeJSON(w, map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"udp": map[string]any{
			"datagrams_received":   udpStats.DatagramsReceived,
			"bytes_received":       udpStats.BytesReceived,
			"bytes_received_human": humanize.IBytes(udpStats.BytesReceived),
			"responses_sent":       udpStats.ResponsesSent,
			"responses_throttled":  udpStats.ResponsesThrottled,
			"receive_errors":       udpStats.ReceiveErrors,
			"send_errors":          udpStats.SendErrors,
		},
		"peers": map[string]any{
			"active_count": udpStats.ActivePeers,
		},
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, map[string]any{
		"server": map[string]any{
			"udp_port":       h.config.Server.UDPPort,
			"bind_address":   h.config.Server.BindAddress,
			"buffer_size":    h.config.Server.BufferSize,
			"response_rate":  h.config.Server.ResponseRate,
			"response_burst": h.config.Server.ResponseBurst,
		},
		"registry": map[string]any{
			"inactive_timeout": h.config.Registry.GetInactiveTimeout().String(),
			"sweep_interval":   h.config.Registry.GetSweepInterval().String(),
			"shards":           h.config.Registry.Shards,
		},
		"events": map[string]any{
			"history_size": h.config.Events.HistorySize,
			"console":      h.config.Events.Console,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleEvents implements the /events endpoint; ?limit=N returns the N newest
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events := h.history.Recent(limit)

	h.writeJSON(w, map[string]any{
		"total_events": len(events),
		"events":       events,
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.writeJSON(w, map[string]any{
		"service": fmt.Sprintf("%s %s", serviceName, serviceVersion),
		"endpoints": map[string]any{
			"GET /":             "API documentation",
			"GET /health":       "Service health check",
			"GET /peers":        "List all known peers",
			"GET /peers/{addr}": "Get a single peer by host:port",
			"GET /stats":        "Get datagram statistics",
			"GET /config":       "Get service configuration",
			"GET /events":       "Recent server events (?limit=N)",
			"GET /metrics":      "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
