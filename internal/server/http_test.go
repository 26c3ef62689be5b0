package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/udp-peer-service/internal/config"
	"github.com/skypro1111/udp-peer-service/internal/eventlog"
	"github.com/skypro1111/udp-peer-service/internal/metrics"
)

type testAPI struct {
	*testServer
	handler http.Handler
	history *eventlog.History
	gather  *prometheus.Registry
	metrics *metrics.Metrics
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ts := newTestServer(t, nil)

	history, err := eventlog.NewHistory(16)
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	h := NewHTTPServer(HTTPServerConfig{Address: "127.0.0.1", Port: 0}, newTestLogger(),
		config.Default(), ts.registry, ts.udp, history, m, reg)

	return &testAPI{testServer: ts, handler: h.Handler(), history: history, gather: reg, metrics: m}
}

func (a *testAPI) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func TestHTTPHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestHTTPPeers(t *testing.T) {
	api := newTestAPI(t)

	rec := api.get(t, "/peers")
	body := decodeBody(t, rec)
	if body["total_peers"] != float64(0) {
		t.Errorf("Expected 0 peers, got %v", body["total_peers"])
	}
	if peers, ok := body["peers"].([]any); !ok || len(peers) != 0 {
		t.Errorf("Expected empty peer list, got %v", body["peers"])
	}

	conn := dialServer(t, api.udp)
	exchange(t, conn, []byte("ping"))

	body = decodeBody(t, api.get(t, "/peers"))
	if body["total_peers"] != float64(1) {
		t.Errorf("Expected 1 peer, got %v", body["total_peers"])
	}
}

func TestHTTPPeerDetail(t *testing.T) {
	api := newTestAPI(t)
	conn := dialServer(t, api.udp)
	exchange(t, conn, []byte("ping"))
	exchange(t, conn, []byte("ping"))

	peer := clientAddr(conn)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"known peer", "/peers/" + peer.String(), http.StatusOK},
		{"unknown peer", "/peers/10.9.9.9:1", http.StatusNotFound},
		{"malformed address", "/peers/not-an-address", http.StatusBadRequest},
		{"missing address", "/peers/", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.get(t, tt.path)
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, rec.Code)
			}
		})
	}

	body := decodeBody(t, api.get(t, "/peers/"+peer.String()))
	if body["request_count"] != float64(2) {
		t.Errorf("Expected request_count 2, got %v", body["request_count"])
	}
	if body["addr"] != peer.String() {
		t.Errorf("Expected addr %s, got %v", peer, body["addr"])
	}
}

func TestHTTPStats(t *testing.T) {
	api := newTestAPI(t)
	conn := dialServer(t, api.udp)
	exchange(t, conn, []byte("ping"))

	body := decodeBody(t, api.get(t, "/stats"))
	udp, ok := body["udp"].(map[string]any)
	if !ok {
		t.Fatalf("Expected udp section, got %v", body["udp"])
	}
	if udp["datagrams_received"] != float64(1) {
		t.Errorf("Expected 1 datagram, got %v", udp["datagrams_received"])
	}
	if udp["bytes_received_human"] != "4 B" {
		t.Errorf("Expected '4 B', got %v", udp["bytes_received_human"])
	}
}

func TestHTTPConfig(t *testing.T) {
	api := newTestAPI(t)

	body := decodeBody(t, api.get(t, "/config"))
	reg, ok := body["registry"].(map[string]any)
	if !ok {
		t.Fatalf("Expected registry section, got %v", body["registry"])
	}
	if reg["inactive_timeout"] != "10m0s" {
		t.Errorf("Expected 10m0s timeout, got %v", reg["inactive_timeout"])
	}
	if reg["sweep_interval"] != "1s" {
		t.Errorf("Expected 1s sweep interval, got %v", reg["sweep_interval"])
	}
}

func TestHTTPEvents(t *testing.T) {
	api := newTestAPI(t)
	api.history.Log("first")
	api.history.Log("second")
	api.history.Log("third")

	tests := []struct {
		name  string
		path  string
		code  int
		count int
	}{
		{"all events", "/events", http.StatusOK, 3},
		{"limited", "/events?limit=2", http.StatusOK, 2},
		{"bad limit", "/events?limit=abc", http.StatusBadRequest, 0},
		{"negative limit", "/events?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.get(t, tt.path)
			if rec.Code != tt.code {
				t.Fatalf("Expected %d, got %d", tt.code, rec.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			body := decodeBody(t, rec)
			if body["total_events"] != float64(tt.count) {
				t.Errorf("Expected %d events, got %v", tt.count, body["total_events"])
			}
		})
	}

	body := decodeBody(t, api.get(t, "/events?limit=1"))
	events := body["events"].([]any)
	if msg := events[0].(map[string]any)["message"]; msg != "third" {
		t.Errorf("Expected newest event 'third', got %v", msg)
	}
}

func TestHTTPRootAndNotFound(t *testing.T) {
	api := newTestAPI(t)

	if rec := api.get(t, "/"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for root, got %d", rec.Code)
	}
	if rec := api.get(t, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestHTTPMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/peers", nil)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(api.metrics.HTTPErrors.WithLabelValues("POST", "/peers", "client_error")); got != 1 {
		t.Errorf("Expected 1 client error recorded, got %v", got)
	}
}

func TestHTTPMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.get(t, "/health")

	rec := api.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "udp_http_requests_total") {
		t.Errorf("Expected HTTP request counter in metrics output")
	}
}
