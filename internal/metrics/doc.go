// Package metrics exposes Prometheus counters, gauges and histograms for
// datagram traffic, peer lifecycle and the HTTP monitoring API.
package metrics
