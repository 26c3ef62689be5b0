// Package server implements the UDP server that answers peer datagrams and tracks
// peer liveness, plus the HTTP API exposing peers, statistics, recent events and
// Prometheus metrics.
package server
