// Package eventlog defines the sink that receives human-readable server events
// (start, connect, response, disconnect, errors) and the sinks shipped with the
// service: structured logging, timestamped console lines and an in-memory history.
package eventlog
