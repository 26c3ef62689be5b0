package eventlog

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// TimestampLayout is the layout used for presentation-style event lines
const TimestampLayout = "2006-01-02 15:04:05"

// Sink receives human-readable server events
type Sink interface {
	Log(event string)
}

// SinkFunc adapts a plain function to the Sink interface
type SinkFunc func(event string)

// Log calls f(event)
func (f SinkFunc) Log(event string) {
	f(event)
}

// Discard drops every event
var Discard Sink = SinkFunc(func(string) {})

// Multi fans an event out to every sink in order
func Multi(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}

	return SinkFunc(func(event string) {
		for _, s := range filtered {
			s.Log(event)
		}
	})
}

// SlogSink forwards events to a structured logger
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing each event at Info level
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Log implements Sink
func (s *SlogSink) Log(event string) {
	s.logger.Info("Server event", slog.String("event", event))
}

// WriterSink writes "{timestamp}: {event}" lines to an io.Writer.
// Writes are serialized so concurrent callers never interleave lines.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriterSink creates a line-oriented sink on w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, now: time.Now}
}

// Log implements Sink
func (s *WriterSink) Log(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A failing writer must not affect the server
	_, _ = fmt.Fprintf(s.w, "%s: %s\n", s.now().Format(TimestampLayout), event)
}
