package registry

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultSweepInterval is the fixed cadence of inactivity sweeps
	DefaultSweepInterval = 1 * time.Second
	// DefaultInactiveTimeout is how long a silent peer is kept
	DefaultInactiveTimeout = 10 * time.Minute
)

// SweepFunc observes the result of one sweep pass
type SweepFunc func(evicted []PeerInfo, elapsed time.Duration)

// Sweeper periodically evicts inactive peers from a Registry
type Sweeper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	// OnSweep, when set, is called after every pass
	OnSweep SweepFunc
}

// NewSweeper creates a sweeper; non-positive durations fall back to the defaults
func NewSweeper(reg *Registry, interval, timeout time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultInactiveTimeout
	}

	return &Sweeper{
		registry: reg,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Interval returns the sweep period
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Timeout returns the inactivity threshold
func (s *Sweeper) Timeout() time.Duration {
	return s.timeout
}

// Run sweeps on every tick until ctx is cancelled. It returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Inactivity sweeper started",
		slog.Duration("timeout", s.timeout),
		slog.Duration("check_interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Inactivity sweeper stopping")
			return nil

		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep performs a single pass using the registry clock
func (s *Sweeper) Sweep() []PeerInfo {
	start := time.Now()
	evicted := s.registry.SweepInactive(s.registry.Now(), s.timeout)

	if s.OnSweep != nil {
		s.OnSweep(evicted, time.Since(start))
	}

	return evicted
}
