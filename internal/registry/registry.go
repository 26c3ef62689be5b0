package registry

import (
	"io"
	"log/slog"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash"

	"github.com/skypro1111/udp-peer-service/internal/eventlog"
)

// MaxShards bounds the number of independent lock domains
const MaxShards = 256

// PeerInfo is a point-in-time copy of a peer's record
type PeerInfo struct {
	Addr         netip.AddrPort `json:"addr"`
	RequestCount uint64         `json:"request_count"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastActivity time.Time      `json:"last_activity"`
}

// Activity is the outcome of recording one datagram
type Activity struct {
	RequestCount uint64
	New          bool
}

// peerRecord is owned by exactly one shard and never leaves its critical section
type peerRecord struct {
	requestCount uint64
	firstSeen    time.Time
	lastActivity time.Time
}

// shard is one mutual-exclusion domain. Presence in peers is what makes an
// address "known", so the known set and the records cannot drift apart.
type shard struct {
	mu    sync.Mutex
	peers map[netip.AddrPort]*peerRecord
}

// Registry tracks request counts and last activity per peer address.
//
// Every operation on a peer runs under the lock of the shard owning that
// address. Sinks are never called while a shard lock is held: events are
// collected inside the critical section and emitted after it is released.
type Registry struct {
	shards []*shard
	sink   eventlog.Sink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source used to stamp activity
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithSink sets the sink receiving connect and disconnect events
func WithSink(sink eventlog.Sink) Option {
	return func(r *Registry) {
		r.sink = sink
	}
}

// WithLogger sets the operational logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithShards splits the registry into n lock domains (clamped to 1..MaxShards)
func WithShards(n int) Option {
	return func(r *Registry) {
		if n < 1 {
			n = 1
		}
		if n > MaxShards {
			n = MaxShards
		}
		r.shards = newShards(n)
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		shards: newShards(1),
		sink:   eventlog.Discard,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{peers: make(map[netip.AddrPort]*peerRecord)}
	}
	return shards
}

// Normalize strips IPv4-in-IPv6 mapping so a peer has a single key
// regardless of the socket family it arrived on.
func Normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}

// shardFor returns the shard owning addr
func (r *Registry) shardFor(addr netip.AddrPort) *shard {
	if len(r.shards) == 1 {
		return r.shards[0]
	}

	var buf [64]byte
	h := xxhash.Sum64(addr.AppendTo(buf[:0]))
	return r.shards[h%uint64(len(r.shards))]
}

// RecordActivity registers one datagram from addr.
// An unknown address is added and announced with a connect event; the
// request count is incremented and last activity set to the current time.
func (r *Registry) RecordActivity(addr netip.AddrPort) Activity {
	addr = Normalize(addr)
	s := r.shardFor(addr)

	s.mu.Lock()
	now := r.now()
	rec, known := s.peers[addr]
	if !known {
		rec = &peerRecord{firstSeen: now, lastActivity: now}
		s.peers[addr] = rec
	}
	rec.requestCount++
	// Clock steps backwards must not move last activity back
	if now.After(rec.lastActivity) {
		rec.lastActivity = now
	}
	result := Activity{RequestCount: rec.requestCount, New: !known}
	s.mu.Unlock()

	if result.New {
		r.sink.Log(eventlog.ClientConnected(addr))
	}

	return result
}

// SweepInactive evicts every peer whose last activity is more than timeout
// before now, emitting a disconnect event for each. Each shard is enumerated
// and pruned within a single critical section, so activity recorded for a
// peer either lands before its shard's pass (and the peer survives) or after
// it (and the peer is registered afresh). The evicted peers are returned.
func (r *Registry) SweepInactive(now time.Time, timeout time.Duration) []PeerInfo {
	var evicted []PeerInfo

	for _, s := range r.shards {
		start := len(evicted)

		s.mu.Lock()
		for addr, rec := range s.peers {
			if now.Sub(rec.lastActivity) > timeout {
				evicted = append(evicted, rec.info(addr))
				delete(s.peers, addr)
			}
		}
		s.mu.Unlock()

		for _, p := range evicted[start:] {
			r.sink.Log(eventlog.ClientDisconnected(p.Addr))
		}
	}

	if len(evicted) > 0 {
		r.logger.Debug("Evicted inactive peers",
			slog.Int("evicted_count", len(evicted)),
			slog.Duration("timeout", timeout),
		)
	}

	return evicted
}

// Lookup returns a copy of the record for addr
func (r *Registry) Lookup(addr netip.AddrPort) (PeerInfo, bool) {
	addr = Normalize(addr)
	s := r.shardFor(addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.peers[addr]
	if !ok {
		return PeerInfo{}, false
	}
	return rec.info(addr), true
}

// Snapshot returns copies of all records ordered by address
func (r *Registry) Snapshot() []PeerInfo {
	var peers []PeerInfo

	for _, s := range r.shards {
		s.mu.Lock()
		for addr, rec := range s.peers {
			peers = append(peers, rec.info(addr))
		}
		s.mu.Unlock()
	}

	slices.SortFunc(peers, func(a, b PeerInfo) int {
		return a.Addr.Compare(b.Addr)
	})

	return peers
}

// Len returns the number of known peers
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.peers)
		s.mu.Unlock()
	}
	return n
}

// Shards returns the number of lock domains
func (r *Registry) Shards() int {
	return len(r.shards)
}

// Now returns the registry's current time
func (r *Registry) Now() time.Time {
	return r.now()
}

func (rec *peerRecord) info(addr netip.AddrPort) PeerInfo {
	return PeerInfo{
		Addr:         addr,
		RequestCount: rec.requestCount,
		FirstSeen:    rec.firstSeen,
		LastActivity: rec.lastActivity,
	}
}
