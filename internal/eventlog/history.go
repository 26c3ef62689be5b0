package eventlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultHistorySize is the number of events kept when no size is configured
const DefaultHistorySize = 256

// Event is a single recorded server event
type Event struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// History keeps the most recent events in memory for the monitoring API.
// Entries are only ever added, so the cache's recency order is insertion order
// and the oldest event is evicted first.
type History struct {
	cache *lru.Cache
	ids   *snowflake.Node
	now   func() time.Time

	// Serializes ID generation with insertion so Keys() order matches ID order
	mu sync.Mutex
}

// NewHistory creates a history holding at most size events
func NewHistory(size int) (*History, error) {
	if size <= 0 {
		size = DefaultHistorySize
	}

	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create event cache: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create event id generator: %w", err)
	}

	return &History{
		cache: cache,
		ids:   node,
		now:   time.Now,
	}, nil
}

// Log implements Sink
func (h *History) Log(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.ids.Generate().Int64()
	h.cache.Add(id, Event{
		ID:      id,
		Time:    h.now(),
		Message: event,
	})
}

// Recent returns up to limit events, oldest first.
// A limit <= 0 returns everything retained.
func (h *History) Recent(limit int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := h.cache.Keys()
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	events := make([]Event, 0, len(keys))
	for _, key := range keys {
		// Peek keeps recency order untouched
		if v, ok := h.cache.Peek(key); ok {
			events = append(events, v.(Event))
		}
	}

	return events
}

// Len returns the number of retained events
func (h *History) Len() int {
	return h.cache.Len()
}
