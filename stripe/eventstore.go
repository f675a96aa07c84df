package stripe

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// EventStore remembers the ids of the webhook events already handled, so
// that redeliveries are acknowledged without doing the work twice. Entries
// expire after the configured TTL and the oldest ones are evicted first when
// the store is full. Losing an entry is harmless: applying a session is
// idempotent on its own.
type EventStore struct {
	events *expirable.LRU[string, time.Time]
}

// NewEventStore creates an event store. Zero values select the defaults.
func NewEventStore(size int, ttl time.Duration) *EventStore {
	if size <= 0 {
		size = DefaultEventCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventStore{events: expirable.NewLRU[string, time.Time](size, nil, ttl)}
}

// EventExists checks if an event has already been processed
func (s *EventStore) EventExists(eventID string) bool {
	return s.events.Contains(eventID)
}

// MarkProcessed marks an event as processed
func (s *EventStore) MarkProcessed(eventID string) {
	s.events.Add(eventID, time.Now())
}

// Size returns the number of stored events
func (s *EventStore) Size() int {
	return s.events.Len()
}
