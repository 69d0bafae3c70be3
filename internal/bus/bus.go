// Package bus is the in-process publish/subscribe hub for review
// events. Topics are review IDs; there is no persistence and no replay.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/roasbeef/planloop/internal/review"
)

// defaultBuffer is the per-subscription channel depth. A subscriber
// that falls this far behind starts losing events; streaming clients
// recover through the snapshot frame on reconnect.
const defaultBuffer = 16

// Subscription is one subscriber's handle on a review topic. Events
// arrive on C in publication order. Cancel is idempotent and closes C.
type Subscription struct {
	// C delivers the events.
	C <-chan review.Event

	id       string
	reviewID string
	bus      *Bus
	once     sync.Once
}

// Cancel detaches the subscription from the bus and closes C.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s.reviewID, s.id)
	})
}

type subscriber struct {
	id string
	ch chan review.Event
}

// Bus fans review events out to per-review subscriber lists. Sends
// never block the publisher: a full subscriber channel drops the event.
type Bus struct {
	log *slog.Logger

	mu     sync.Mutex
	topics map[string][]subscriber
}

// Compile-time check that the bus satisfies the engine's sink contract.
var _ review.EventSink = (*Bus)(nil)

// New creates an event bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}

	return &Bus{
		log:    log.With("subsys", "bus"),
		topics: make(map[string][]subscriber),
	}
}

// Subscribe registers a new subscriber on one review topic.
func (b *Bus) Subscribe(reviewID string) *Subscription {
	sub := subscriber{
		id: uuid.New().String(),
		ch: make(chan review.Event, defaultBuffer),
	}

	b.mu.Lock()
	b.topics[reviewID] = append(b.topics[reviewID], sub)
	b.mu.Unlock()

	return &Subscription{
		C:        sub.ch,
		id:       sub.id,
		reviewID: reviewID,
		bus:      b,
	}
}

// Publish delivers an event to every subscriber of the review topic.
// Within one topic, events reach each subscriber in publication order.
func (b *Bus) Publish(reviewID string, ev review.Event) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.topics[reviewID]))
	copy(subs, b.topics[reviewID])
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow subscriber: drop rather than block the engine.
			b.log.Warn("dropping event for slow subscriber",
				"review_id", reviewID,
				"event", ev.EventType())
		}
	}
}

// SubscriberCount reports the number of live subscriptions on one
// topic.
func (b *Bus) SubscriberCount(reviewID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.topics[reviewID])
}

// remove detaches a subscriber and closes its channel.
func (b *Bus) remove(reviewID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[reviewID]
	for i, sub := range subs {
		if sub.id != subID {
			continue
		}

		b.topics[reviewID] = append(subs[:i], subs[i+1:]...)
		if len(b.topics[reviewID]) == 0 {
			delete(b.topics, reviewID)
		}

		close(sub.ch)
		return
	}
}
