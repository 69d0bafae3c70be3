package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/planloop/internal/review"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New(nil)

	sub := b.Subscribe("review-1")
	defer sub.Cancel()

	b.Publish("review-1", review.StatusChangedEvent{
		Status:         review.StatusApproved,
		PreviousStatus: review.StatusOpen,
	})

	select {
	case ev := <-sub.C:
		status, ok := ev.(review.StatusChangedEvent)
		require.True(t, ok)
		require.Equal(t, review.StatusApproved, status.Status)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_TopicIsolation(t *testing.T) {
	b := New(nil)

	sub := b.Subscribe("review-1")
	defer sub.Cancel()

	b.Publish("review-2", review.HeartbeatEvent{Timestamp: 1})

	select {
	case ev := <-sub.C:
		t.Fatalf("received event for other topic: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PublicationOrder(t *testing.T) {
	b := New(nil)

	sub := b.Subscribe("review-1")
	defer sub.Cancel()

	for i := 0; i < 5; i++ {
		b.Publish("review-1", review.HeartbeatEvent{
			Timestamp: int64(i),
		})
	}

	for i := 0; i < 5; i++ {
		ev := <-sub.C
		require.Equal(t, int64(i),
			ev.(review.HeartbeatEvent).Timestamp)
	}
}

func TestBus_FanOut(t *testing.T) {
	b := New(nil)

	subs := make([]*Subscription, 3)
	for i := range subs {
		subs[i] = b.Subscribe("review-1")
		defer subs[i].Cancel()
	}
	require.Equal(t, 3, b.SubscriberCount("review-1"))

	b.Publish("review-1", review.HeartbeatEvent{Timestamp: 7})

	for _, sub := range subs {
		ev := <-sub.C
		require.Equal(t, int64(7),
			ev.(review.HeartbeatEvent).Timestamp)
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	b := New(nil)

	sub := b.Subscribe("review-1")
	sub.Cancel()

	_, ok := <-sub.C
	require.False(t, ok)
	require.Zero(t, b.SubscriberCount("review-1"))

	// Cancel is idempotent.
	sub.Cancel()

	// Publishing to a topic with no subscribers is a no-op.
	b.Publish("review-1", review.HeartbeatEvent{})
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New(nil)

	sub := b.Subscribe("review-1")
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the buffer without draining.
		for i := 0; i < defaultBuffer*2; i++ {
			b.Publish("review-1", review.HeartbeatEvent{
				Timestamp: int64(i),
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// The buffered prefix is still delivered in order.
	for i := 0; i < defaultBuffer; i++ {
		ev := <-sub.C
		require.Equal(t, int64(i),
			ev.(review.HeartbeatEvent).Timestamp,
			fmt.Sprintf("event %d out of order", i))
	}
}
