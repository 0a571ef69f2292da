package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishFansOutToAllObservers(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var seen []Kind
	bus.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Kind)
	})
	bus.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Kind)
	})

	bus.Publish(Event{Kind: TransactionStarted})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{TransactionStarted, TransactionStarted}, seen)
}

func TestPublishIsolatesPanickingObserver(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { called = true })

	assert.NotPanics(t, func() {
		bus.Publish(Event{Kind: ShardNeeded})
	})
	assert.True(t, called, "a panicking observer must not prevent its siblings from running")
}

func TestPublishStampsTimestampWhenZero(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Subscribe(func(ev Event) { got = ev })
	bus.Publish(Event{Kind: QueryPlanned})
	assert.False(t, got.At.IsZero())
}
