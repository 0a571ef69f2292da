// Package events implements an observable-but-non-control-flow event
// bus: transaction lifecycle, participant votes, query
// planning/completion and save-interceptor decisions are all
// published here. Observers never affect outcome — a panicking
// observer is isolated from the caller; observers run synchronously,
// so a slow one delays Publish.
package events

import (
	"log"
	"sync"
	"time"
)

// Kind names one observable event type.
type Kind string

const (
	TransactionStarted     Kind = "transaction_started"
	TransactionPrepared    Kind = "transaction_prepared"
	TransactionCommitted   Kind = "transaction_committed"
	TransactionRolledBack  Kind = "transaction_rolled_back"
	TransactionTimedOut    Kind = "transaction_timed_out"
	ParticipantEnlisted    Kind = "participant_enlisted"
	ParticipantVoted       Kind = "participant_voted"
	ParticipantCommitted   Kind = "participant_committed"
	ParticipantRolledBack  Kind = "participant_rolled_back"
	QueryPlanned           Kind = "query_planned"
	QueryShardCompleted    Kind = "query_shard_completed"
	SaveAutoPromoted       Kind = "save_auto_promoted_to_cross_shard"
	SaveWithoutCoordinator Kind = "save_without_coordinator_warning"
	ShardNeeded            Kind = "shard_needed"
)

// Event is a flat observability record: an operation name, the id it
// concerns, a status/payload blob and a timestamp.
type Event struct {
	Kind          Kind
	TransactionID string
	ShardID       string
	EntityType    string
	Status        string
	Message       string
	Fields        map[string]any
	At            time.Time
}

// Observer receives every published event. Implementations must not
// block for long; the bus invokes observers synchronously but isolates
// panics so an observer can never affect control flow.
type Observer func(Event)

// Bus fans events out to a list of registered observers.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers an observer and returns nothing to unsubscribe
// with — the bus is expected to live for the lifetime of the engine.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish sends ev to every observer, recovering from panics so one
// bad observer cannot affect the caller or its siblings.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		func(o Observer) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("events: observer panicked: %v", r)
				}
			}()
			o(ev)
		}(o)
	}
}

// LoggingObserver narrates every event through the standard logger, one
// log.Printf per transition.
func LoggingObserver(ev Event) {
	log.Printf("event=%s txn=%s shard=%s entity=%s status=%s msg=%s",
		ev.Kind, ev.TransactionID, ev.ShardID, ev.EntityType, ev.Status, ev.Message)
}
