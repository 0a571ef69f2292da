package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/events"
	"github.com/astahiam/dtde/internal/shardctx"
)

// Transaction is one cross-shard unit of work: a set of participants
// enlisted in the order they first touched the transaction, and the
// state machine (None -> Active -> Preparing -> Prepared -> Committing
// -> Committed, with RollingBack/RolledBack and the in-doubt Failed
// branch off of Committing).
type Transaction struct {
	id       string
	options  entities.TransactionOptions
	deadline time.Time
	bus      *events.Bus

	mu           sync.Mutex
	state        entities.TransactionState
	participants map[string]*Participant
	order        []string
}

func newTransaction(opts entities.TransactionOptions, bus *events.Bus) *Transaction {
	// XS-{name}-{UTC timestamp}-{8 random bytes}; the name segment is
	// omitted when TransactionName is empty.
	id := "XS-"
	if opts.TransactionName != "" {
		id += opts.TransactionName + "-"
	}
	u := uuid.New()
	id += fmt.Sprintf("%s-%x", time.Now().UTC().Format("20060102T150405Z"), u[:8])

	t := &Transaction{
		id:           id,
		options:      opts,
		bus:          bus,
		state:        entities.StateActive,
		participants: make(map[string]*Participant),
	}
	if opts.Timeout > 0 {
		t.deadline = time.Now().Add(opts.Timeout)
	}
	t.publish(events.TransactionStarted, "", "transaction started")
	return t
}

// ID returns the transaction's identity.
func (t *Transaction) ID() string { return t.id }

// State returns the current position in the state machine.
func (t *Transaction) State() entities.TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ParticipatingShards returns every enlisted shard id in enlistment
// order.
func (t *Transaction) ParticipatingShards() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Transaction) expired() bool {
	return !t.deadline.IsZero() && time.Now().After(t.deadline)
}

// Enlist returns this transaction's Participant for shardID, creating
// it (and recording enlistment order) on first touch. handle and apply
// are only used the first time a shard is enlisted.
func (t *Transaction) Enlist(shardID string, handle *shardctx.Handle, apply Applier) (*Participant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return nil, &entities.InvalidState{TransactionID: t.id, State: string(t.state), Attempted: "enlist"}
	}
	if t.expired() {
		return nil, &entities.TransactionTimedOut{TransactionID: t.id, Timeout: t.options.Timeout.String()}
	}

	if p, ok := t.participants[shardID]; ok {
		return p, nil
	}
	p := newParticipant(t.id, shardID, handle, apply, t.bus)
	t.participants[shardID] = p
	t.order = append(t.order, shardID)
	t.publish(events.ParticipantEnlisted, shardID, "participant enlisted")
	return p, nil
}

// Prepare dispatches phase 1 to every enlisted participant in
// parallel and waits for all of them to vote before deciding —
// participants may finish out of order, but no decision is made until
// every vote is in. If any participant voted Abort, every participant
// that voted Prepared is rolled back so none is left holding locks
// after Prepare returns an error; the first aborted shard in
// enlistment order is reported.
func (t *Transaction) Prepare(ctx context.Context) error {
	t.mu.Lock()
	if t.state != entities.StateActive {
		state := t.state
		t.mu.Unlock()
		return &entities.InvalidState{TransactionID: t.id, State: string(state), Attempted: "prepare"}
	}
	if t.expired() {
		t.state = entities.StateFailed
		t.mu.Unlock()
		return &entities.TransactionTimedOut{TransactionID: t.id, Timeout: t.options.Timeout.String()}
	}
	t.state = entities.StatePreparing
	order := make([]string, len(t.order))
	copy(order, t.order)
	participants := make(map[string]*Participant, len(t.participants))
	for k, v := range t.participants {
		participants[k] = v
	}
	t.mu.Unlock()

	level := t.options.IsolationLevel.Normalize()
	votes := make([]entities.ParticipantVote, len(order))
	errs := make([]error, len(order))

	var wg sync.WaitGroup
	for i, shardID := range order {
		i, p := i, participants[shardID]
		wg.Add(1)
		go func() {
			defer wg.Done()
			vote, err := p.Prepare(ctx, level)
			votes[i] = vote
			errs[i] = err
		}()
	}
	wg.Wait()

	abortedIdx := -1
	for i, vote := range votes {
		if vote == entities.VoteAbort {
			abortedIdx = i
			break
		}
	}

	if abortedIdx >= 0 {
		for i, vote := range votes {
			if i != abortedIdx && vote == entities.VotePrepared {
				_ = participants[order[i]].Rollback(ctx)
			}
		}
		shardID := order[abortedIdx]
		t.mu.Lock()
		t.state = entities.StateRolledBack
		t.mu.Unlock()
		t.publish(events.TransactionRolledBack, shardID, "prepare aborted")
		return &entities.PrepareAborted{TransactionID: t.id, FailedShardID: shardID, UnderlyingErr: errs[abortedIdx]}
	}

	t.mu.Lock()
	t.state = entities.StatePrepared
	t.mu.Unlock()
	t.publish(events.TransactionPrepared, "", "all participants prepared")
	return nil
}

// Commit runs phase 2 across every enlisted participant in the same
// enlistment order Prepare used — bounding the in-doubt window to the
// time it takes to walk that fixed order rather than committing
// concurrently.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.state != entities.StatePrepared {
		state := t.state
		t.mu.Unlock()
		return &entities.InvalidState{TransactionID: t.id, State: string(state), Attempted: "commit"}
	}
	t.state = entities.StateCommitting
	order := make([]string, len(t.order))
	copy(order, t.order)
	participants := make(map[string]*Participant, len(t.participants))
	for k, v := range t.participants {
		participants[k] = v
	}
	t.mu.Unlock()

	var committed, failed []string
	for _, shardID := range order {
		p := participants[shardID]
		if err := p.Commit(ctx); err != nil {
			failed = append(failed, shardID)
			continue
		}
		committed = append(committed, shardID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(failed) > 0 {
		t.state = entities.StateFailed
		t.publish(events.TransactionRolledBack, "", "commit partially failed, transaction in-doubt")
		return &entities.CommitPartiallyFailed{TransactionID: t.id, CommittedShards: committed, FailedShards: failed}
	}
	t.state = entities.StateCommitted
	t.publish(events.TransactionCommitted, "", "committed")
	return nil
}

// Rollback discards every participant's transaction. Safe to call from
// StateActive (nothing has been prepared yet), StatePreparing/Prepared
// and idempotently from RolledBack itself.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.state == entities.StateRolledBack {
		t.mu.Unlock()
		return nil
	}
	if t.state.Terminal() {
		state := t.state
		t.mu.Unlock()
		return &entities.InvalidState{TransactionID: t.id, State: string(state), Attempted: "rollback"}
	}
	t.state = entities.StateRollingBack
	participants := make([]*Participant, 0, len(t.participants))
	for _, p := range t.participants {
		participants = append(participants, p)
	}
	t.mu.Unlock()

	var lastErr error
	for _, p := range participants {
		if err := p.Rollback(ctx); err != nil {
			lastErr = err
		}
	}

	t.mu.Lock()
	t.state = entities.StateRolledBack
	t.mu.Unlock()
	t.publish(events.TransactionRolledBack, "", "rolled back")
	return lastErr
}

func (t *Transaction) publish(kind events.Kind, shardID, msg string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.Event{
		Kind:          kind,
		TransactionID: t.id,
		ShardID:       shardID,
		Message:       msg,
	})
}
