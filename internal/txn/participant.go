// Package txn implements a two-phase-commit transaction coordinator
// and participant: a real prepare/vote phase followed by an ordered
// commit phase. Locks are held by keeping each participant's database
// transaction open across both phases — prepared but uncommitted —
// which is the same guarantee XA PREPARE gives without requiring a
// driver that speaks it.
package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/events"
	"github.com/astahiam/dtde/internal/shardctx"
)

// Applier executes one queued PendingOp against an open shard
// transaction. PendingCustom ops instead invoke op.Custom directly with
// the *shardctx.Handle, so Applier only needs to cover Add/Update/Remove.
type Applier func(ctx context.Context, tx *sqlx.Tx, op entities.PendingOp) error

// Participant is one shard's stake in a cross-shard transaction: a
// buffered operation queue, and — from Prepare onward — an open
// database transaction holding that shard's locks.
type Participant struct {
	id      string
	shardID string
	handle  *shardctx.Handle
	apply   Applier
	bus     *events.Bus
	txID    string

	mu   sync.Mutex
	ops  []entities.PendingOp
	tx   *sqlx.Tx
	vote entities.ParticipantVote
}

func newParticipant(txID, shardID string, handle *shardctx.Handle, apply Applier, bus *events.Bus) *Participant {
	return &Participant{
		id:      fmt.Sprintf("%s/%s", txID, shardID),
		shardID: shardID,
		handle:  handle,
		apply:   apply,
		bus:     bus,
		txID:    txID,
		vote:    entities.VotePending,
	}
}

// ID returns this participant's identity, stable for the transaction's
// lifetime.
func (p *Participant) ID() string { return p.id }

// ShardID returns the shard this participant represents.
func (p *Participant) ShardID() string { return p.shardID }

// Enlist queues op to run at Prepare time. Safe to call repeatedly
// before Prepare; queuing after Prepare has been called is rejected.
func (p *Participant) Enlist(op entities.PendingOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vote != entities.VotePending {
		return &entities.InvalidState{TransactionID: p.txID, State: string(p.vote), Attempted: "enlist"}
	}
	p.ops = append(p.ops, op)
	return nil
}

// PendingCount reports how many operations are queued.
func (p *Participant) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}

// Prepare drains the queued operations against a freshly opened shard
// transaction at level, votes, and — unless the queue was empty —
// leaves that transaction open (holding locks) until Commit or
// Rollback is called. An empty queue votes ReadOnly and never opens a
// transaction, a fast path for participants that turn out not to
// have touched their shard.
func (p *Participant) Prepare(ctx context.Context, level entities.IsolationLevel) (entities.ParticipantVote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ops) == 0 {
		p.vote = entities.VoteReadOnly
		p.publish(events.ParticipantVoted, "read-only, no operations queued")
		return p.vote, nil
	}

	tx, err := p.handle.BeginTx(ctx, level)
	if err != nil {
		p.vote = entities.VoteAbort
		p.publish(events.ParticipantVoted, "failed to open shard transaction: "+err.Error())
		return p.vote, err
	}
	p.tx = tx

	for _, op := range p.ops {
		if op.Kind == entities.PendingCustom {
			if op.Custom == nil {
				continue
			}
			if err := op.Custom(p.handle); err != nil {
				p.abortOpenTx()
				p.vote = entities.VoteAbort
				p.publish(events.ParticipantVoted, "operation failed: "+err.Error())
				return p.vote, err
			}
			continue
		}
		if p.apply == nil {
			p.abortOpenTx()
			p.vote = entities.VoteAbort
			err := fmt.Errorf("participant %s: no applier configured for op kind %s", p.id, op.Kind)
			p.publish(events.ParticipantVoted, err.Error())
			return p.vote, err
		}
		if err := p.apply(ctx, p.tx, op); err != nil {
			p.abortOpenTx()
			p.vote = entities.VoteAbort
			p.publish(events.ParticipantVoted, "apply failed: "+err.Error())
			return p.vote, err
		}
	}

	p.vote = entities.VotePrepared
	p.publish(events.ParticipantVoted, "prepared")
	return p.vote, nil
}

// abortOpenTx rolls back p.tx if Prepare opened one, swallowing the
// rollback error since the caller already has the operation error to
// report.
func (p *Participant) abortOpenTx() {
	if p.tx != nil {
		_ = p.tx.Rollback()
		p.tx = nil
	}
}

// Commit finalizes this participant's transaction. A read-only
// participant (no transaction was ever opened) is a no-op. Commit
// tolerates being called repeatedly after an equivalent prior
// outcome, so duplicate commit/rollback calls are harmless.
func (p *Participant) Commit(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vote == entities.VoteReadOnly || p.tx == nil {
		return nil
	}
	err := p.tx.Commit()
	p.tx = nil
	if err != nil {
		p.publish(events.ParticipantCommitted, "commit failed: "+err.Error())
		return err
	}
	p.publish(events.ParticipantCommitted, "committed")
	return nil
}

// Rollback discards this participant's transaction, if one is open.
// Safe to call multiple times and safe to call on a participant that
// never opened a transaction.
func (p *Participant) Rollback(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tx == nil {
		p.publish(events.ParticipantRolledBack, "no transaction to roll back")
		return nil
	}
	err := p.tx.Rollback()
	p.tx = nil
	if err != nil {
		p.publish(events.ParticipantRolledBack, "rollback failed: "+err.Error())
		return err
	}
	p.publish(events.ParticipantRolledBack, "rolled back")
	return nil
}

func (p *Participant) publish(kind events.Kind, msg string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{
		Kind:          kind,
		TransactionID: p.txID,
		ShardID:       p.shardID,
		Message:       msg,
	})
}
