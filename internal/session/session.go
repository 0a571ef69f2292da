// Package session implements the transparent session: the bridge
// between an application-started explicit transaction on the ORM's
// connection and a coordinator transaction, kept alive for the
// lifetime of that scope. Unlike a one-shot begin/run/commit-or-
// rollback helper, a transparent session splits those steps apart
// since its scope is opened and closed by the application, not by one
// function call.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/interceptor"
	"github.com/astahiam/dtde/internal/registry"
	"github.com/astahiam/dtde/internal/router"
	"github.com/astahiam/dtde/internal/shardctx"
	"github.com/astahiam/dtde/internal/txn"
)

// Session bridges one application-level transaction scope to a single
// coordinator transaction. Exactly one Session is active per
// ORM-context-instance; the caller is responsible for not
// constructing a second one over the same scope.
type Session struct {
	reg     *registry.Registry
	rt      *router.Router
	coord   *txn.Coordinator
	factory *shardctx.Factory
	apply   txn.Applier

	mu        sync.Mutex
	tx        *txn.Transaction
	ctx       context.Context
	committed bool
}

// New builds a Session over the engine's shared components. apply is
// the same ORM-supplied operation applier the interceptor uses, so
// entries pushed through a session land through identical SQL
// generation as entries promoted by the interceptor's implicit path.
func New(reg *registry.Registry, rt *router.Router, coord *txn.Coordinator, factory *shardctx.Factory, apply txn.Applier) *Session {
	return &Session{reg: reg, rt: rt, coord: coord, factory: factory, apply: apply}
}

// Begin starts the coordinator transaction backing this scope, mapping
// the requested isolation level per §4.6. Calling Begin twice on the
// same Session is an error — that is the "exactly one session per
// scope" invariant surfacing as a programmer error.
func (s *Session) Begin(ctx context.Context, level entities.IsolationLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return fmt.Errorf("session: already active for transaction %s", s.tx.ID())
	}

	opts := entities.DefaultTransactionOptions()
	opts.IsolationLevel = level
	t, txCtx, err := s.coord.Begin(ctx, opts)
	if err != nil {
		return err
	}
	s.tx = t
	s.ctx = txCtx
	s.committed = false
	return nil
}

// Context returns the ambient context callers should use for any work
// performed inside this session's scope, so nested calls observe the
// active transaction via txn.FromContext.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Save routes tracker's pending entries via the router and pushes them
// onto this session's existing participants — never a fresh
// transaction — then clears tracker.
func (s *Session) Save(tracker interceptor.ChangeTracker) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return 0, fmt.Errorf("session: not active; call Begin first")
	}

	entries := tracker.Entries()
	if len(entries) == 0 {
		return 0, nil
	}

	for _, e := range entries {
		shardID, err := s.targetShard(e)
		if err != nil {
			return 0, err
		}
		handle, err := s.factory.Open(s.ctx, shardID)
		if err != nil {
			return 0, err
		}
		participant, err := s.tx.Enlist(shardID, handle, s.apply)
		if err != nil {
			return 0, err
		}
		op := entities.PendingOp{Kind: changeStateToOpKind(e.State), Entity: e.Entity}
		if err := participant.Enlist(op); err != nil {
			return 0, err
		}
	}

	tracker.Clear()
	return len(entries), nil
}

func (s *Session) targetShard(e entities.ChangeEntry) (string, error) {
	if _, configured := s.reg.EntityMetadata(e.EntityType); !configured {
		d, ok := s.reg.DefaultShard()
		if !ok {
			return "", fmt.Errorf("session: no default shard configured for unrouted entities")
		}
		return d.ShardID, nil
	}
	return s.rt.TargetShard(e.EntityType, e.Entity)
}

// Commit invokes coordinator prepare+commit for this session's
// transaction.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return fmt.Errorf("session: not active")
	}
	if err := s.tx.Prepare(s.ctx); err != nil {
		return err
	}
	if err := s.tx.Commit(s.ctx); err != nil {
		return err
	}
	s.committed = true
	s.coord.Cleanup(s.tx.ID())
	return nil
}

// Rollback invokes coordinator rollback for this session's transaction.
// Safe to call after a failed Commit.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(s.ctx)
	s.coord.Cleanup(s.tx.ID())
	return err
}

// Dispose ends the scope without an explicit commit having happened,
// rolling back whatever was pending. A no-op if Commit already
// completed successfully.
func (s *Session) Dispose() error {
	s.mu.Lock()
	committed := s.committed
	s.mu.Unlock()
	if committed {
		return nil
	}
	return s.Rollback()
}

func changeStateToOpKind(st entities.ChangeState) entities.PendingOpKind {
	switch st {
	case entities.ChangeAdded:
		return entities.PendingAdd
	case entities.ChangeModified:
		return entities.PendingUpdate
	case entities.ChangeDeleted:
		return entities.PendingRemove
	default:
		return entities.PendingAdd
	}
}
