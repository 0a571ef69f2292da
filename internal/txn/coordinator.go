package txn

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/events"
)

// ctxKey is an unexported type so only this package can stamp the
// ambient transaction into a context.Context — Go's idiomatic stand-in
// for a thread-local current_transaction().
type ctxKey struct{}

// FromContext returns the ambient transaction carried by ctx, if any.
func FromContext(ctx context.Context) (*Transaction, bool) {
	t, ok := ctx.Value(ctxKey{}).(*Transaction)
	return t, ok
}

func withTransaction(ctx context.Context, t *Transaction) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// Coordinator begins, tracks and retries cross-shard transactions,
// running an actual two-phase prepare/commit protocol across every
// enlisted participant rather than committing each shard's *sql.Tx in
// one pass.
type Coordinator struct {
	bus *events.Bus

	mu   sync.RWMutex
	byID map[string]*Transaction
}

// NewCoordinator returns a Coordinator publishing to bus (which may be
// nil).
func NewCoordinator(bus *events.Bus) *Coordinator {
	return &Coordinator{bus: bus, byID: make(map[string]*Transaction)}
}

// Begin starts a new transaction and returns it along with a context
// carrying it ambiently. Beginning a transaction while ctx already
// carries one is rejected with NestedTransactionNotSupported —
// transparent nesting is the session package's job, not the
// coordinator's.
func (c *Coordinator) Begin(ctx context.Context, opts entities.TransactionOptions) (*Transaction, context.Context, error) {
	if existing, ok := FromContext(ctx); ok {
		return nil, ctx, &entities.NestedTransactionNotSupported{ActiveTransactionID: existing.id}
	}
	if opts.Timeout == 0 {
		opts = entities.DefaultTransactionOptions()
	}
	t := newTransaction(opts, c.bus)

	c.mu.Lock()
	c.byID[t.id] = t
	c.mu.Unlock()

	return t, withTransaction(ctx, t), nil
}

// Get looks up a still-tracked transaction by id.
func (c *Coordinator) Get(id string) (*Transaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	return t, ok
}

// Cleanup stops tracking a finished transaction.
func (c *Coordinator) Cleanup(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}

// ExecuteInTransaction begins a transaction, runs fn with it ambiently
// available via the returned context, and commits on success or rolls
// back on failure, retrying with backoff around transient
// infrastructure failures (timeout, deadlock, dropped connection).
// A partially failed commit is never retried, nor is a prepare abort
// unless the participant error behind it is itself transient.
func (c *Coordinator) ExecuteInTransaction(ctx context.Context, opts entities.TransactionOptions, fn func(ctx context.Context, t *Transaction) error) error {
	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = entities.DefaultRetryPolicy()
	}
	if !policy.Enabled {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffDelay(policy, attempt))
		}

		err := c.runOnce(ctx, opts, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		log.Printf("txn: attempt %d/%d failed, retrying: %v", attempt+1, policy.MaxAttempts, err)
	}
	return fmt.Errorf("txn: exhausted %d attempts: %w", policy.MaxAttempts, lastErr)
}

func (c *Coordinator) runOnce(ctx context.Context, opts entities.TransactionOptions, fn func(ctx context.Context, t *Transaction) error) error {
	t, txCtx, err := c.Begin(ctx, opts)
	if err != nil {
		return err
	}
	defer c.Cleanup(t.id)

	if err := fn(txCtx, t); err != nil {
		_ = t.Rollback(txCtx)
		return err
	}

	if err := t.Prepare(txCtx); err != nil {
		return err
	}
	return t.Commit(txCtx)
}

// retryable reports whether a failure is worth another attempt. Only
// transient, infrastructure-level errors qualify, whether fn returned
// them or a participant hit them during prepare (surfacing as a
// PrepareAborted wrapping the cause): deadline/context timeouts,
// network-level timeouts and connection failures, a dropped driver
// connection, and the Postgres deadlock and serialization-failure
// classes. A prepare abort with a non-transient cause means a
// participant deliberately rejected the write (e.g. a constraint
// violation) and a partially failed commit leaves the transaction
// in-doubt — both are non-transient outcomes and must never be retried
// blindly, since replaying phase 2 against an unknown partial state
// risks double-applying writes that already landed on some shards.
func retryable(err error) bool {
	var partial *entities.CommitPartiallyFailed
	if errors.As(err, &partial) {
		return false
	}
	var aborted *entities.PrepareAborted
	if errors.As(err, &aborted) {
		return aborted.UnderlyingErr != nil && retryable(aborted.UnderlyingErr)
	}

	var timedOut *entities.TransactionTimedOut
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &timedOut) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08": // connection exception
			return true
		}
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}

	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe")
}

func backoffDelay(policy entities.RetryPolicy, attempt int) time.Duration {
	if !policy.UseExponentialBackoff {
		return policy.Delay
	}
	d := time.Duration(float64(policy.Delay) * math.Pow(2, float64(attempt-1)))
	if policy.MaxDelay > 0 && d > policy.MaxDelay {
		return policy.MaxDelay
	}
	return d
}
