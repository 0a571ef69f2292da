// Package shardctx implements the per-shard execution handle factory:
// turning a registry.ShardDescriptor's connection descriptor into a
// live database handle (lib/pq DSN connection, pool tuning,
// ping-on-open) built on jmoiron/sqlx so table-rewritten statements
// can use its named-parameter support, and rewriting an entity's table
// name according to the shard's StorageMode.
package shardctx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/astahiam/dtde/internal/entities"
	"github.com/astahiam/dtde/internal/registry"
)

// Handle is the per-shard execution surface the query executor and
// transaction participant act through. It never opens a transaction on
// construction — handle creation is a cheap, side-effect-free lookup,
// separate from BeginTx.
type Handle struct {
	ShardID    string
	descriptor entities.ShardDescriptor
	db         *sqlx.DB
}

// TableName rewrites entityType's default table name for this shard's
// StorageMode: StorageManualTable and StorageTablesInOneDatabase use
// the descriptor's override/suffix, StorageSeparateDatabase leaves the
// name untouched since each shard is already an isolated database.
func (h *Handle) TableName(entityType string) string {
	switch h.descriptor.StorageMode {
	case entities.StorageManualTable:
		if h.descriptor.TableNameOverride != "" {
			return h.descriptor.TableNameOverride
		}
		return entityType
	case entities.StorageTablesInOneDatabase:
		suffix := h.descriptor.TableNameOverride
		if suffix == "" {
			suffix = strings.ToLower(h.descriptor.ShardID)
		}
		return fmt.Sprintf("%s_%s", entityType, suffix)
	default:
		return entityType
	}
}

// DB exposes the underlying *sqlx.DB for read-only (non-transactional)
// statements such as the parallel query executor's scatter-gather.
func (h *Handle) DB() *sqlx.DB { return h.db }

// BeginTx opens a transaction on this shard at the requested isolation
// level, normalizing ReadUncommitted up to ReadCommitted.
func (h *Handle) BeginTx(ctx context.Context, level entities.IsolationLevel) (*sqlx.Tx, error) {
	return h.db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolationToSQL(level.Normalize())})
}

// Ping verifies this shard's connection is alive.
func (h *Handle) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Factory builds and caches one Handle per registered shard, modeled
// on ShardManager.NewShardManager but connecting lazily on first Open
// and reading connection descriptors from the registry instead of a
// fixed ShardConfig.
type Factory struct {
	reg *registry.Registry

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewFactory returns a Factory over reg. Connections are opened lazily,
// one per shard, the first time Open is called for that shard id.
func NewFactory(reg *registry.Registry) *Factory {
	return &Factory{reg: reg, handles: make(map[string]*Handle)}
}

// Open returns the Handle for shardID, connecting lazily and caching
// the result. The returned handle never has an open transaction.
func (f *Factory) Open(ctx context.Context, shardID string) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.handles[shardID]; ok {
		return h, nil
	}

	d, ok := f.reg.Shard(shardID)
	if !ok {
		return nil, fmt.Errorf("shardctx: shard %q is not registered", shardID)
	}

	db, err := sqlx.Open("postgres", d.ConnectionDescriptor)
	if err != nil {
		return nil, fmt.Errorf("shardctx: opening shard %q: %w", shardID, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("shardctx: pinging shard %q: %w", shardID, err)
	}

	h := &Handle{ShardID: shardID, descriptor: d, db: db}
	f.handles[shardID] = h
	return h, nil
}

// Register injects an already-open *sqlx.DB as the handle for shardID,
// skipping Open's dial-and-ping — the hook tests and the demo command
// use to back a shard with a DATA-DOG/go-sqlmock connection instead of
// a real Postgres instance.
func (f *Factory) Register(shardID string, db *sqlx.DB) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.reg.Shard(shardID)
	if !ok {
		return nil, fmt.Errorf("shardctx: shard %q is not registered", shardID)
	}
	h := &Handle{ShardID: shardID, descriptor: d, db: db}
	f.handles[shardID] = h
	return h, nil
}

// AllOpen returns every handle opened so far, in no particular order.
func (f *Factory) AllOpen() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Handle, 0, len(f.handles))
	for _, h := range f.handles {
		out = append(out, h)
	}
	return out
}

// Close closes every handle this factory has opened.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lastErr error
	for id, h := range f.handles {
		if err := h.db.Close(); err != nil {
			lastErr = fmt.Errorf("shardctx: closing shard %q: %w", id, err)
		}
	}
	return lastErr
}

// isolationToSQL maps the engine's isolation vocabulary onto
// database/sql's; Snapshot has no direct driver equivalent in
// database/sql, so it is mapped to the closest available level,
// Serializable.
func isolationToSQL(level entities.IsolationLevel) sql.IsolationLevel {
	switch level {
	case entities.ReadCommitted:
		return sql.LevelReadCommitted
	case entities.RepeatableRead:
		return sql.LevelRepeatableRead
	case entities.Serializable, entities.Snapshot:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}
