package entities

import "time"

// VersionOpKind tags which VersionOperation variant is populated.
type VersionOpKind string

const (
	// VersionOpCreate inserts a new row; shard is chosen by routing
	// the new entity.
	VersionOpCreate VersionOpKind = "create"
	// VersionOpBump closes an existing row's validity on its original
	// shard and inserts a successor on the new-valid-from's shard;
	// the two MAY differ.
	VersionOpBump VersionOpKind = "version_bump"
	// VersionOpClose invalidates a row without inserting a successor.
	VersionOpClose VersionOpKind = "close"
)

// VersionOperation is a unit the transaction layer executes against
// one logical row of a temporally versioned entity.
type VersionOperation struct {
	Kind VersionOpKind

	EntityType   string
	PrimaryKey   any

	// OriginalShardKey/NewShardKey are the shard-key values used to
	// route the "close" side and the "insert successor" side
	// respectively. For Create only NewShardKey is meaningful; for
	// Close only OriginalShardKey is meaningful.
	OriginalShardKey any
	NewShardKey      any

	ValidFrom time.Time
	ValidTo   time.Time
}
