package entities

// KeySelector extracts the shard-key value from an entity instance.
// Implementations are supplied either programmatically (a closure
// captured during ORM model-building) or generated from a property
// name when the configuration comes from the external document (see
// config.BuildRegistry / sharding.FieldSelector).
type KeySelector func(entity any) (any, error)

// DateSelector extracts the shard date from an entity instance.
type DateSelector func(entity any) (any, error)

// StrategyKind tags which EntityShardingConfig variant is populated.
type StrategyKind string

const (
	StrategyProperty   StrategyKind = "property"
	StrategyHash       StrategyKind = "hash"
	StrategyRange      StrategyKind = "range"
	StrategyDate       StrategyKind = "date"
	StrategyAlphabet   StrategyKind = "alphabet"
	StrategyRowCount   StrategyKind = "row_count"
	StrategyExpression StrategyKind = "expression"
	StrategyManual     StrategyKind = "manual"
)

// DateInterval is the bucket granularity for the Date strategy.
type DateInterval string

const (
	IntervalYear    DateInterval = "year"
	IntervalQuarter DateInterval = "quarter"
	IntervalMonth   DateInterval = "month"
	IntervalWeek    DateInterval = "week"
	IntervalDay     DateInterval = "day"
	IntervalHour    DateInterval = "hour"
)

// PropertyConfig maps exact shard-key values to shard ids via table
// lookup. String comparisons are case-insensitive.
type PropertyConfig struct {
	KeyProperty string
	Selector    KeySelector
	ValueToShard map[string]string
	DefaultShard string
}

// HashConfig routes by a stable, non-cryptographic hash of the key
// modulo a fixed shard count decided at registry construction.
type HashConfig struct {
	KeyProperty string
	Selector    KeySelector
	ShardCount  int
	// ShardIDs, if set, maps hash bucket index -> shard id; when nil
	// the strategy assumes shard ids are simply "0".."ShardCount-1".
	ShardIDs []string
}

// RangeEntry binds one [Low, High] key range to a shard.
type RangeEntry struct {
	Range   KeyRange
	ShardID string
}

// RangeConfig routes by where the key falls among ordered,
// non-overlapping ranges.
type RangeConfig struct {
	KeyProperty string
	Selector    KeySelector
	Ranges      []RangeEntry
}

// DateShardEntry binds one shard's validity window to its id — the
// Date strategy's own copy of the window, kept alongside the
// registry's ShardDescriptor.DateRange so the strategy stays a pure
// function of its config rather than needing registry access.
type DateShardEntry struct {
	Range   DateRange
	ShardID string
}

// DateConfig routes to the shard whose window contains the selector's
// date. Interval is not consulted: neither routing nor candidate
// planning buckets dates by it.
type DateConfig struct {
	DateProperty string
	Selector     DateSelector
	Interval     DateInterval
	// NamingPattern documents how bucket names are formatted for
	// shard naming (e.g. "200601" for month, "2006_Q1" for quarter);
	// purely informational — matching is done against Shards below.
	NamingPattern string
	Shards        []DateShardEntry
}

// AlphabetRange binds an inclusive first-character range to a shard.
type AlphabetRange struct {
	LowChar  byte
	HighChar byte
	ShardID  string
}

// AlphabetConfig routes by the first letter of a string key, folded
// to upper case, falling back to DefaultShard for unmapped characters.
type AlphabetConfig struct {
	KeyProperty  string
	Selector     KeySelector
	Ranges       []AlphabetRange
	DefaultShard string
}

// RowCountConfig routes writes to the newest non-full writable shard,
// adding a new one (as an event, never implicitly) once the current
// one reaches MaxRowsPerShard.
type RowCountConfig struct {
	MaxRowsPerShard int
	NamingPattern   string
	// RowCounter reports the current row count of a shard; required
	// for the strategy to decide fullness (the core has no SQL
	// access of its own — this is supplied by the host).
	RowCounter func(shardID string) (int, error)
}

// ExpressionConfig routes via an arbitrary user closure. Reads are
// conservative (return every shard) unless CandidateHint narrows them.
type ExpressionConfig struct {
	Route         func(entity any) (string, error)
	CandidateHint func(predicates PredicateSet) ([]string, bool)
}

// ManualRule is one (shard id, predicate, writable) triple.
type ManualRule struct {
	ShardID   string
	Predicate func(entity any) (bool, error)
	Writable  bool
}

// ManualConfig routes by evaluating each rule's predicate in order.
// When more than one writable rule matches, a Hot-tier shard and then
// the lowest Priority wins; a tie that remains is a
// MisconfiguredRouting error.
type ManualConfig struct {
	Rules []ManualRule
}

// TemporalConfig is the write-routing contract consumed from the
// (external) temporal-versioning policy: it tells the router which
// property holds an entity's validity-from timestamp, so write
// routing can reject a date-sharded write whose validity lies outside
// the target shard's DateRange.
type TemporalConfig struct {
	ValidFromProperty string
	Selector          DateSelector
}

// EntityShardingConfig is how one entity type is sharded. Exactly one
// of the strategy-specific fields matching Kind is populated.
type EntityShardingConfig struct {
	EntityType string
	Kind       StrategyKind

	Property   *PropertyConfig
	Hash       *HashConfig
	Range      *RangeConfig
	Date       *DateConfig
	Alphabet   *AlphabetConfig
	RowCount   *RowCountConfig
	Expression *ExpressionConfig
	Manual     *ManualConfig

	// IsCoLocatedWith names another entity type whose resolved shard
	// id this entity inherits instead of computing its own route.
	IsCoLocatedWith string
	Temporal        *TemporalConfig
}

// PredicateSet is the read-side query shape the sharding strategies
// narrow to a candidate set. A nil Bound/Low/High means "unbounded on
// this property" for that predicate kind.
type PredicateSet struct {
	// Equals holds exact-match predicates keyed by property name.
	Equals map[string]any
	// LowerBound/UpperBound hold range predicates on a single
	// property (used by Range/Date strategies); nil means unbounded.
	LowerBound *any
	UpperBound *any
	// BoundProperty names which property LowerBound/UpperBound apply
	// to.
	BoundProperty string
}
