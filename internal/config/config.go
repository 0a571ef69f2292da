// Package config implements the engine-wide defaults and the
// structured sharding configuration document, using a getEnv-with-
// default pattern for the former and a JSON loader for the latter.
package config

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"
)

// Config holds the engine-wide defaults every component falls back to
// when a per-entity or per-call option is not supplied.
type Config struct {
	MaxParallelShards         int
	ConnectionTimeout         time.Duration
	QueryTimeout              time.Duration
	DefaultTransactionTimeout time.Duration
	Environment               string
}

// Load builds a Config from the environment, falling back to a
// documented default whenever a variable is unset or unparsable.
func Load() *Config {
	return &Config{
		MaxParallelShards:         getEnvInt("DTDE_MAX_PARALLEL_SHARDS", 8),
		ConnectionTimeout:         getEnvDuration("DTDE_CONNECTION_TIMEOUT", 5*time.Second),
		QueryTimeout:              getEnvDuration("DTDE_QUERY_TIMEOUT", 30*time.Second),
		DefaultTransactionTimeout: getEnvDuration("DTDE_TRANSACTION_TIMEOUT", 60*time.Second),
		Environment:               getEnv("DTDE_ENVIRONMENT", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// Document is the external, declarative sharding configuration:
// storage mode, the shard list and each entity's routing strategy,
// expressed as plain JSON so it can be authored outside Go and loaded
// at startup.
type Document struct {
	StorageMode string            `json:"storage_mode"`
	Shards      []ShardDocument   `json:"shards"`
	Entities    []EntityDocument  `json:"entities"`
	Defaults    map[string]string `json:"defaults"`
}

// ShardDocument is one shard entry in a Document.
type ShardDocument struct {
	ShardID              string `json:"shard_id"`
	ConnectionDescriptor string `json:"connection_descriptor"`
	DisplayName          string `json:"display_name"`
	TableNameOverride    string `json:"table_name_override"`
	Tier                 string `json:"tier"`
	Priority             int    `json:"priority"`
	IsReadOnly           bool   `json:"is_read_only"`
	DateRangeStart       string `json:"date_range_start,omitempty"`
	DateRangeEnd         string `json:"date_range_end,omitempty"`
	KeyRangeLow          string `json:"key_range_low,omitempty"`
	KeyRangeHigh         string `json:"key_range_high,omitempty"`
}

// EntityDocument is one entity's sharding configuration in a Document.
// BuildRegistry constructs only the property and hash strategies (and
// co-located entities) from it — Range/Date/Alphabet/RowCount/
// Expression/Manual strategies are built programmatically instead, via
// registry.Builder directly.
type EntityDocument struct {
	EntityType      string            `json:"entity_type"`
	Strategy        string            `json:"strategy"`
	KeyProperty     string            `json:"key_property"`
	ValueToShard    map[string]string `json:"value_to_shard,omitempty"`
	DefaultShard    string            `json:"default_shard,omitempty"`
	ShardCount      int               `json:"shard_count,omitempty"`
	IsCoLocatedWith string            `json:"is_co_located_with,omitempty"`
}

// LoadDocument decodes a Document from r. It performs no strategy
// construction itself — BuildRegistry turns a decoded Document into a
// live Registry.
func LoadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
