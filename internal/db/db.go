// Package db defines the storage contract implemented by the redis driver.
package db

import (
	"context"
	"time"
)

// Store is the full storage surface consumed by the repositories and the
// search index service.
type Store interface {
	Ping(ctx context.Context) error
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error

	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	// SetNX stores a value only if the key does not exist yet. Returns true
	// when the key was set. Used for per-document re-index locks.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// IndexFieldType enumerates FT index field types.
type IndexFieldType string

const (
	IndexFieldText   IndexFieldType = "TEXT"
	IndexFieldTag    IndexFieldType = "TAG"
	IndexFieldVector IndexFieldType = "VECTOR"
)

// IndexField is one schema field of an FT index.
type IndexField struct {
	Name string
	Type IndexFieldType

	// Vector parameters (IndexFieldVector only).
	VectorDim    int
	VectorMetric string // COSINE, L2, IP
}

// IndexDefinition describes an FT index over hash keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// KNNQuery is a vector similarity query against one index.
type KNNQuery struct {
	IndexName string
	// VectorField is the schema name of the vector attribute to search.
	VectorField string
	Vector      []float32
	K           int
}

// SearchResult is a raw FT.SEARCH result.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is one hit. Distance carries the raw vector distance reported
// by the engine; score semantics are applied by the caller.
type SearchEntry struct {
	Key      string
	Distance float64
	Fields   map[string]string
}
