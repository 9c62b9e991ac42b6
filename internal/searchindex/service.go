// Package searchindex wraps the document search engine: entry writes,
// idempotent deletes, and vector similarity queries over per-domain indexes.
package searchindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
)

// ScoreOffset is added to cosine similarity so every relevance score is
// non-negative, as required for script-based scores.
const ScoreOffset = 1.0

// Reserved hash field names; metadata fields must not collide with these.
const (
	fieldTitle   = "title"
	fieldRawText = "raw_text"
	fieldText    = "text"
	fieldLabel   = "label"
	fieldVector  = "vector"

	vectorSuffix = "_vector"
)

// Entry is one search index document.
type Entry struct {
	Title   string
	RawText string
	Text    string
	Label   string
	Vector  []float32
	// Metadata holds flattened extracted fields.
	Metadata map[string]string
	// FieldVectors holds per-field embeddings for semantic text fields.
	FieldVectors map[string][]float32
}

// Hit is one vector query result.
type Hit struct {
	ID           string
	Score        float64
	Title        string
	RawText      string
	Metadata     map[string]string
	FieldVectors map[string][]float32
}

// store is the consumer interface for index operations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, keys ...string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Service is the search index service.
type Service struct {
	store     store
	vectorDim int
}

// New creates a search index service.
func New(s store, vectorDim int) *Service {
	return &Service{store: s, vectorDim: vectorDim}
}

// EnsureIndexes creates the FT index for every domain profile, tolerating
// already-existing indexes.
func (s *Service) EnsureIndexes(ctx context.Context, profiles []domain.Profile) error {
	for _, p := range profiles {
		fields := []db.IndexField{
			{Name: fieldTitle, Type: db.IndexFieldText},
			{Name: fieldRawText, Type: db.IndexFieldText},
			{Name: fieldText, Type: db.IndexFieldText},
			{Name: fieldLabel, Type: db.IndexFieldTag},
			{Name: fieldVector, Type: db.IndexFieldVector, VectorDim: s.vectorDim, VectorMetric: "COSINE"},
		}
		for _, f := range p.SemanticFields {
			fields = append(fields, db.IndexField{
				Name: f + vectorSuffix, Type: db.IndexFieldVector,
				VectorDim: s.vectorDim, VectorMetric: "COSINE",
			})
		}

		def := &db.IndexDefinition{
			Name:     indexName(p.Index),
			Prefixes: []string{keyPrefix(p.Index)},
			Fields:   fields,
		}
		if err := s.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", p.Index, err)
		}
	}
	return nil
}

// IndexDocument writes an entry into an index and returns its entry id.
func (s *Service) IndexDocument(ctx context.Context, index string, e *Entry) (string, error) {
	id := uuid.NewString()
	if err := s.store.HSet(ctx, keyPrefix(index)+id, buildFields(e)); err != nil {
		return "", fmt.Errorf("index document in %s: %w", index, err)
	}
	return id, nil
}

// DeleteDocument removes an entry. Deleting an absent entry is a success.
func (s *Service) DeleteDocument(ctx context.Context, index, id string) error {
	if id == "" {
		return nil
	}
	if err := s.store.Del(ctx, keyPrefix(index)+id); err != nil {
		return fmt.Errorf("delete entry %s from %s: %w", id, index, err)
	}
	return nil
}

// VectorQuery runs a KNN similarity query. field selects the vector
// attribute; empty means the whole-document embedding. Scores are cosine
// similarity offset by ScoreOffset, clamped at zero.
func (s *Service) VectorQuery(
	ctx context.Context, index string, vector []float32, size int, field string,
) ([]Hit, error) {
	vectorField := fieldVector
	if field != "" {
		vectorField = field + vectorSuffix
	}

	sr, err := s.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:   indexName(index),
		VectorField: vectorField,
		Vector:      vector,
		K:           size,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query %s: %w", index, err)
	}

	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := keyPrefix(index)
	hits := make([]Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		hits = append(hits, parseHit(strings.TrimPrefix(entry.Key, prefix), entry))
	}
	return hits, nil
}

func indexName(index string) string { return domain.KeyPrefix + index + ":idx" }
func keyPrefix(index string) string { return domain.KeyPrefix + index + ":" }

// buildFields flattens an Entry into hash fields for HSET.
func buildFields(e *Entry) map[string]string {
	m := make(map[string]string, 5+len(e.Metadata)+len(e.FieldVectors))
	m[fieldTitle] = e.Title
	m[fieldRawText] = e.RawText
	m[fieldText] = e.Text
	m[fieldLabel] = e.Label
	m[fieldVector] = vectorToBytes(e.Vector)
	for k, v := range e.Metadata {
		m[k] = v
	}
	for k, v := range e.FieldVectors {
		m[k+vectorSuffix] = vectorToBytes(v)
	}
	return m
}

// parseHit rebuilds a Hit from flat hash fields. Cosine distance becomes
// similarity + ScoreOffset.
func parseHit(id string, entry db.SearchEntry) Hit {
	h := Hit{
		ID:           id,
		Score:        max(0, (1.0-entry.Distance)+ScoreOffset),
		Metadata:     make(map[string]string),
		FieldVectors: make(map[string][]float32),
	}
	for k, v := range entry.Fields {
		switch k {
		case fieldTitle:
			h.Title = v
		case fieldRawText:
			h.RawText = v
		case fieldText, fieldLabel, fieldVector:
			// not part of the metadata view
		default:
			if name, ok := strings.CutSuffix(k, vectorSuffix); ok {
				h.FieldVectors[name] = bytesToVector(v)
			} else {
				h.Metadata[k] = v
			}
		}
	}
	return h
}
