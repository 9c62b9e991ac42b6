// Package search composes first-pass vector retrieval with the sequential
// typed filter chain.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/result"
	"github.com/kailas-cloud/docdex/internal/metrics"
	"github.com/kailas-cloud/docdex/internal/searchindex"
	"github.com/kailas-cloud/docdex/internal/textproc"
)

const defaultPageSize = 20

// Response is the search result envelope.
type Response struct {
	Count   int
	Results []result.MatchedDocument
	Message string
}

// Service executes searches.
type Service struct {
	encoder   Encoder
	retriever Retriever
	pageSize  int
	logger    *zap.Logger
}

// New creates a search service. pageSize bounds first-pass retrieval;
// zero means the default.
func New(encoder Encoder, retriever Retriever, pageSize int, logger *zap.Logger) *Service {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{encoder: encoder, retriever: retriever, pageSize: pageSize, logger: logger}
}

// Search preprocesses the query identically to ingestion, retrieves by
// vector similarity from the domain's index, and narrows the hits through
// the condition chain.
func (s *Service) Search(
	ctx context.Context, query, labelStr string, conditions []filter.Condition,
) (Response, error) {
	label, err := domain.ParseLabel(labelStr)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(labelStr, "error").Inc()
		return Response{}, err
	}
	profile, err := domain.ProfileFor(label)
	if err != nil {
		return Response{}, err
	}

	normalized := strings.Join(textproc.Preprocess(query), " ")
	vector, err := s.encoder.Encode(ctx, label, normalized)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(labelStr, "error").Inc()
		return Response{}, fmt.Errorf("encode query: %w", err)
	}

	hits, err := s.retriever.VectorQuery(ctx, profile.Index, vector, s.pageSize, "")
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(labelStr, "error").Inc()
		return Response{}, fmt.Errorf("retrieve: %w", err)
	}

	docs := make([]result.MatchedDocument, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, toMatched(hit))
	}

	docs = s.evaluate(ctx, label, profile, conditions, docs)

	metrics.SearchRequestsTotal.WithLabelValues(labelStr, "success").Inc()
	return Response{
		Count:   len(docs),
		Results: docs,
		Message: fmt.Sprintf("found %d matching documents in %s", len(docs), profile.Index),
	}, nil
}

// toMatched flattens an index hit into the metadata view the filter chain
// evaluates. Fields with a stored per-field embedding become semantic
// values carrying both text and vector.
func toMatched(hit searchindex.Hit) result.MatchedDocument {
	metadata := make(map[string]result.Value, len(hit.Metadata))
	for k, v := range hit.Metadata {
		metadata[k] = result.Value{Text: v}
	}
	for k, vec := range hit.FieldVectors {
		metadata[k] = result.Value{Text: hit.Metadata[k], Embedding: vec}
	}
	return result.New(hit.ID, hit.Score, hit.Title, metadata)
}
