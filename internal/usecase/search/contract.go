package search

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/searchindex"
)

// Encoder embeds query text with the domain's model.
type Encoder interface {
	Encode(ctx context.Context, label domain.Label, text string) ([]float32, error)
}

// Retriever runs first-pass vector retrieval against a domain index.
type Retriever interface {
	VectorQuery(ctx context.Context, index string, vector []float32, size int, field string) ([]searchindex.Hit, error)
}
