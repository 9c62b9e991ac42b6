package pipeline

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/indexing"
	"github.com/kailas-cloud/docdex/internal/extract"
	"github.com/kailas-cloud/docdex/internal/searchindex"
)

// ObjectStore reads uploaded blobs.
type ObjectStore interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// OCR recognizes text in uploads without a usable text layer. Optional.
type OCR interface {
	Recognize(ctx context.Context, data []byte) (string, error)
}

// Extractor derives metadata from a parsed document.
type Extractor interface {
	Extract(in extract.Input) extract.Result
}

// Classifier assigns a domain label to preprocessed tokens.
type Classifier interface {
	Classify(tokens []string) domain.Label
}

// Encoder embeds text with the domain's model.
type Encoder interface {
	Encode(ctx context.Context, label domain.Label, text string) ([]float32, error)
}

// SearchIndex writes and deletes search entries.
type SearchIndex interface {
	IndexDocument(ctx context.Context, index string, e *searchindex.Entry) (string, error)
	DeleteDocument(ctx context.Context, index, id string) error
}

// TaskQueue enqueues stage work and requests cancellation.
type TaskQueue interface {
	Enqueue(ctx context.Context, stage string, payload any) (string, error)
	Cancel(ctx context.Context, taskID string) error
}

// StatusStore persists indexing status records and serializes re-index
// requests per document.
type StatusStore interface {
	Get(ctx context.Context, documentID string) (indexing.Status, error)
	Put(ctx context.Context, st indexing.Status) error
	AcquireReindexLock(ctx context.Context, documentID string) (bool, error)
	ReleaseReindexLock(ctx context.Context, documentID string) error
}

// DocumentStore persists document records.
type DocumentStore interface {
	Get(ctx context.Context, documentID string) (document.Document, error)
	Put(ctx context.Context, doc document.Document) error
}
