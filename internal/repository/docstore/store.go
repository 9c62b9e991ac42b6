// Package docstore persists document records as Redis hashes.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
}

// Store implements the pipeline's document store contract.
type Store struct {
	store store
}

func New(s store) *Store {
	return &Store{store: s}
}

// Get loads a document record by ID.
func (r *Store) Get(ctx context.Context, documentID string) (document.Document, error) {
	m, err := r.store.HGetAll(ctx, docKey(documentID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return document.Document{}, fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentNotFound)
		}
		return document.Document{}, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return parseDocument(documentID, m), nil
}

// Put writes the document record, overwriting all fields.
func (r *Store) Put(ctx context.Context, doc document.Document) error {
	if err := r.store.HSet(ctx, docKey(doc.ID()), buildFields(doc)); err != nil {
		return fmt.Errorf("put document %s: %w", doc.ID(), err)
	}
	return nil
}

// Delete removes the document record. Deleting a missing record is a no-op.
func (r *Store) Delete(ctx context.Context, documentID string) error {
	if err := r.store.Del(ctx, docKey(documentID)); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

func docKey(documentID string) string { return domain.KeyPrefix + "doc:" + documentID }
