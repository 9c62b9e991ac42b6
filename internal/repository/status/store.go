// Package status persists per-document indexing status records. The record
// is the single serialization point for a document's pipeline.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/indexing"
)

// store is the consumer interface for status persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Store implements the pipeline's status store contract.
type Store struct {
	store   store
	lockTTL time.Duration
}

// New creates a status store. lockTTL bounds how long a re-index may hold
// the per-document lock before it expires on its own.
func New(s store, lockTTL time.Duration) *Store {
	return &Store{store: s, lockTTL: lockTTL}
}

// Get loads the status record for a document.
func (r *Store) Get(ctx context.Context, documentID string) (indexing.Status, error) {
	m, err := r.store.HGetAll(ctx, statusKey(documentID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return indexing.Status{}, fmt.Errorf("document %s: %w", documentID, domain.ErrStatusNotFound)
		}
		return indexing.Status{}, fmt.Errorf("get status %s: %w", documentID, err)
	}
	return parseStatus(documentID, m)
}

// Put writes the status record, overwriting all fields.
func (r *Store) Put(ctx context.Context, st indexing.Status) error {
	if err := r.store.HSet(ctx, statusKey(st.DocumentID()), buildFields(st)); err != nil {
		return fmt.Errorf("put status %s: %w", st.DocumentID(), err)
	}
	return nil
}

// AcquireReindexLock serializes re-index requests per document. Returns
// false when another re-index is already in flight.
func (r *Store) AcquireReindexLock(ctx context.Context, documentID string) (bool, error) {
	ok, err := r.store.SetNX(ctx, lockKey(documentID), []byte("1"), r.lockTTL)
	if err != nil {
		return false, fmt.Errorf("acquire reindex lock %s: %w", documentID, err)
	}
	return ok, nil
}

// ReleaseReindexLock frees the per-document lock.
func (r *Store) ReleaseReindexLock(ctx context.Context, documentID string) error {
	if err := r.store.Del(ctx, lockKey(documentID)); err != nil {
		return fmt.Errorf("release reindex lock %s: %w", documentID, err)
	}
	return nil
}

func statusKey(documentID string) string { return domain.KeyPrefix + "status:" + documentID }
func lockKey(documentID string) string   { return domain.KeyPrefix + "reindex-lock:" + documentID }
