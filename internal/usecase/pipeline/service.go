// Package pipeline orchestrates the three-stage document indexing
// pipeline (Parse -> Extract -> Index) over the task queue, including the
// re-index compensation protocol.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/indexing"
)

// Stage names double as queue subjects.
const (
	StageParse   = "parse"
	StageExtract = "extract"
	StageIndex   = "index"
)

// defaultSearchableRatio is the minimum searchable-character ratio of
// extracted text before the OCR fallback kicks in.
const defaultSearchableRatio = 0.5

// Service runs the indexing pipeline.
type Service struct {
	blobs      ObjectStore
	general    Extractor
	domainExts map[domain.Label]Extractor
	classifier Classifier
	encoder    Encoder
	index      SearchIndex
	queue      TaskQueue
	statuses   StatusStore
	documents  DocumentStore
	ocr        OCR

	searchableRatio float64
	vectorDim       int
	logger          *zap.Logger
}

// Config holds the pipeline service dependencies.
type Config struct {
	Blobs            ObjectStore
	General          Extractor
	DomainExtractors map[domain.Label]Extractor
	Classifier       Classifier
	Encoder          Encoder
	Index            SearchIndex
	Queue            TaskQueue
	Statuses         StatusStore
	Documents        DocumentStore
	// OCR is optional; without it low-text documents index whatever text
	// plain extraction produced.
	OCR OCR
	// SearchableRatio below which OCR is attempted. Zero means the default.
	SearchableRatio float64
	VectorDim       int
	Logger          *zap.Logger
}

// New creates a pipeline service.
func New(cfg Config) *Service {
	ratio := cfg.SearchableRatio
	if ratio <= 0 {
		ratio = defaultSearchableRatio
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		blobs:           cfg.Blobs,
		general:         cfg.General,
		domainExts:      cfg.DomainExtractors,
		classifier:      cfg.Classifier,
		encoder:         cfg.Encoder,
		index:           cfg.Index,
		queue:           cfg.Queue,
		statuses:        cfg.Statuses,
		documents:       cfg.Documents,
		ocr:             cfg.OCR,
		searchableRatio: ratio,
		vectorDim:       cfg.VectorDim,
		logger:          logger,
	}
}

// StartPipeline registers the document and enqueues its Parse stage. The
// core does not dedupe: calling it twice for one document id starts two
// runs, and the later one wins.
func (s *Service) StartPipeline(
	ctx context.Context, documentID, title, url string, label string, titleFixed bool,
) error {
	if label != "" {
		if _, err := domain.ParseLabel(label); err != nil {
			return err
		}
	}

	doc, err := document.New(documentID, title, url, titleFixed)
	if err != nil {
		return fmt.Errorf("%s: %w", err, domain.ErrInvalidDocument)
	}
	if err := s.documents.Put(ctx, doc); err != nil {
		return fmt.Errorf("persist document: %w", err)
	}

	runID := uuid.NewString()
	st, err := indexing.NewReady(documentID, runID)
	if err != nil {
		return err
	}
	if err := s.statuses.Put(ctx, st); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, StageParse, parseTask{
		DocumentID: documentID,
		RunID:      runID,
		Label:      label,
	}); err != nil {
		return fmt.Errorf("enqueue parse: %w", err)
	}

	s.logger.Info("pipeline started",
		zap.String("document_id", documentID), zap.String("run_id", runID))
	return nil
}

// Reindex executes the cancellation/compensation protocol and restarts
// the pipeline with a fresh run token.
//
// The forced FAILED write is a compensating action, not a guaranteed
// cancellation: the superseded task may still finish its work, but its
// late status writes no-op against the new run token.
func (s *Service) Reindex(ctx context.Context, documentID, label, title string) error {
	if label != "" {
		if _, err := domain.ParseLabel(label); err != nil {
			return err
		}
	}

	ok, err := s.statuses.AcquireReindexLock(ctx, documentID)
	if err != nil {
		return fmt.Errorf("reindex lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrReindexInProgress)
	}
	defer func() {
		if err := s.statuses.ReleaseReindexLock(ctx, documentID); err != nil {
			s.logger.Warn("release reindex lock", zap.String("document_id", documentID), zap.Error(err))
		}
	}()

	st, err := s.statuses.Get(ctx, documentID)
	if err != nil {
		return err
	}
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}

	newRunID := uuid.NewString()

	if st.State() != indexing.Success {
		if st.TaskID() != "" {
			if err := s.queue.Cancel(ctx, st.TaskID()); err != nil {
				s.logger.Warn("cancel task",
					zap.String("task_id", st.TaskID()), zap.Error(err))
			}
		}
		st = st.Supersede(newRunID)
	} else {
		s.deleteEntries(ctx, &doc)
		st = st.WithRun(newRunID)
	}
	if err := s.statuses.Put(ctx, st); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	if title != "" {
		doc.Retitle(title)
	}
	if err := s.documents.Put(ctx, doc); err != nil {
		return fmt.Errorf("persist document: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, StageParse, parseTask{
		DocumentID: documentID,
		RunID:      newRunID,
		Label:      label,
	}); err != nil {
		return fmt.Errorf("enqueue parse: %w", err)
	}

	s.logger.Info("reindex started",
		zap.String("document_id", documentID), zap.String("run_id", newRunID))
	return nil
}

// GetStatus returns the indexing status record for a document.
func (s *Service) GetStatus(ctx context.Context, documentID string) (indexing.Status, error) {
	return s.statuses.Get(ctx, documentID)
}

// deleteEntries removes the document's search entries and clears its
// references. Deletion failures are logged: they must not block the
// restart (compensation error policy).
func (s *Service) deleteEntries(ctx context.Context, doc *document.Document) {
	if id := doc.GeneralEntryID(); id != "" {
		if err := s.index.DeleteDocument(ctx, generalIndex(), id); err != nil {
			s.logger.Warn("delete general entry",
				zap.String("document_id", doc.ID()), zap.Error(err))
		}
	}
	if doc.HasDomainEntry() {
		if err := s.index.DeleteDocument(ctx, doc.DomainIndex(), doc.DomainEntryID()); err != nil {
			s.logger.Warn("delete domain entry",
				zap.String("document_id", doc.ID()), zap.Error(err))
		}
	}
	doc.ClearEntryRefs()
}

func generalIndex() string {
	p, _ := domain.ProfileFor(domain.General)
	return p.Index
}
