package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/indexing"
	"github.com/kailas-cloud/docdex/internal/extract"
	"github.com/kailas-cloud/docdex/internal/metrics"
	"github.com/kailas-cloud/docdex/internal/searchindex"
	"github.com/kailas-cloud/docdex/internal/textproc"
)

// Stage payloads. Each stage hands its structured outputs to the next
// through the queue payload, never by re-reading persisted state.
type parseTask struct {
	DocumentID string `json:"document_id"`
	RunID      string `json:"run_id"`
	// Label pins the domain; empty means classify during Extract.
	Label string `json:"label,omitempty"`
}

type extractTask struct {
	DocumentID string   `json:"document_id"`
	RunID      string   `json:"run_id"`
	Label      string   `json:"label,omitempty"`
	Mimetype   string   `json:"mimetype"`
	Extension  string   `json:"extension"`
	Size       int64    `json:"size"`
	RawText    string   `json:"raw_text"`
	Tokens     []string `json:"tokens"`
}

type indexTask struct {
	DocumentID    string            `json:"document_id"`
	RunID         string            `json:"run_id"`
	Label         string            `json:"label"`
	RawText       string            `json:"raw_text"`
	Tokens        []string          `json:"tokens"`
	GeneralFields map[string]string `json:"general_fields"`
	DomainFields  map[string]string `json:"domain_fields,omitempty"`
}

// HandleParse is the Parse stage worker entrypoint.
func (s *Service) HandleParse(ctx context.Context, taskID string, payload []byte) error {
	var task parseTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode parse payload: %w", err)
	}
	return s.runStage(ctx, StageParse, indexing.Parsing, taskID, task.DocumentID, task.RunID,
		func(ctx context.Context) error { return s.parse(ctx, taskID, task) })
}

// HandleExtract is the Extract stage worker entrypoint.
func (s *Service) HandleExtract(ctx context.Context, taskID string, payload []byte) error {
	var task extractTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode extract payload: %w", err)
	}
	return s.runStage(ctx, StageExtract, indexing.Extracting, taskID, task.DocumentID, task.RunID,
		func(ctx context.Context) error { return s.extract(ctx, task) })
}

// HandleIndex is the Index stage worker entrypoint.
func (s *Service) HandleIndex(ctx context.Context, taskID string, payload []byte) error {
	var task indexTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode index payload: %w", err)
	}
	return s.runStage(ctx, StageIndex, indexing.Indexing, taskID, task.DocumentID, task.RunID,
		func(ctx context.Context) error { return s.indexStage(ctx, task) })
}

// runStage performs the stage entry/exit protocol around a stage body:
// run-token check, status transition, failure recording, metrics. A run
// superseded by re-indexing no-ops without reaching the body.
func (s *Service) runStage(
	ctx context.Context, stage string, state indexing.State,
	taskID, documentID, runID string, body func(ctx context.Context) error,
) error {
	st, err := s.statuses.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	if st.RunID() != runID {
		metrics.StageCompletedTotal.WithLabelValues(stage, "superseded").Inc()
		s.logger.Info("skipping superseded task",
			zap.String("document_id", documentID),
			zap.String("stage", stage),
			zap.String("run_id", runID))
		return nil
	}

	st, err = st.Begin(state, taskID)
	if err != nil {
		s.failRun(ctx, documentID, runID, err.Error())
		return fmt.Errorf("begin %s: %w", stage, err)
	}
	if err := s.statuses.Put(ctx, st); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	metrics.StageStartedTotal.WithLabelValues(stage).Inc()
	start := time.Now()

	if err := body(ctx); err != nil {
		metrics.StageCompletedTotal.WithLabelValues(stage, "failure").Inc()
		s.failRun(ctx, documentID, runID, err.Error())
		return fmt.Errorf("%s %s: %w", stage, documentID, err)
	}

	metrics.StageCompletedTotal.WithLabelValues(stage, "success").Inc()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return nil
}

// failRun records FAILED for the given run. The write is skipped when a
// newer run owns the status, and runs on a detached context so a
// cancelled task can still persist its terminal state.
func (s *Service) failRun(ctx context.Context, documentID, runID, reason string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	st, err := s.statuses.Get(dctx, documentID)
	if err != nil {
		s.logger.Error("load status for failure", zap.String("document_id", documentID), zap.Error(err))
		return
	}
	if st.RunID() != runID {
		return
	}
	if err := s.statuses.Put(dctx, st.Fail(reason)); err != nil {
		s.logger.Error("persist failure", zap.String("document_id", documentID), zap.Error(err))
	}
}

// parse fetches the upload, extracts raw text (OCR fallback when the
// text layer is too thin) and preprocesses it into tokens.
func (s *Service) parse(ctx context.Context, _ string, task parseTask) error {
	doc, err := s.documents.Get(ctx, task.DocumentID)
	if err != nil {
		return err
	}
	data, err := s.blobs.Get(ctx, doc.URL())
	if err != nil {
		return fmt.Errorf("fetch upload: %w", err)
	}

	mimetype, extension := extract.DetectType(data, doc.URL())
	if err := extract.CheckSupported(mimetype); err != nil {
		return err
	}

	rawText := extract.PlainText(data, mimetype)
	if textproc.SearchableRatio(rawText) < s.searchableRatio && s.ocr != nil {
		ocrText, err := s.ocr.Recognize(ctx, data)
		if err != nil {
			return fmt.Errorf("ocr: %w", err)
		}
		rawText = ocrText
	}

	tokens := textproc.Preprocess(rawText)

	_, err = s.queue.Enqueue(ctx, StageExtract, extractTask{
		DocumentID: task.DocumentID,
		RunID:      task.RunID,
		Label:      task.Label,
		Mimetype:   mimetype,
		Extension:  extension,
		Size:       int64(len(data)),
		RawText:    rawText,
		Tokens:     tokens,
	})
	if err != nil {
		return fmt.Errorf("enqueue extract: %w", err)
	}
	return nil
}

// extract runs the general extractor, classifies when no label is
// pinned, runs the domain extractor for specialized labels, and persists
// the extracted document fields.
func (s *Service) extract(ctx context.Context, task extractTask) error {
	doc, err := s.documents.Get(ctx, task.DocumentID)
	if err != nil {
		return err
	}

	in := extract.Input{
		DocumentID: task.DocumentID,
		URL:        doc.URL(),
		Mimetype:   task.Mimetype,
		Extension:  task.Extension,
		Size:       task.Size,
		RawText:    task.RawText,
		Tokens:     task.Tokens,
	}
	general := s.general.Extract(in)

	label := domain.Label(task.Label)
	if label == "" {
		label = s.classifier.Classify(task.Tokens)
	}

	var domainFields map[string]string
	if label.IsSpecialized() {
		ext, ok := s.domainExts[label]
		if !ok {
			return fmt.Errorf("no extractor for domain %q: %w", label, domain.ErrUnknownDomain)
		}
		domainFields = ext.Extract(in).Fields
	}

	doc.SetExtracted(general.Title, task.Mimetype, task.Extension, task.Size)
	if err := s.documents.Put(ctx, doc); err != nil {
		return fmt.Errorf("persist document: %w", err)
	}

	_, err = s.queue.Enqueue(ctx, StageIndex, indexTask{
		DocumentID:    task.DocumentID,
		RunID:         task.RunID,
		Label:         string(label),
		RawText:       task.RawText,
		Tokens:        task.Tokens,
		GeneralFields: general.Fields,
		DomainFields:  domainFields,
	})
	if err != nil {
		return fmt.Errorf("enqueue index: %w", err)
	}
	return nil
}

// indexStage embeds the document and writes its search entries. A partial
// write is rolled back before the stage reports failure so no orphaned
// entries survive the run.
func (s *Service) indexStage(ctx context.Context, task indexTask) error {
	label, err := domain.ParseLabel(task.Label)
	if err != nil {
		return err
	}
	doc, err := s.documents.Get(ctx, task.DocumentID)
	if err != nil {
		return err
	}

	text := strings.Join(task.Tokens, " ")
	vector, err := s.encoder.Encode(ctx, label, text)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	generalID, err := s.index.IndexDocument(ctx, generalIndex(), &searchindex.Entry{
		Title:    doc.Title(),
		RawText:  task.RawText,
		Text:     text,
		Label:    string(label),
		Vector:   vector,
		Metadata: task.GeneralFields,
	})
	if err != nil {
		return fmt.Errorf("write general entry: %w", err)
	}

	var domainID, domainIndex string
	if label.IsSpecialized() {
		profile, err := domain.ProfileFor(label)
		if err != nil {
			return err
		}
		fieldVectors, err := s.embedSemanticFields(ctx, label, profile, task.DomainFields)
		if err != nil {
			s.rollback(ctx, generalID, "", "")
			return err
		}
		domainID, err = s.index.IndexDocument(ctx, profile.Index, &searchindex.Entry{
			Title:        doc.Title(),
			RawText:      task.RawText,
			Text:         text,
			Label:        string(label),
			Vector:       vector,
			Metadata:     task.DomainFields,
			FieldVectors: fieldVectors,
		})
		if err != nil {
			s.rollback(ctx, generalID, "", "")
			return fmt.Errorf("write %s entry: %w", profile.Index, err)
		}
		domainIndex = profile.Index
	}

	doc.SetEntryRefs(generalID, domainID, domainIndex)
	if err := s.documents.Put(ctx, doc); err != nil {
		s.rollback(ctx, generalID, domainID, domainIndex)
		return fmt.Errorf("persist document: %w", err)
	}

	st, err := s.statuses.Get(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	if st.RunID() != task.RunID {
		// superseded between entry and completion: this run's entries have
		// no owner anymore, remove them instead of marking success
		s.rollback(ctx, generalID, domainID, domainIndex)
		return nil
	}
	st, err = st.Succeed()
	if err != nil {
		return err
	}
	if err := s.statuses.Put(ctx, st); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	s.logger.Info("document indexed",
		zap.String("document_id", task.DocumentID),
		zap.String("label", string(label)))
	return nil
}

// embedSemanticFields embeds each semantic-text field of the profile,
// substituting a zero vector for empty fields.
func (s *Service) embedSemanticFields(
	ctx context.Context, label domain.Label, profile domain.Profile, fields map[string]string,
) (map[string][]float32, error) {
	if len(profile.SemanticFields) == 0 {
		return nil, nil
	}
	vectors := make(map[string][]float32, len(profile.SemanticFields))
	for _, name := range profile.SemanticFields {
		text := fields[name]
		if text == "" {
			vectors[name] = searchindex.ZeroVector(s.vectorDim)
			continue
		}
		vec, err := s.encoder.Encode(ctx, label, text)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", name, err)
		}
		vectors[name] = vec
	}
	return vectors, nil
}

// rollback deletes entries written during the failing run. Errors are
// logged and never mask the stage error.
func (s *Service) rollback(ctx context.Context, generalID, domainID, domainIndex string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if generalID != "" {
		if err := s.index.DeleteDocument(dctx, generalIndex(), generalID); err != nil {
			s.logger.Warn("rollback general entry", zap.String("entry_id", generalID), zap.Error(err))
		}
	}
	if domainID != "" {
		if err := s.index.DeleteDocument(dctx, domainIndex, domainID); err != nil {
			s.logger.Warn("rollback domain entry", zap.String("entry_id", domainID), zap.Error(err))
		}
	}
}
