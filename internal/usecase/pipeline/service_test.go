package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/indexing"
	"github.com/kailas-cloud/docdex/internal/extract"
	"github.com/kailas-cloud/docdex/internal/searchindex"
)

// --- fakes ---

type fakeBlobs struct {
	objects map[string][]byte
}

func (f *fakeBlobs) Get(_ context.Context, url string) ([]byte, error) {
	data, ok := f.objects[url]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type queuedTask struct {
	stage   string
	payload []byte
}

type fakeQueue struct {
	tasks     []queuedTask
	cancelled []string
	nextTask  int
}

func (f *fakeQueue) Enqueue(_ context.Context, stage string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	f.tasks = append(f.tasks, queuedTask{stage: stage, payload: body})
	return fmt.Sprintf("task-%d", len(f.tasks)), nil
}

func (f *fakeQueue) Cancel(_ context.Context, taskID string) error {
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

type fakeStatuses struct {
	records map[string]indexing.Status
	locks   map[string]bool
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{records: map[string]indexing.Status{}, locks: map[string]bool{}}
}

func (f *fakeStatuses) Get(_ context.Context, documentID string) (indexing.Status, error) {
	st, ok := f.records[documentID]
	if !ok {
		return indexing.Status{}, domain.ErrStatusNotFound
	}
	return st, nil
}

func (f *fakeStatuses) Put(_ context.Context, st indexing.Status) error {
	f.records[st.DocumentID()] = st
	return nil
}

func (f *fakeStatuses) AcquireReindexLock(_ context.Context, documentID string) (bool, error) {
	if f.locks[documentID] {
		return false, nil
	}
	f.locks[documentID] = true
	return true, nil
}

func (f *fakeStatuses) ReleaseReindexLock(_ context.Context, documentID string) error {
	delete(f.locks, documentID)
	return nil
}

type fakeDocs struct {
	records map[string]document.Document
}

func newFakeDocs() *fakeDocs { return &fakeDocs{records: map[string]document.Document{}} }

func (f *fakeDocs) Get(_ context.Context, documentID string) (document.Document, error) {
	doc, ok := f.records[documentID]
	if !ok {
		return document.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocs) Put(_ context.Context, doc document.Document) error {
	f.records[doc.ID()] = doc
	return nil
}

type indexedEntry struct {
	index string
	entry searchindex.Entry
}

type fakeIndex struct {
	written   []indexedEntry
	deleted   []string // "<index>/<id>"
	failIndex string   // index name whose writes fail
	nextID    int
}

func (f *fakeIndex) IndexDocument(_ context.Context, index string, e *searchindex.Entry) (string, error) {
	if index == f.failIndex {
		return "", errors.New("index write refused")
	}
	f.nextID++
	f.written = append(f.written, indexedEntry{index: index, entry: *e})
	return fmt.Sprintf("entry-%d", f.nextID), nil
}

func (f *fakeIndex) DeleteDocument(_ context.Context, index, id string) error {
	f.deleted = append(f.deleted, index+"/"+id)
	return nil
}

type fakeEncoder struct {
	calls int
	err   error
}

func (f *fakeEncoder) Encode(_ context.Context, _ domain.Label, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

type fixedClassifier struct{ label domain.Label }

func (f fixedClassifier) Classify([]string) domain.Label { return f.label }

// --- harness ---

type harness struct {
	svc      *Service
	queue    *fakeQueue
	statuses *fakeStatuses
	docs     *fakeDocs
	index    *fakeIndex
	encoder  *fakeEncoder
	blobs    *fakeBlobs
}

func newHarness() *harness {
	h := &harness{
		queue:    &fakeQueue{},
		statuses: newFakeStatuses(),
		docs:     newFakeDocs(),
		index:    &fakeIndex{},
		encoder:  &fakeEncoder{},
		blobs:    &fakeBlobs{objects: map[string][]byte{}},
	}
	h.svc = New(Config{
		Blobs:      h.blobs,
		General:    extract.NewGeneral(),
		Classifier: fixedClassifier{label: domain.General},
		DomainExtractors: map[domain.Label]Extractor{
			domain.Paper:  extract.NewPaper(),
			domain.Resume: extract.NewResume(),
		},
		Encoder:   h.encoder,
		Index:     h.index,
		Queue:     h.queue,
		Statuses:  h.statuses,
		Documents: h.docs,
		VectorDim: 3,
		Logger:    zap.NewNop(),
	})
	return h
}

// drainOne dispatches the next queued task to its stage handler.
func (h *harness) drainOne(t *testing.T) error {
	t.Helper()
	if h.queue.nextTask >= len(h.queue.tasks) {
		t.Fatal("no queued task to drain")
	}
	task := h.queue.tasks[h.queue.nextTask]
	h.queue.nextTask++
	taskID := fmt.Sprintf("task-%d", h.queue.nextTask)

	ctx := context.Background()
	switch task.stage {
	case StageParse:
		return h.svc.HandleParse(ctx, taskID, task.payload)
	case StageExtract:
		return h.svc.HandleExtract(ctx, taskID, task.payload)
	case StageIndex:
		return h.svc.HandleIndex(ctx, taskID, task.payload)
	default:
		t.Fatalf("unknown stage %q", task.stage)
		return nil
	}
}

func (h *harness) drainAll(t *testing.T) {
	t.Helper()
	for h.queue.nextTask < len(h.queue.tasks) {
		if err := h.drainOne(t); err != nil {
			t.Fatalf("stage failed: %v", err)
		}
	}
}

func (h *harness) status(t *testing.T, documentID string) indexing.Status {
	t.Helper()
	st, err := h.statuses.Get(context.Background(), documentID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return st
}

// --- tests ---

func TestStartPipelineEnqueuesParse(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/a.txt"] = []byte("hello")

	if err := h.svc.StartPipeline(context.Background(), "doc-1", "", "gs://uploads/a.txt", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}

	st := h.status(t, "doc-1")
	if st.State() != indexing.Ready {
		t.Errorf("state = %s, want READY", st.State())
	}
	if len(h.queue.tasks) != 1 || h.queue.tasks[0].stage != StageParse {
		t.Fatalf("queued = %+v, want one parse task", h.queue.tasks)
	}
	var task parseTask
	if err := json.Unmarshal(h.queue.tasks[0].payload, &task); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if task.RunID != st.RunID() {
		t.Errorf("payload run %q != status run %q", task.RunID, st.RunID())
	}
}

func TestStartPipelineRejectsBadInput(t *testing.T) {
	h := newHarness()
	err := h.svc.StartPipeline(context.Background(), "doc-1", "", "gs://u/a.txt", "movies", false)
	if !errors.Is(err, domain.ErrUnknownDomain) {
		t.Errorf("label err = %v, want ErrUnknownDomain", err)
	}
	err = h.svc.StartPipeline(context.Background(), "doc-1", "", "", "", false)
	if !errors.Is(err, domain.ErrInvalidDocument) {
		t.Errorf("url err = %v, want ErrInvalidDocument", err)
	}
}

func TestPipelineGeneralSuccess(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/a.txt"] = []byte("The quarterly report\n\nRevenue grew this quarter.")

	ctx := context.Background()
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/a.txt", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	h.drainAll(t)

	st := h.status(t, "doc-1")
	if st.State() != indexing.Success {
		t.Fatalf("state = %s (%s), want SUCCESS", st.State(), st.Reason())
	}
	if st.Reason() != "" || st.TaskID() != "" {
		t.Errorf("terminal record not clean: reason=%q task=%q", st.Reason(), st.TaskID())
	}

	if len(h.index.written) != 1 {
		t.Fatalf("written entries = %d, want 1 general", len(h.index.written))
	}
	entry := h.index.written[0]
	if entry.index != "general" {
		t.Errorf("index = %q, want general", entry.index)
	}
	if len(entry.entry.Vector) == 0 {
		t.Error("general entry has empty embedding")
	}
	if entry.entry.RawText == "" || entry.entry.Text == "" {
		t.Error("general entry missing text")
	}
	if entry.entry.Label != "general" {
		t.Errorf("label = %q", entry.entry.Label)
	}

	doc, _ := h.docs.Get(ctx, "doc-1")
	if doc.GeneralEntryID() == "" {
		t.Error("document missing general entry reference")
	}
	if doc.HasDomainEntry() {
		t.Error("unexpected domain entry for general label")
	}
	if doc.Title() != "The quarterly report" {
		t.Errorf("extracted title = %q", doc.Title())
	}
}

func TestPipelinePinnedPaperLabel(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/p.txt"] = []byte(
		"A Study\n\nAbstract\nWe study things.\n\nKeywords: things\n")

	ctx := context.Background()
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/p.txt", "paper", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	h.drainAll(t)

	if st := h.status(t, "doc-1"); st.State() != indexing.Success {
		t.Fatalf("state = %s (%s)", st.State(), st.Reason())
	}
	if len(h.index.written) != 2 {
		t.Fatalf("written entries = %d, want general + paper", len(h.index.written))
	}
	paperEntry := h.index.written[1]
	if paperEntry.index != "paper" {
		t.Fatalf("second entry index = %q", paperEntry.index)
	}
	if paperEntry.entry.Metadata["abstract"] != "We study things." {
		t.Errorf("abstract = %q", paperEntry.entry.Metadata["abstract"])
	}
	if len(paperEntry.entry.FieldVectors["abstract"]) == 0 {
		t.Error("abstract field vector missing")
	}

	doc, _ := h.docs.Get(ctx, "doc-1")
	if !doc.HasDomainEntry() || doc.DomainIndex() != "paper" {
		t.Errorf("domain refs = %q/%q", doc.DomainEntryID(), doc.DomainIndex())
	}
}

func TestIndexStageZeroVectorForEmptySemanticField(t *testing.T) {
	h := newHarness()
	// resume without a skills section: skills field vector must be zero, not absent
	h.blobs.objects["gs://uploads/r.txt"] = []byte("Jane Roe\n\nSummary:\nEngineer.\n")

	if err := h.svc.StartPipeline(context.Background(), "doc-1", "", "gs://uploads/r.txt", "resume", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	h.drainAll(t)

	resumeEntry := h.index.written[1]
	skills, ok := resumeEntry.entry.FieldVectors["skills"]
	if !ok {
		t.Fatal("skills field vector absent")
	}
	for _, v := range skills {
		if v != 0 {
			t.Fatalf("skills vector = %v, want zero vector", skills)
		}
	}
	if len(skills) != 3 {
		t.Errorf("zero vector dim = %d, want 3", len(skills))
	}
}

func TestParseRejectsUnsupportedType(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/a.zip"] = []byte("PK\x03\x04....")

	if err := h.svc.StartPipeline(context.Background(), "doc-1", "", "gs://uploads/a.zip", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	if err := h.drainOne(t); !errors.Is(err, domain.ErrUnsupportedFileType) {
		t.Fatalf("parse err = %v, want ErrUnsupportedFileType", err)
	}

	st := h.status(t, "doc-1")
	if st.State() != indexing.Failed {
		t.Errorf("state = %s, want FAILED", st.State())
	}
	if st.Reason() == "" || st.TaskID() != "" {
		t.Errorf("failure record: reason=%q task=%q", st.Reason(), st.TaskID())
	}
	if len(h.queue.tasks) != 1 {
		t.Errorf("extract enqueued after a failed parse")
	}
}

func TestIndexStageRollsBackPartialWrite(t *testing.T) {
	h := newHarness()
	h.index.failIndex = "paper"
	h.blobs.objects["gs://uploads/p.txt"] = []byte("A Study\n\nAbstract\nText.\n")

	if err := h.svc.StartPipeline(context.Background(), "doc-1", "", "gs://uploads/p.txt", "paper", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	_ = h.drainOne(t) // parse
	_ = h.drainOne(t) // extract
	if err := h.drainOne(t); err == nil {
		t.Fatal("index stage should fail")
	}

	if len(h.index.written) != 1 {
		t.Fatalf("written = %d, want only the general entry", len(h.index.written))
	}
	if len(h.index.deleted) != 1 || !strings.HasPrefix(h.index.deleted[0], "general/") {
		t.Errorf("deleted = %v, want the general entry rolled back", h.index.deleted)
	}
	if st := h.status(t, "doc-1"); st.State() != indexing.Failed {
		t.Errorf("state = %s, want FAILED", st.State())
	}
}

func TestStaleRunIsNoOp(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/a.txt"] = []byte("hello world")

	ctx := context.Background()
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/a.txt", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	stale := h.queue.tasks[0]

	// a second start supersedes the first run
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/a.txt", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	before := h.status(t, "doc-1")

	if err := h.svc.HandleParse(ctx, "stale-task", stale.payload); err != nil {
		t.Fatalf("stale parse should no-op, got %v", err)
	}
	after := h.status(t, "doc-1")
	if after.State() != before.State() || after.RunID() != before.RunID() {
		t.Errorf("stale task mutated status: %+v -> %+v", before, after)
	}
	if len(h.queue.tasks) != 2 {
		t.Errorf("stale parse enqueued work")
	}
}

func TestReindexAfterSuccessDeletesAllEntries(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/p.txt"] = []byte("A Study\n\nAbstract\nText.\n")

	ctx := context.Background()
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/p.txt", "paper", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	h.drainAll(t)
	written := len(h.index.written)

	if err := h.svc.Reindex(ctx, "doc-1", "", ""); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	// zero orphaned entries: one delete per written entry
	if len(h.index.deleted) != written {
		t.Errorf("deleted %d entries, wrote %d", len(h.index.deleted), written)
	}
	doc, _ := h.docs.Get(ctx, "doc-1")
	if doc.GeneralEntryID() != "" || doc.HasDomainEntry() {
		t.Error("entry references not cleared")
	}

	// fresh parse queued under the new run token
	last := h.queue.tasks[len(h.queue.tasks)-1]
	if last.stage != StageParse {
		t.Fatalf("last queued stage = %q, want parse", last.stage)
	}
	var task parseTask
	_ = json.Unmarshal(last.payload, &task)
	if task.RunID != h.status(t, "doc-1").RunID() {
		t.Error("new parse not bound to the new run token")
	}

	h.drainAll(t)
	if st := h.status(t, "doc-1"); st.State() != indexing.Success {
		t.Errorf("re-run state = %s (%s)", st.State(), st.Reason())
	}
}

func TestReindexMidRunForcesTermination(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/a.txt"] = []byte("hello world document")

	ctx := context.Background()
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/a.txt", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	if err := h.drainOne(t); err != nil { // parse; status left in PARSING w/ task id
		t.Fatalf("parse: %v", err)
	}
	runningTask := h.status(t, "doc-1").TaskID()
	if runningTask == "" {
		t.Fatal("expected an in-flight task id after parse entry")
	}

	if err := h.svc.Reindex(ctx, "doc-1", "", ""); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	st := h.status(t, "doc-1")
	if st.State() != indexing.Failed {
		t.Errorf("state = %s, want FAILED", st.State())
	}
	if st.Reason() != indexing.ReasonTerminated {
		t.Errorf("reason = %q, want %q", st.Reason(), indexing.ReasonTerminated)
	}
	if st.TaskID() != "" {
		t.Errorf("task id = %q, want cleared", st.TaskID())
	}
	if len(h.queue.cancelled) != 1 || h.queue.cancelled[0] != runningTask {
		t.Errorf("cancelled = %v, want [%s]", h.queue.cancelled, runningTask)
	}

	// the extract task of the old run is now stale
	if err := h.drainOne(t); err != nil {
		t.Fatalf("stale extract should no-op, got %v", err)
	}
	if got := h.status(t, "doc-1"); got.State() != indexing.Failed {
		t.Errorf("stale extract mutated status to %s", got.State())
	}

	// the re-run completes
	h.drainAll(t)
	if got := h.status(t, "doc-1"); got.State() != indexing.Success {
		t.Errorf("re-run state = %s (%s)", got.State(), got.Reason())
	}
}

func TestReindexSerialized(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/a.txt"] = []byte("hello")

	ctx := context.Background()
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/a.txt", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	h.statuses.locks["doc-1"] = true // concurrent re-index in flight

	if err := h.svc.Reindex(ctx, "doc-1", "", ""); !errors.Is(err, domain.ErrReindexInProgress) {
		t.Errorf("err = %v, want ErrReindexInProgress", err)
	}
}

func TestReindexTitleOverridePins(t *testing.T) {
	h := newHarness()
	h.blobs.objects["gs://uploads/a.txt"] = []byte("Original First Line\nmore text")

	ctx := context.Background()
	if err := h.svc.StartPipeline(ctx, "doc-1", "", "gs://uploads/a.txt", "", false); err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	h.drainAll(t)

	if err := h.svc.Reindex(ctx, "doc-1", "", "Pinned Title"); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	h.drainAll(t)

	doc, _ := h.docs.Get(ctx, "doc-1")
	if doc.Title() != "Pinned Title" {
		t.Errorf("title = %q, want override to survive extract", doc.Title())
	}
}

func TestGetStatus(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.GetStatus(context.Background(), "missing"); !errors.Is(err, domain.ErrStatusNotFound) {
		t.Errorf("err = %v, want ErrStatusNotFound", err)
	}
}
