package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/indexing"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/docdex/internal/usecase/search"
)

// Pipeline drives document ingestion.
type Pipeline interface {
	StartPipeline(ctx context.Context, documentID, title, url string, label string, titleFixed bool) error
	Reindex(ctx context.Context, documentID, label, title string) error
	GetStatus(ctx context.Context, documentID string) (indexing.Status, error)
}

// Searcher executes filtered vector search.
type Searcher interface {
	Search(ctx context.Context, query, label string, conditions []filter.Condition) (searchuc.Response, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// errorCode is a machine-readable error discriminator in error responses.
type errorCode string

const (
	codeBadRequest          errorCode = "bad_request"
	codeValidationFailed    errorCode = "validation_failed"
	codeDocumentNotFound    errorCode = "document_not_found"
	codeStatusNotFound      errorCode = "status_not_found"
	codeNotFound            errorCode = "not_found"
	codeUnknownDomain       errorCode = "unknown_domain"
	codeInvalidFilter       errorCode = "invalid_filter"
	codeInvalidDocument     errorCode = "invalid_document"
	codeUnsupportedFileType errorCode = "unsupported_file_type"
	codeReindexInProgress   errorCode = "reindex_in_progress"
	codeEncoderUnavailable  errorCode = "encoder_unavailable"
	codeInternalError       errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// Server exposes the ingestion and search API over HTTP.
type Server struct {
	pipeline      Pipeline
	search        Searcher
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(pipeline Pipeline, search Searcher, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		search:   search,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrStatusNotFound, http.StatusNotFound, codeStatusNotFound),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrUnknownDomain, http.StatusBadRequest, codeUnknownDomain),
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, codeInvalidFilter),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest, codeInvalidDocument),
		sentinelHandler(domain.ErrUnsupportedFileType, http.StatusBadRequest, codeUnsupportedFileType),
		sentinelHandler(domain.ErrReindexInProgress, http.StatusConflict, codeReindexInProgress),
		sentinelHandler(domain.ErrEncoderUnavailable, http.StatusBadGateway, codeEncoderUnavailable),
	}
	return s
}

// Register mounts the API routes on the given router.
func (s *Server) Register(r chi.Router) {
	r.Post("/documents/{documentID}/index", s.IndexDocument)
	r.Post("/documents/{documentID}/reindex", s.ReindexDocument)
	r.Get("/documents/{documentID}/status", s.DocumentStatus)
	r.Post("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type indexRequest struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Label      string `json:"label"`
	TitleFixed bool   `json:"title_fixed"`
}

type acceptedResponse struct {
	DocumentID string `json:"document_id"`
}

// IndexDocument handles POST /documents/{documentID}/index.
func (s *Server) IndexDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.URL == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Document URL is required")
		return
	}

	if err := s.pipeline.StartPipeline(r.Context(), documentID, req.Title, req.URL, req.Label, req.TitleFixed); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{DocumentID: documentID})
}

type reindexRequest struct {
	Label string `json:"label"`
	Title string `json:"title"`
}

// ReindexDocument handles POST /documents/{documentID}/reindex.
func (s *Server) ReindexDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req reindexRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	if err := s.pipeline.Reindex(r.Context(), documentID, req.Label, req.Title); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{DocumentID: documentID})
}

type statusResponse struct {
	DocumentID string `json:"document_id"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
}

// DocumentStatus handles GET /documents/{documentID}/status.
func (s *Server) DocumentStatus(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	st, err := s.pipeline.GetStatus(r.Context(), documentID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		DocumentID: st.DocumentID(),
		State:      string(st.State()),
		Reason:     st.Reason(),
		TaskID:     st.TaskID(),
	})
}

type searchFilter struct {
	Key            string   `json:"key"`
	Operator       string   `json:"operator"`
	Value          string   `json:"value,omitempty"`
	Values         []string `json:"values,omitempty"`
	DataType       string   `json:"data_type,omitempty"`
	TopN           int      `json:"top_n,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
}

type searchRequest struct {
	Query   string         `json:"query"`
	Domain  string         `json:"domain"`
	Filters []searchFilter `json:"filters"`
}

type searchResultItem struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	Count   int                `json:"count"`
	Results []searchResultItem `json:"results"`
	Message string             `json:"message"`
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Search query is required")
		return
	}

	conditions, err := conditionsFromRequest(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidFilter, err.Error())
		return
	}

	resp, err := s.search.Search(r.Context(), req.Query, req.Domain, conditions)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results := make([]searchResultItem, 0, len(resp.Results))
	for i := range resp.Results {
		doc := &resp.Results[i]
		metadata := make(map[string]string, len(doc.Metadata()))
		for k, v := range doc.Metadata() {
			metadata[k] = v.Text
		}
		results = append(results, searchResultItem{
			ID:       doc.ID(),
			Score:    doc.Score(),
			Title:    doc.Title(),
			Metadata: metadata,
		})
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Count:   resp.Count,
		Results: results,
		Message: resp.Message,
	})
}

func conditionsFromRequest(filters []searchFilter) ([]filter.Condition, error) {
	conditions := make([]filter.Condition, 0, len(filters))
	for _, f := range filters {
		op, err := filter.ParseOperator(f.Operator)
		if err != nil {
			return nil, err
		}

		if op == filter.OpSemanticSearch {
			c, err := filter.NewSemantic(f.Key, f.Value, f.TopN, f.ScoreThreshold)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, c)
			continue
		}

		values := f.Values
		if len(values) == 0 && f.Value != "" {
			values = []string{f.Value}
		}
		c, err := filter.New(f.Key, op, values, f.DataType)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, c)
	}
	return conditions, nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrStatusNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrNotFound,
		domain.ErrUnknownDomain,
		domain.ErrInvalidFilter,
		domain.ErrInvalidDocument,
		domain.ErrUnsupportedFileType,
		domain.ErrReindexInProgress,
		domain.ErrEncoderUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger
	if reqID := chiMiddleware.GetReqID(r.Context()); reqID != "" {
		log = log.With(zap.String("request_id", reqID))
	}
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
