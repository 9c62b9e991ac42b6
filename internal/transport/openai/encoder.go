// Package openai implements the embedding encoder over an
// OpenAI-compatible API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

// Encoder embeds text with a per-domain model selection. Specialized
// domains may use a model tuned for their content; domains without an
// explicit model fall back to the general one.
type Encoder struct {
	client     *openai.Client
	models     map[domain.Label]openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Models     map[string]string
	Dimensions int
	Logger     *zap.Logger
}

// NewEncoder creates an OpenAI-compatible embedding encoder.
func NewEncoder(cfg *Config) *Encoder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	models := make(map[domain.Label]openai.EmbeddingModel, len(cfg.Models))
	for name, model := range cfg.Models {
		if label, err := domain.ParseLabel(name); err == nil {
			models[label] = openai.EmbeddingModel(model)
		}
	}

	return &Encoder{
		client:     openai.NewClientWithConfig(clientCfg),
		models:     models,
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}
}

// Encode embeds a single text with the model of the given domain.
func (e *Encoder) Encode(ctx context.Context, label domain.Label, text string) ([]float32, error) {
	model := e.modelFor(label)
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(model), "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(model), "error").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEncoderUnavailable)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(string(model)).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(string(model)).Add(float64(resp.Usage.TotalTokens))
	}

	return resp.Data[0].Embedding, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Encoder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (e *Encoder) modelFor(label domain.Label) openai.EmbeddingModel {
	if model, ok := e.models[label]; ok {
		return model
	}
	if model, ok := e.models[domain.General]; ok {
		return model
	}
	return openai.SmallEmbedding3
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEncoderUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrEncoderUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w", wrap)
}

// extractDetail pulls the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
