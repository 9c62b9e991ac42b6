package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func respondWith(w http.ResponseWriter, vec []float32) {
	resp := embeddingResponse{Object: "list", Model: "test-model"}
	resp.Data = append(resp.Data, struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}{Object: "embedding", Embedding: vec, Index: 0})
	resp.Usage.PromptTokens = 10
	resp.Usage.TotalTokens = 10

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func TestEncoder_Encode(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		respondWith(w, expectedVec)
	}))
	defer server.Close()

	enc := NewEncoder(&Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Models:     map[string]string{"general": "test-model"},
		Dimensions: 4,
		Logger:     zap.NewNop(),
	})

	vec, err := enc.Encode(context.Background(), domain.General, "hello world")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(vec) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(vec))
	}
	for i, v := range vec {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
}

func TestEncoder_ModelPerDomain(t *testing.T) {
	var gotModel string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		respondWith(w, []float32{0.1})
	}))
	defer server.Close()

	enc := NewEncoder(&Config{
		APIKey: "test-key",
		BaseURL: server.URL,
		Models: map[string]string{
			"general": "general-model",
			"paper":   "paper-model",
		},
		Logger: zap.NewNop(),
	})

	if _, err := enc.Encode(context.Background(), domain.Paper, "an abstract"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if gotModel != "paper-model" {
		t.Errorf("model = %q, expected paper-model", gotModel)
	}

	// domain without its own model falls back to general
	if _, err := enc.Encode(context.Background(), domain.Resume, "a summary"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if gotModel != "general-model" {
		t.Errorf("fallback model = %q, expected general-model", gotModel)
	}
}

func TestEncoder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	enc := NewEncoder(&Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Models:  map[string]string{"general": "test-model"},
		Logger:  zap.NewNop(),
	})

	_, err := enc.Encode(context.Background(), domain.General, "hello")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !errors.Is(err, domain.ErrEncoderUnavailable) {
		t.Errorf("err = %v, expected ErrEncoderUnavailable", err)
	}
}
