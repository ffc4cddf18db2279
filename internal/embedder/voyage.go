// Package embedder provides implementations of the rag.Embedder interface
// for converting text into dense vector embeddings. Each implementation
// talks to a different backend (Voyage AI, OpenAI, Azure OpenAI, Ollama)
// via plain HTTP — no additional SDK dependencies are required.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Input types accepted by the Voyage contextualized embeddings endpoint.
const (
	inputTypeDocument = "document"
	inputTypeQuery    = "query"
)

// VoyageEmbedder implements rag.Embedder and rag.Reranker using the Voyage
// AI contextualized embeddings and rerank REST APIs. It is safe for
// concurrent use.
//
// Contextualized embedding means each chunk's vector is computed with
// awareness of its neighbours in the same request. EmbedDocuments therefore
// sends exactly one document's chunks per request — the caller's grouping is
// the context window boundary, and chunks from unrelated documents are never
// batched together. How much neighbouring context influences a given vector
// is the provider's business; we only own the grouping contract.
type VoyageEmbedder struct {
	baseURL     string
	apiKey      string
	model       string
	rerankModel string
	dimensions  int
	client      *http.Client
}

// VoyageConfig holds the settings for constructing a VoyageEmbedder.
type VoyageConfig struct {
	// BaseURL is the API base URL (default: "https://api.voyageai.com/v1").
	BaseURL string
	// APIKey is the Voyage AI API key.
	APIKey string
	// Model is the contextualized embedding model (default: "voyage-context-3").
	Model string
	// RerankModel is the rerank model (default: "rerank-2.5").
	RerankModel string
	// Dimensions is the embedding vector length (default: 1024).
	Dimensions int
	// Timeout bounds each HTTP request (default: 60s).
	Timeout time.Duration
}

// NewVoyageEmbedder constructs a VoyageEmbedder from the given config.
func NewVoyageEmbedder(cfg *VoyageConfig) *VoyageEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.voyageai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "voyage-context-3"
	}
	if cfg.RerankModel == "" {
		cfg.RerankModel = "rerank-2.5"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &VoyageEmbedder{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		rerankModel: cfg.RerankModel,
		dimensions:  cfg.Dimensions,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the embedding model identifier.
func (e *VoyageEmbedder) Model() string { return e.model }

// RerankModel returns the rerank model identifier.
func (e *VoyageEmbedder) RerankModel() string { return e.rerankModel }

// Dimensions returns the fixed output vector size.
func (e *VoyageEmbedder) Dimensions() int { return e.dimensions }

// voyageEmbedRequest is the JSON body sent to /contextualizedembeddings.
// Inputs is a list of documents, each a list of chunk texts; one request
// carries one context window per inner list.
type voyageEmbedRequest struct {
	Inputs          [][]string `json:"inputs"`
	Model           string     `json:"model"`
	InputType       string     `json:"input_type"`
	OutputDimension int        `json:"output_dimension,omitempty"`
}

// voyageEmbedResponse is the JSON body returned from /contextualizedembeddings.
type voyageEmbedResponse struct {
	Data []struct {
		Index int `json:"index"`
		Data  []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// EmbedDocuments embeds one document's chunk texts as a single contextualized
// batch. The returned slice is parallel to texts.
func (e *VoyageEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("voyage embedder: no texts to embed")
	}

	resp, err := e.embed(ctx, [][]string{texts}, inputTypeDocument)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("voyage embedder: expected 1 result group, got %d", len(resp.Data))
	}

	group := resp.Data[0]
	if len(group.Data) != len(texts) {
		return nil, fmt.Errorf("voyage embedder: expected %d embeddings, got %d", len(texts), len(group.Data))
	}

	// The API may return entries out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range group.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("voyage embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}
	for i, v := range embeddings {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("voyage embedder: embedding %d has dimension %d, want %d", i, len(v), e.dimensions)
		}
	}
	return embeddings, nil
}

// EmbedQuery embeds a single query string.
func (e *VoyageEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embed(ctx, [][]string{{text}}, inputTypeQuery)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != 1 || len(resp.Data[0].Data) != 1 {
		return nil, fmt.Errorf("voyage embedder: expected a single query embedding")
	}
	vec := resp.Data[0].Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("voyage embedder: query embedding has dimension %d, want %d", len(vec), e.dimensions)
	}
	return vec, nil
}

// embed issues one contextualized embeddings request.
func (e *VoyageEmbedder) embed(ctx context.Context, inputs [][]string, inputType string) (*voyageEmbedResponse, error) {
	body := voyageEmbedRequest{
		Inputs:          inputs,
		Model:           e.model,
		InputType:       inputType,
		OutputDimension: e.dimensions,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("voyage embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/contextualizedembeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("voyage embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result voyageEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("voyage embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Detail != "" {
			msg = result.Detail
		}
		return nil, fmt.Errorf("voyage embedder: %s", msg)
	}

	return &result, nil
}

// voyageRerankRequest is the JSON body sent to /rerank.
type voyageRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopK      int      `json:"top_k,omitempty"`
}

// voyageRerankResponse is the JSON body returned from /rerank.
type voyageRerankResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float32 `json:"relevance_score"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// Rerank scores documents against query with the rerank model and returns
// at most topK results, most relevant first.
func (e *VoyageEmbedder) Rerank(ctx context.Context, query string, documents []string, topK int) ([]rag.RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body := voyageRerankRequest{
		Query:     query,
		Documents: documents,
		Model:     e.rerankModel,
		TopK:      topK,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("voyage reranker: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("voyage reranker: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage reranker: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result voyageRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("voyage reranker: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Detail != "" {
			msg = result.Detail
		}
		return nil, fmt.Errorf("voyage reranker: %s", msg)
	}

	out := make([]rag.RerankResult, 0, len(result.Data))
	for _, d := range result.Data {
		out = append(out, rag.RerankResult{Index: d.Index, Score: d.RelevanceScore})
	}
	return out, nil
}
