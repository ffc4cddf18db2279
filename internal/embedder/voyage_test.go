package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newVoyageTestServer returns an httptest server that records the last embed
// request body and serves canned contextualized-embedding responses.
func newVoyageTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestVoyageEmbedDocuments_SingleGroupPerRequest(t *testing.T) {
	t.Parallel()

	var got voyageEmbedRequest
	srv := newVoyageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contextualizedembeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// Respond out of order to exercise index placement.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"index": 0,
					"data": []map[string]any{
						{"index": 1, "embedding": []float32{0.4, 0.5, 0.6}},
						{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
					},
				},
			},
		})
	})

	e := NewVoyageEmbedder(&VoyageConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 3,
	})

	vecs, err := e.EmbedDocuments(context.Background(), []string{"chunk one", "chunk two"})
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}

	if len(got.Inputs) != 1 {
		t.Fatalf("expected one document group per request, got %d", len(got.Inputs))
	}
	if len(got.Inputs[0]) != 2 {
		t.Errorf("expected 2 chunks in the group, got %d", len(got.Inputs[0]))
	}
	if got.InputType != "document" {
		t.Errorf("input_type = %q, want %q", got.InputType, "document")
	}
	if got.Model != "voyage-context-3" {
		t.Errorf("model = %q, want default voyage-context-3", got.Model)
	}
	if got.OutputDimension != 3 {
		t.Errorf("output_dimension = %d, want 3", got.OutputDimension)
	}

	if len(vecs) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.4 {
		t.Errorf("embeddings not placed by index: %v", vecs)
	}
}

func TestVoyageEmbedQuery_InputType(t *testing.T) {
	t.Parallel()

	var got voyageEmbedRequest
	srv := newVoyageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"index": 0,
					"data": []map[string]any{
						{"index": 0, "embedding": []float32{1, 2}},
					},
				},
			},
		})
	})

	e := NewVoyageEmbedder(&VoyageConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 2,
	})

	vec, err := e.EmbedQuery(context.Background(), "how do I configure retention?")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if got.InputType != "query" {
		t.Errorf("input_type = %q, want %q", got.InputType, "query")
	}
	if len(vec) != 2 {
		t.Errorf("expected 2-dim vector, got %d", len(vec))
	}
}

func TestVoyageEmbedDocuments_DimensionMismatch(t *testing.T) {
	t.Parallel()

	srv := newVoyageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"index": 0,
					"data": []map[string]any{
						{"index": 0, "embedding": []float32{1, 2, 3, 4}},
					},
				},
			},
		})
	})

	e := NewVoyageEmbedder(&VoyageConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 3,
	})

	if _, err := e.EmbedDocuments(context.Background(), []string{"chunk"}); err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
}

func TestVoyageEmbedDocuments_APIError(t *testing.T) {
	t.Parallel()

	srv := newVoyageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"detail": "invalid api key"})
	})

	e := NewVoyageEmbedder(&VoyageConfig{
		BaseURL: srv.URL,
		APIKey:  "bad-key",
	})

	_, err := e.EmbedDocuments(context.Background(), []string{"chunk"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if want := "invalid api key"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should carry the API detail %q", err, want)
	}
}

func TestVoyageEmbedDocuments_EmptyInput(t *testing.T) {
	t.Parallel()

	e := NewVoyageEmbedder(&VoyageConfig{APIKey: "test-key"})
	if _, err := e.EmbedDocuments(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input, got nil")
	}
}

func TestVoyageRerank(t *testing.T) {
	t.Parallel()

	var got voyageRerankRequest
	srv := newVoyageTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 2, "relevance_score": 0.95},
				{"index": 0, "relevance_score": 0.41},
			},
		})
	})

	e := NewVoyageEmbedder(&VoyageConfig{BaseURL: srv.URL, APIKey: "test-key"})

	results, err := e.Rerank(context.Background(), "retention policy", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}

	if got.Model != "rerank-2.5" {
		t.Errorf("rerank model = %q, want default rerank-2.5", got.Model)
	}
	if got.TopK != 2 {
		t.Errorf("top_k = %d, want 2", got.TopK)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Index != 2 || results[0].Score != 0.95 {
		t.Errorf("first result = %+v, want index 2 score 0.95", results[0])
	}
}

func TestVoyageRerank_EmptyDocuments(t *testing.T) {
	t.Parallel()

	e := NewVoyageEmbedder(&VoyageConfig{APIKey: "test-key"})
	results, err := e.Rerank(context.Background(), "q", nil, 5)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for empty documents, got %v", results)
	}
}
