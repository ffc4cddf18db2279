package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeEmbedder returns a canned query vector or a canned error.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }

// fakeStore serves a fixed candidate list and records the last search call.
type fakeStore struct {
	hits []ScoredChunk
	err  error

	lastK      int
	lastFilter *Filter
}

func (f *fakeStore) Upsert(_ context.Context, _ []Chunk, _ [][]float32) error { return nil }

func (f *fakeStore) Search(_ context.Context, _ []float32, k int, filter *Filter) ([]ScoredChunk, error) {
	f.lastK = k
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	if k > len(f.hits) {
		k = len(f.hits)
	}
	return append([]ScoredChunk(nil), f.hits[:k]...), nil
}

func (f *fakeStore) DeleteBySource(_ context.Context, _ string) error { return nil }

func (f *fakeStore) IndexStatus(_ context.Context) (IndexState, error) { return IndexReady, nil }

func (f *fakeStore) Count(_ context.Context) (uint64, error) { return uint64(len(f.hits)), nil }

func (f *fakeStore) Close() error { return nil }

// fakeReranker reverses the candidate order with descending synthetic scores,
// or fails with a canned error.
type fakeReranker struct {
	err    error
	called bool
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	n := len(documents)
	if topK < n {
		n = topK
	}
	out := make([]RerankResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, RerankResult{
			Index: len(documents) - 1 - i,
			Score: float32(n-i) / float32(n+1),
		})
	}
	return out, nil
}

// testChunks builds a descending-score candidate list doc-0 .. doc-(n-1).
func testChunks(n int) []ScoredChunk {
	out := make([]ScoredChunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ScoredChunk{
			Chunk: Chunk{
				ID:       fmt.Sprintf("id-%d", i),
				SourceID: fmt.Sprintf("doc-%d", i),
				Text:     fmt.Sprintf("passage %d", i),
			},
			Score: 1.0 - float32(i)*0.1,
		})
	}
	return out
}

func newTestRetriever(t *testing.T, store *fakeStore, reranker Reranker, cfg RetrieverConfig) *VectorRetriever {
	t.Helper()
	def := &IndexDefinition{
		Collection:       "test",
		VectorSize:       3,
		FilterableFields: DefaultFilterableFields,
	}
	r, err := NewRetriever(&fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}, store, reranker, def, cfg)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	return r
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func Test_Search_OrderedByDescendingScore(t *testing.T) {
	t.Parallel()

	// Deliberately shuffled store output.
	store := &fakeStore{hits: []ScoredChunk{
		{Chunk: Chunk{SourceID: "b"}, Score: 0.5},
		{Chunk: Chunk{SourceID: "a"}, Score: 0.9},
		{Chunk: Chunk{SourceID: "c"}, Score: 0.7},
	}}
	r := newTestRetriever(t, store, nil, RetrieverConfig{})

	got, err := r.Search(context.Background(), "backups", SearchOptions{K: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	for i := 1; i < len(got.Results); i++ {
		if got.Results[i].Score > got.Results[i-1].Score {
			t.Errorf("results not in non-increasing score order at %d: %v then %v",
				i, got.Results[i-1].Score, got.Results[i].Score)
		}
	}
	if got.Results[0].SourceID != "a" {
		t.Errorf("top result: expected source %q, got %q", "a", got.Results[0].SourceID)
	}
	if got.Reranked {
		t.Error("Reranked should be false without opts.Rerank")
	}
}

func Test_Search_TiesBrokenByDocumentOrder(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: []ScoredChunk{
		{Chunk: Chunk{SourceID: "zeta", Index: 0}, Score: 0.8},
		{Chunk: Chunk{SourceID: "alpha", Index: 2}, Score: 0.8},
		{Chunk: Chunk{SourceID: "alpha", Index: 1}, Score: 0.8},
	}}
	r := newTestRetriever(t, store, nil, RetrieverConfig{})

	got, err := r.Search(context.Background(), "q", SearchOptions{K: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	wantOrder := []struct {
		source string
		index  int
	}{
		{"alpha", 1}, {"alpha", 2}, {"zeta", 0},
	}
	for i, want := range wantOrder {
		if got.Results[i].SourceID != want.source || got.Results[i].Index != want.index {
			t.Errorf("position %d: expected %s#%d, got %s#%d",
				i, want.source, want.index, got.Results[i].SourceID, got.Results[i].Index)
		}
	}
}

func Test_Search_RerankOverfetchesAndReorders(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(12)}
	reranker := &fakeReranker{}
	r := newTestRetriever(t, store, reranker, RetrieverConfig{DefaultK: 3, OverfetchFactor: 4})

	got, err := r.Search(context.Background(), "q", SearchOptions{K: 3, Rerank: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if store.lastK != 12 {
		t.Errorf("candidate pool: expected k*factor = 12, got %d", store.lastK)
	}
	if !reranker.called {
		t.Fatal("reranker was not invoked")
	}
	if !got.Reranked {
		t.Error("Reranked should be true on successful rerank")
	}
	if len(got.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got.Results))
	}
	// The fake reranker reverses order, so the last vector hit wins.
	if got.Results[0].SourceID != "doc-11" {
		t.Errorf("top reranked result: expected doc-11, got %s", got.Results[0].SourceID)
	}
}

func Test_Search_RerankFailureFallsBackToVectorOrder(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(8)}
	reranker := &fakeReranker{err: errors.New("429 too many requests")}
	r := newTestRetriever(t, store, reranker, RetrieverConfig{DefaultK: 2})

	got, err := r.Search(context.Background(), "q", SearchOptions{Rerank: true})
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if got.Reranked {
		t.Error("Reranked must be false after fallback")
	}
	if len(got.Results) != 2 {
		t.Fatalf("expected 2 results after fallback truncation, got %d", len(got.Results))
	}
	if got.Results[0].SourceID != "doc-0" {
		t.Errorf("fallback order: expected doc-0 first, got %s", got.Results[0].SourceID)
	}
}

func Test_Search_RerankFailureSurfacesWhenFailHard(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(4)}
	reranker := &fakeReranker{err: errors.New("rerank provider down")}
	r := newTestRetriever(t, store, reranker, RetrieverConfig{RerankFailHard: true})

	_, err := r.Search(context.Background(), "q", SearchOptions{Rerank: true})
	if !errors.Is(err, ErrRerankUnavailable) {
		t.Fatalf("expected ErrRerankUnavailable, got %v", err)
	}
}

// Test_Search_ZeroConfigDefaultsToFallback pins the degrade policy of an
// all-defaults RetrieverConfig: a failing reranker must not fail the search.
func Test_Search_ZeroConfigDefaultsToFallback(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(6)}
	reranker := &fakeReranker{err: errors.New("provider down")}
	r := newTestRetriever(t, store, reranker, RetrieverConfig{})

	got, err := r.Search(context.Background(), "q", SearchOptions{K: 3, Rerank: true})
	if err != nil {
		t.Fatalf("zero-value config must fall back to vector order, got error: %v", err)
	}
	if got.Reranked {
		t.Error("Reranked must be false after fallback")
	}
	if len(got.Results) != 3 || got.Results[0].SourceID != "doc-0" {
		t.Errorf("expected top-3 vector-order results, got %+v", got.Results)
	}
}

func Test_Search_NilRerankerFollowsFailHardPolicy(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(4)}

	r := newTestRetriever(t, store, nil, RetrieverConfig{})
	got, err := r.Search(context.Background(), "q", SearchOptions{K: 2, Rerank: true})
	if err != nil {
		t.Fatalf("expected vector fallback with nil reranker, got %v", err)
	}
	if got.Reranked {
		t.Error("Reranked must be false with nil reranker")
	}

	strict := newTestRetriever(t, store, nil, RetrieverConfig{RerankFailHard: true})
	if _, err := strict.Search(context.Background(), "q", SearchOptions{K: 2, Rerank: true}); !errors.Is(err, ErrRerankUnavailable) {
		t.Fatalf("expected ErrRerankUnavailable with nil reranker and fail-hard, got %v", err)
	}
}

func Test_Search_FilterValidation(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(2)}
	r := newTestRetriever(t, store, nil, RetrieverConfig{})

	cases := []struct {
		name    string
		filter  *Filter
		wantErr error
	}{
		{"nil filter ok", nil, nil},
		{"declared field ok", &Filter{Match: map[string]string{FieldProductName: "mongodb"}}, nil},
		{"undeclared field rejected", &Filter{Match: map[string]string{"price": "0"}}, ErrFilterNotIndexed},
		{"date range ok", &Filter{UpdatedAfter: time.Unix(1700000000, 0)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Search(context.Background(), "q", SearchOptions{Filter: tc.filter})
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func Test_Search_UndeclaredRangeFieldRejected(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(2)}
	def := &IndexDefinition{
		Collection:       "test",
		VectorSize:       3,
		FilterableFields: []string{FieldProductName}, // no "updated"
	}
	r, err := NewRetriever(&fakeEmbedder{vec: []float32{1, 2, 3}}, store, nil, def, RetrieverConfig{})
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	_, err = r.Search(context.Background(), "q", SearchOptions{
		Filter: &Filter{UpdatedBefore: time.Unix(1700000000, 0)},
	})
	if !errors.Is(err, ErrFilterNotIndexed) {
		t.Fatalf("expected ErrFilterNotIndexed for undeclared updated field, got %v", err)
	}
}

func Test_Search_FilterReachesStore(t *testing.T) {
	t.Parallel()

	store := &fakeStore{hits: testChunks(2)}
	r := newTestRetriever(t, store, nil, RetrieverConfig{})

	filter := &Filter{Match: map[string]string{FieldContentType: "tutorial"}}
	if _, err := r.Search(context.Background(), "q", SearchOptions{Filter: filter}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.lastFilter == nil || store.lastFilter.Match[FieldContentType] != "tutorial" {
		t.Errorf("filter not passed through to store: %+v", store.lastFilter)
	}
}

func Test_Search_IndexNotReadyIsNotEmptyResult(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: fmt.Errorf("rag: %w: collection absent", ErrIndexUnavailable)}
	r := newTestRetriever(t, store, nil, RetrieverConfig{})

	got, err := r.Search(context.Background(), "q", SearchOptions{})
	if got != nil {
		t.Errorf("expected nil result, got %+v", got)
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func Test_Search_StoreFailureIsStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("connection refused")}
	r := newTestRetriever(t, store, nil, RetrieverConfig{})

	_, err := r.Search(context.Background(), "q", SearchOptions{})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func Test_Search_EmbedderFailureIsEmbedderUnavailable(t *testing.T) {
	t.Parallel()

	def := &IndexDefinition{Collection: "test", VectorSize: 3, FilterableFields: DefaultFilterableFields}
	r, err := NewRetriever(&fakeEmbedder{err: errors.New("401 unauthorized")}, &fakeStore{}, nil, def, RetrieverConfig{})
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	_, err = r.Search(context.Background(), "q", SearchOptions{})
	if !errors.Is(err, ErrEmbedderUnavailable) {
		t.Fatalf("expected ErrEmbedderUnavailable, got %v", err)
	}
}

func Test_Search_EmptyQueryRejected(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &fakeStore{}, nil, RetrieverConfig{})
	_, err := r.Search(context.Background(), "", SearchOptions{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func Test_NewRetriever_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	def := &IndexDefinition{Collection: "test", VectorSize: 3}
	emb := &fakeEmbedder{vec: []float32{1, 2, 3}}
	store := &fakeStore{}

	if _, err := NewRetriever(nil, store, nil, def, RetrieverConfig{}); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(emb, nil, nil, def, RetrieverConfig{}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewRetriever(emb, store, nil, nil, RetrieverConfig{}); err == nil {
		t.Error("expected error for nil index definition")
	}
}
