package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
)

// SearchOptions are the per-call knobs for Retriever.Search.
type SearchOptions struct {
	// K is the number of passages to return. If zero the retriever's
	// configured default is used.
	K int

	// Filter restricts results to chunks whose metadata matches. May be
	// nil. Fields not declared filterable by the active IndexDefinition
	// cause ErrFilterNotIndexed.
	Filter *Filter

	// Rerank requests model-based reranking of an over-fetched candidate
	// pool. The reranked order takes precedence over vector-similarity
	// order.
	Rerank bool
}

// RetrieverConfig holds the construction-time settings for VectorRetriever.
type RetrieverConfig struct {
	// DefaultK is the result count used when SearchOptions.K is zero.
	// Defaults to 5.
	DefaultK int

	// OverfetchFactor multiplies K to size the candidate pool when
	// reranking is requested. Defaults to 4.
	OverfetchFactor int

	// RerankFailHard surfaces ErrRerankUnavailable when the rerank provider
	// fails. The zero value falls back to vector-similarity order with a
	// warning, which is the default degrade policy.
	RerankFailHard bool

	// ProviderTimeout bounds each embedder, store, and reranker call.
	// Defaults to 30s.
	ProviderTimeout time.Duration
}

// VectorRetriever implements Retriever by combining an Embedder, a
// VectorStore, and an optional Reranker. It embeds the query at search time,
// delegates similarity search to the store, and applies the rerank step when
// requested.
type VectorRetriever struct {
	embedder Embedder
	store    VectorStore
	reranker Reranker // nil when the embedding backend has no rerank support
	def      *IndexDefinition
	cfg      RetrieverConfig
}

// NewRetriever constructs a VectorRetriever. reranker may be nil; in that
// case every reranked search follows the RerankFailHard policy.
func NewRetriever(embedder Embedder, store VectorStore, reranker Reranker, def *IndexDefinition, cfg RetrieverConfig) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if def == nil {
		return nil, fmt.Errorf("rag: index definition must not be nil")
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.OverfetchFactor <= 1 {
		cfg.OverfetchFactor = 4
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	return &VectorRetriever{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		def:      def,
		cfg:      cfg,
	}, nil
}

// Search embeds the query, runs the filtered ANN search, optionally reranks,
// and returns the top results highest relevance first. Ties are broken by
// document order (source id, then chunk index) so identical corpora yield
// identical rankings.
func (r *VectorRetriever) Search(ctx context.Context, query string, opts SearchOptions) (*QueryResult, error) {
	if query == "" {
		return nil, fmt.Errorf("rag: %w: query must not be empty", ErrInvalidInput)
	}
	k := opts.K
	if k <= 0 {
		k = r.cfg.DefaultK
	}

	// Validate the filter against the index definition before any network
	// call, so misconfiguration never silently widens a search.
	if err := r.validateFilter(opts.Filter); err != nil {
		return nil, err
	}

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	pool := k
	if opts.Rerank {
		pool = k * r.cfg.OverfetchFactor
	}

	candidates, err := r.searchStore(ctx, vec, pool, opts.Filter)
	if err != nil {
		return nil, err
	}

	sortByScore(candidates)

	if opts.Rerank && len(candidates) > 0 {
		reranked, err := r.rerank(ctx, query, candidates, k)
		if err != nil {
			if r.cfg.RerankFailHard {
				return nil, err
			}
			logging.FromContext(ctx).Warn("rag: rerank failed, falling back to vector order",
				slog.Any("error", err),
			)
		} else {
			return &QueryResult{Results: reranked, Reranked: true}, nil
		}
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return &QueryResult{Results: candidates}, nil
}

// validateFilter rejects filters referencing fields the active index
// definition does not declare filterable.
func (r *VectorRetriever) validateFilter(f *Filter) error {
	if f.IsZero() {
		return nil
	}
	for field := range f.Match {
		if !r.def.Filterable(field) {
			return fmt.Errorf("rag: %w: %q", ErrFilterNotIndexed, field)
		}
	}
	if (!f.UpdatedAfter.IsZero() || !f.UpdatedBefore.IsZero()) && !r.def.Filterable(FieldUpdated) {
		return fmt.Errorf("rag: %w: %q", ErrFilterNotIndexed, FieldUpdated)
	}
	return nil
}

// embedQuery wraps the embedder call with the provider timeout and maps all
// failures to ErrEmbedderUnavailable.
func (r *VectorRetriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query: %w: %w", ErrEmbedderUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("rag: %w: embedder returned empty vector", ErrEmbedderUnavailable)
	}
	return vec, nil
}

// searchStore wraps the store call with the provider timeout. Index state
// errors pass through unchanged; everything else becomes ErrStoreUnavailable.
func (r *VectorRetriever) searchStore(ctx context.Context, vec []float32, pool int, f *Filter) ([]ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()

	candidates, err := r.store.Search(ctx, vec, pool, f)
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) || errors.Is(err, ErrFilterNotIndexed) {
			return nil, err
		}
		return nil, fmt.Errorf("rag: vector search: %w: %w", ErrStoreUnavailable, err)
	}
	return candidates, nil
}

// rerank asks the reranker to reorder candidates and returns the top k with
// rerank scores attached. A nil reranker counts as a rerank failure so the
// fallback policy applies uniformly.
func (r *VectorRetriever) rerank(ctx context.Context, query string, candidates []ScoredChunk, k int) ([]ScoredChunk, error) {
	if r.reranker == nil {
		return nil, fmt.Errorf("rag: %w: no reranker configured", ErrRerankUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	results, err := r.reranker.Rerank(ctx, query, texts, k)
	if err != nil {
		return nil, fmt.Errorf("rag: rerank: %w: %w", ErrRerankUnavailable, err)
	}

	out := make([]ScoredChunk, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			return nil, fmt.Errorf("rag: %w: rerank index %d out of range [0, %d)", ErrRerankUnavailable, res.Index, len(candidates))
		}
		sc := candidates[res.Index]
		sc.Score = res.Score
		out = append(out, sc)
	}
	sortByScore(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// sortByScore orders hits by descending score, breaking ties by document
// order (source id, then chunk index) for deterministic rankings.
func sortByScore(hits []ScoredChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].SourceID != hits[j].SourceID {
			return hits[i].SourceID < hits[j].SourceID
		}
		return hits[i].Index < hits[j].Index
	})
}
