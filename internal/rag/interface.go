// Package rag defines the interfaces and data types for the retrieval
// pipeline: document chunks, vector storage, embedding, reranking, and
// retrieval. Concrete implementations (Qdrant, Voyage, etc.) satisfy these
// interfaces so the generator layer never depends on a specific backend.
package rag

import (
	"context"
	"time"
)

// Document is a raw ingested unit before chunking. It is immutable once
// ingested; re-ingesting the same SourceID replaces all derived chunks.
type Document struct {
	// SourceID is the unique identifier of the document's origin
	// (e.g. a docs page slug or file path).
	SourceID string

	// Body is the full free-text content of the document.
	Body string

	// Metadata holds the structured attributes inherited by every chunk.
	Metadata Metadata

	// SourceURL is the origin URL of the document, if any.
	SourceURL string

	// Format tags the body encoding (e.g. "markdown", "text").
	Format string
}

// Metadata is the closed set of structured attributes carried by documents
// and copied onto each of their chunks.
type Metadata struct {
	// ProductName is the product the document describes.
	ProductName string

	// ContentType classifies the document (e.g. "tutorial", "reference").
	ContentType string

	// Tags are free-form labels.
	Tags []string

	// Version is the documented product version, if any.
	Version string

	// Updated is when the source document was last updated.
	Updated time.Time
}

// Clone returns a deep copy of the metadata. Chunks carry cloned metadata so
// no slice storage is shared with the document or with sibling chunks.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	return out
}

// Chunk is a contiguous slice of a document's body sized to a token budget.
// Chunks are immutable after creation and carry a copy of their document's
// metadata, never a shared reference.
type Chunk struct {
	// ID is the deterministic unique identifier of this chunk.
	ID string

	// SourceID back-references the owning document.
	SourceID string

	// Text is the chunk content.
	Text string

	// Index is the zero-based position of this chunk within its document.
	Index int

	// SourceURL is the owning document's origin URL, if any.
	SourceURL string

	// Format is the owning document's format tag.
	Format string

	// Metadata is the document metadata copied onto this chunk.
	Metadata Metadata
}

// ScoredChunk is one retrieval hit: a chunk plus its relevance score.
// The score is cosine similarity for vector-order results, or the rerank
// model's relevance score when reranking was applied.
type ScoredChunk struct {
	Chunk
	// Score is the relevance score, higher is more relevant.
	Score float32
}

// QueryResult is the ranked outcome of one retrieval. It is ephemeral and
// never persisted.
type QueryResult struct {
	// Results are the hits, highest relevance first.
	Results []ScoredChunk

	// Reranked reports whether the ordering came from the rerank model
	// rather than raw vector similarity.
	Reranked bool
}

// IndexState reports whether the corpus store's vector index can serve
// searches.
type IndexState int

const (
	// IndexNotReady means the index is missing or still building; searches
	// must fail with ErrIndexUnavailable rather than return empty results.
	IndexNotReady IndexState = iota
	// IndexReady means the index is serving.
	IndexReady
)

// IndexDefinition declares the shape of the corpus index: the collection it
// lives in, the fixed embedding dimension, and the closed set of metadata
// fields that may appear in filters. Exactly one definition is active per
// corpus; filter keys outside FilterableFields are a configuration error.
type IndexDefinition struct {
	// Collection is the vector store collection name.
	Collection string

	// VectorSize is the embedding dimension, constant across the corpus.
	VectorSize int

	// FilterableFields is the set of metadata payload fields declared
	// filterable (e.g. "product_name", "content_type", "version", "updated").
	FilterableFields []string
}

// Filterable reports whether field is declared filterable by the definition.
func (d *IndexDefinition) Filterable(field string) bool {
	for _, f := range d.FilterableFields {
		if f == field {
			return true
		}
	}
	return false
}

// Filter restricts a vector search to chunks whose metadata matches. It is
// applied jointly with the similarity search, never as a post-filter, so
// non-matching candidates do not consume the result budget.
type Filter struct {
	// Match maps filterable field names to exact-match values.
	Match map[string]string

	// UpdatedAfter, when non-zero, keeps only chunks whose document was
	// updated at or after this instant.
	UpdatedAfter time.Time

	// UpdatedBefore, when non-zero, keeps only chunks whose document was
	// updated before this instant.
	UpdatedBefore time.Time
}

// IsZero reports whether the filter imposes no restriction.
func (f *Filter) IsZero() bool {
	return f == nil || (len(f.Match) == 0 && f.UpdatedAfter.IsZero() && f.UpdatedBefore.IsZero())
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of chunks with their pre-computed
	// embeddings. The embeddings slice must be parallel to chunks —
	// embeddings[i] is the vector for chunks[i]. Vectors whose length does
	// not match the index definition's VectorSize are rejected.
	Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Search returns up to k candidates nearest to the query embedding,
	// restricted by filter when non-nil. Candidates failing the filter do
	// not count against k.
	Search(ctx context.Context, queryEmbedding []float32, k int, filter *Filter) ([]ScoredChunk, error)

	// DeleteBySource removes every chunk derived from the given source
	// document. Used by re-ingestion.
	DeleteBySource(ctx context.Context, sourceID string) error

	// IndexStatus reports whether the vector index can serve searches.
	IndexStatus(ctx context.Context) (IndexState, error)

	// Count returns the number of chunks currently stored.
	Count(ctx context.Context) (uint64, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// EmbedDocuments converts the chunk texts of one document into their
	// embeddings, one batch per document so that contextualized providers
	// never mix context windows across unrelated documents. The returned
	// slice is parallel to texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery converts a query string into a single embedding of the
	// same dimension as document embeddings.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed output vector size of this embedder.
	Dimensions() int
}

// RerankResult is one reranked candidate: its position in the input slice
// and the model-computed relevance score.
type RerankResult struct {
	// Index points into the candidate slice passed to Rerank.
	Index int
	// Score is the rerank model's relevance score, higher is better.
	Score float32
}

// Reranker reorders a candidate list by model-computed relevance. The rerank
// ordering is strictly more precise than, but not required to agree with,
// vector-similarity ordering. Implementations must be safe for concurrent use.
type Reranker interface {
	// Rerank scores documents against query and returns at most topK
	// results, most relevant first.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)
}

// Retriever is the high-level interface used by the generator to fetch
// relevant passages for a query. Implementations must be safe for
// concurrent use.
type Retriever interface {
	// Search returns the ranked passages for the query. See SearchOptions
	// for knobs.
	Search(ctx context.Context, query string, opts SearchOptions) (*QueryResult, error)
}
