// Package ingestion implements the corpus ingestion pipeline.
// It loads documentation documents from a JSON corpus file or fetches them
// over HTTP, chunks the body text, embeds each document's chunks as one
// contextualized batch, and upserts the results into the vector store.
// This pipeline is invoked by the `docqa ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/54b3r/docqa-go/internal/chunk"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// TokenBudget is the maximum number of tokens per chunk.
	// Defaults to chunk.DefaultTokenBudget if zero.
	TokenBudget int

	// Overlap is the number of tokens shared between consecutive chunks.
	// Defaults to chunk.DefaultOverlap if negative.
	Overlap int

	// HTTPTimeout is the timeout for each document fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the load → chunk → embed → upsert flow for a set of
// documents. Chunks from one document are embedded together so the provider
// can contextualize them; chunks from different documents never share a batch.
type Pipeline struct {
	// embedder converts chunk texts into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// params holds the resolved chunking parameters.
	params chunk.Params

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching documents.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docqa-go/1.0 (documentation ingestion)"
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		params:   chunk.Params{TokenBudget: cfg.TokenBudget, Overlap: cfg.Overlap},
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// corpusDocument is the JSON wire shape of one document in a corpus file.
type corpusDocument struct {
	SourceID string   `json:"source_id"`
	Body     string   `json:"body"`
	URL      string   `json:"url,omitempty"`
	Format   string   `json:"format,omitempty"`
	Metadata struct {
		ProductName string   `json:"product_name,omitempty"`
		ContentType string   `json:"content_type,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		Version     string   `json:"version,omitempty"`
		Updated     string   `json:"updated,omitempty"` // RFC 3339
	} `json:"metadata"`
}

// LoadCorpus reads a JSON corpus file (an array of documents) into Document
// values. Documents without a source_id or body are rejected.
func LoadCorpus(path string) ([]rag.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read corpus %s: %w", path, err)
	}

	var wire []corpusDocument
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("ingestion: parse corpus %s: %w", path, err)
	}

	docs := make([]rag.Document, 0, len(wire))
	for i, cd := range wire {
		if cd.SourceID == "" {
			return nil, fmt.Errorf("ingestion: corpus document %d has no source_id: %w", i, rag.ErrInvalidInput)
		}
		if cd.Body == "" {
			return nil, fmt.Errorf("ingestion: corpus document %q has no body: %w", cd.SourceID, rag.ErrInvalidInput)
		}
		doc := rag.Document{
			SourceID:  cd.SourceID,
			Body:      cd.Body,
			SourceURL: cd.URL,
			Format:    cd.Format,
			Metadata: rag.Metadata{
				ProductName: cd.Metadata.ProductName,
				ContentType: cd.Metadata.ContentType,
				Tags:        cd.Metadata.Tags,
				Version:     cd.Metadata.Version,
			},
		}
		if cd.Metadata.Updated != "" {
			ts, err := time.Parse(time.RFC3339, cd.Metadata.Updated)
			if err != nil {
				return nil, fmt.Errorf("ingestion: corpus document %q has invalid updated timestamp %q: %w", cd.SourceID, cd.Metadata.Updated, rag.ErrInvalidInput)
			}
			doc.Metadata.Updated = ts
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Ingest chunks, embeds, and stores all provided documents. Re-ingesting a
// document replaces its prior chunks: existing chunks for the source are
// deleted before the new ones are upserted. Documents are processed
// sequentially and the first error aborts the run. Progress is reported via
// the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, docs []rag.Document, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, doc := range docs {
		texts, err := chunk.Split(doc.Body, p.params)
		if err != nil {
			return fmt.Errorf("ingestion: chunk %s: %w", doc.SourceID, err)
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", doc.SourceID, len(texts)))

		// One document per embed call keeps the contextualization boundary
		// aligned with the document.
		embeddings, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingestion: embed %s: %w", doc.SourceID, err)
		}

		chunks := make([]rag.Chunk, 0, len(texts))
		for i, text := range texts {
			chunks = append(chunks, rag.Chunk{
				ID:        chunkID(doc.SourceID, i),
				SourceID:  doc.SourceID,
				Text:      text,
				Index:     i,
				SourceURL: doc.SourceURL,
				Format:    doc.Format,
				// Clone so no chunk shares tag storage with the document
				// or with its siblings.
				Metadata: doc.Metadata.Clone(),
			})
		}

		if err := p.store.DeleteBySource(ctx, doc.SourceID); err != nil {
			return fmt.Errorf("ingestion: delete stale chunks for %s: %w", doc.SourceID, err)
		}
		if err := p.store.Upsert(ctx, chunks, embeddings); err != nil {
			return fmt.Errorf("ingestion: upsert %s: %w", doc.SourceID, err)
		}

		progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), doc.SourceID))
	}

	return nil
}

// Fetch retrieves a document body over HTTP and wraps it as a Document with
// metadata inferred from the URL. The URL doubles as the source identifier.
func (p *Pipeline) Fetch(ctx context.Context, url string) (rag.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/html, text/markdown")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rag.Document{}, fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: reading body: %w", err)
	}

	return rag.Document{
		SourceID:  url,
		Body:      string(body),
		SourceURL: url,
		Format:    "html",
		Metadata:  InferMetadata(url),
	}, nil
}

// chunkID generates a deterministic ID for a chunk based on its source
// identifier and sequence index, so re-ingestion overwrites in place. The ID
// is formatted as a UUID because Qdrant only accepts UUID or integer point IDs.
func chunkID(sourceID string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", sourceID, index)))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
