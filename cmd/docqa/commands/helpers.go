package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/memory"
	"github.com/54b3r/docqa-go/internal/rag"
)

// defaultCollection is the Qdrant collection used when QDRANT_COLLECTION is
// not set.
const defaultCollection = "docqa-docs"

// retrievalPipeline bundles the long-lived retrieval components a command
// needs: the embedding backend, the Qdrant-backed corpus store, and the
// retriever composed from both.
type retrievalPipeline struct {
	embedder  rag.Embedder
	reranker  rag.Reranker
	store     *rag.QdrantStore
	retriever *rag.VectorRetriever
}

// Close releases the pipeline's Qdrant connection.
func (p *retrievalPipeline) Close() {
	_ = p.store.Close()
}

// buildPipeline validates the embedding configuration, connects to Qdrant,
// and wires up the retriever from environment settings.
func buildPipeline(log *slog.Logger) (*retrievalPipeline, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}

	emb, reranker, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	def := buildIndexDefinition(emb.Dimensions())
	store, err := buildStore(def)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(emb, store, reranker, def, rag.RetrieverConfig{
		DefaultK:        getEnvInt("RETRIEVAL_TOP_K", 5),
		OverfetchFactor: getEnvInt("RETRIEVAL_OVERFETCH_FACTOR", 4),
		RerankFailHard:  os.Getenv("RETRIEVAL_RERANK_FAIL_HARD") == "true",
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	log.Info("retrieval pipeline ready",
		slog.String("collection", def.Collection),
		slog.Int("vector_size", def.VectorSize),
		slog.Bool("rerank_capable", reranker != nil),
	)

	return &retrievalPipeline{
		embedder:  emb,
		reranker:  reranker,
		store:     store,
		retriever: retriever,
	}, nil
}

// buildIndexDefinition resolves the active index definition from the
// environment and the embedder's vector size.
func buildIndexDefinition(vectorSize int) *rag.IndexDefinition {
	return &rag.IndexDefinition{
		Collection:       getEnvOrDefault("QDRANT_COLLECTION", defaultCollection),
		VectorSize:       vectorSize,
		FilterableFields: rag.DefaultFilterableFields,
	}
}

// buildStore connects to Qdrant using environment configuration.
func buildStore(def *rag.IndexDefinition) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	store, err := rag.NewQdrantStore(&rag.QdrantConfig{
		Host:   host,
		Port:   port,
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: os.Getenv("QDRANT_TLS") == "true",
	}, def)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	return store, nil
}

// openHistory opens the session history store. DOCQA_HISTORY_DB overrides the
// default path (~/.docqa/history.db); "disabled" turns history off entirely.
// Failures are non-fatal: a nil store with a WARN log is returned so answering
// still works without memory.
func openHistory(log *slog.Logger) (memory.ChatStore, func()) {
	dbPath := os.Getenv("DOCQA_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = memory.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}

	hs, err := memory.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildFilter assembles a metadata filter from CLI flag values. Empty flags
// impose no restriction; a fully empty filter comes back nil.
func buildFilter(product, contentType, version, updatedAfter, updatedBefore string) (*rag.Filter, error) {
	f := &rag.Filter{Match: map[string]string{}}
	if product != "" {
		f.Match[rag.FieldProductName] = product
	}
	if contentType != "" {
		f.Match[rag.FieldContentType] = contentType
	}
	if version != "" {
		f.Match[rag.FieldVersion] = version
	}
	if updatedAfter != "" {
		t, err := time.Parse(time.RFC3339, updatedAfter)
		if err != nil {
			return nil, fmt.Errorf("invalid --updated-after (want RFC3339): %w", err)
		}
		f.UpdatedAfter = t
	}
	if updatedBefore != "" {
		t, err := time.Parse(time.RFC3339, updatedBefore)
		if err != nil {
			return nil, fmt.Errorf("invalid --updated-before (want RFC3339): %w", err)
		}
		f.UpdatedBefore = t
	}
	if f.IsZero() {
		return nil, nil
	}
	return f, nil
}

// embeddingModelName reports the embedding model identifier for display.
func embeddingModelName(emb rag.Embedder) string {
	if m, ok := emb.(interface{ Model() string }); ok {
		return m.Model()
	}
	return getEnvOrDefault("EMBEDDING_MODEL", "unknown")
}

// rerankModelName reports the rerank model identifier, empty when the
// embedding backend has no rerank capability.
func rerankModelName(reranker rag.Reranker) string {
	if reranker == nil {
		return ""
	}
	if m, ok := reranker.(interface{ RerankModel() string }); ok {
		return m.RerankModel()
	}
	return getEnvOrDefault("RERANK_MODEL", "unknown")
}

// getEnvOrDefault returns the env var value or fallback if unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
