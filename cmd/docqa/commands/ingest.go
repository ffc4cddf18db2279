package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// NewIngestCmd constructs the `docqa ingest` command, which runs the
// documentation ingestion pipeline to populate the vector store.
func NewIngestCmd() *cobra.Command {
	var corpusFiles []string
	var urls []string
	var tokenBudget int
	var overlap int
	var createIndex bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documentation into the vector store",
		Long: `Chunk, embed, and index documentation into the Qdrant vector store.

Two input forms are supported, and both can be combined in one run:
  --file  a JSON corpus file: an array of documents with source_id, body,
          and metadata (product_name, content_type, tags, version, updated)
  --url   a documentation page fetched over HTTP; metadata is inferred from
          the URL (host resolves the product, path segments the content type)

Each document is embedded as one contextualized batch, so chunks share the
embedding context of their own document only. Re-ingesting a source_id
replaces all of its chunks.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: docqa-docs)
  EMBEDDING_PROVIDER   Embedding backend: voyage, ollama, openai, azure (default: voyage)
  VOYAGE_API_KEY       API key for the default Voyage backend

Examples:
  docqa ingest --file corpus.json
  docqa ingest --url https://www.mongodb.com/docs/manual/core/backups/
  docqa ingest --create-index --file corpus.json --url https://kubernetes.io/docs/concepts/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(corpusFiles) == 0 && len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --file or --url is required")
			}

			pipe, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer pipe.Close()

			if createIndex {
				if err := pipe.store.EnsureIndex(ctx, false); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("index ensured", slog.String("collection", pipe.store.Definition().Collection))
			}

			pipeline, err := ingestion.NewPipeline(pipe.embedder, pipe.store, &ingestion.Config{
				TokenBudget: tokenBudget,
				Overlap:     overlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			var docs []rag.Document
			for _, path := range corpusFiles {
				loaded, err := ingestion.LoadCorpus(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("corpus loaded", slog.String("file", path), slog.Int("documents", len(loaded)))
				docs = append(docs, loaded...)
			}
			for _, u := range urls {
				doc, err := pipeline.Fetch(ctx, u)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("page fetched",
					slog.String("url", u),
					slog.String("product", doc.Metadata.ProductName),
					slog.String("content_type", doc.Metadata.ContentType),
				)
				docs = append(docs, doc)
			}

			log.Info("starting ingestion", slog.Int("documents", len(docs)))

			if err := pipeline.Ingest(ctx, docs, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("documents", len(docs)))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&corpusFiles, "file", "f", nil, "JSON corpus file to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Documentation URL to ingest (repeatable)")
	cmd.Flags().IntVar(&tokenBudget, "token-budget", 0, "Tokens per chunk (default 200)")
	cmd.Flags().IntVar(&overlap, "overlap", -1, "Token overlap between adjacent chunks (default 20; 0 disables)")
	cmd.Flags().BoolVar(&createIndex, "create-index", false, "Create the collection first if it does not exist")

	return cmd
}
