package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// NewSearchCmd constructs the `docqa search` command, which runs retrieval
// over the corpus without generation and prints the ranked passages.
func NewSearchCmd() *cobra.Command {
	var k int
	var rerank bool
	var product string
	var contentType string
	var version string
	var updatedAfter string
	var updatedBefore string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the ingested documentation and print ranked passages",
		Long: `Search the vector index for passages relevant to the query and print
them ranked by relevance. Useful for inspecting what the generator would be
grounded in, and for tuning filters.

Examples:
  docqa search "backup retention"
  docqa search -k 10 --rerank "node drain procedure"
  docqa search --product mongodb --updated-after 2026-01-01T00:00:00Z "sharding"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipeline, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer pipeline.Close()

			filter, err := buildFilter(product, contentType, version, updatedAfter, updatedBefore)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			result, err := pipeline.retriever.Search(ctx, args[0], rag.SearchOptions{
				K:      k,
				Rerank: rerank,
				Filter: filter,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(result.Results) == 0 {
				fmt.Println("no matching passages")
				return nil
			}

			order := "vector similarity"
			if result.Reranked {
				order = "reranked"
			}
			fmt.Printf("%d passages (%s)\n\n", len(result.Results), order)

			for i, hit := range result.Results {
				fmt.Printf("%2d. [%.4f] %s #%d", i+1, hit.Score, hit.SourceID, hit.Index)
				if hit.Metadata.ProductName != "" {
					fmt.Printf("  (%s/%s)", hit.Metadata.ProductName, hit.Metadata.ContentType)
				}
				fmt.Printf("\n    %s\n\n", hit.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of passages to return (default from config)")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Rerank results with the rerank model")
	cmd.Flags().StringVar(&product, "product", "", "Restrict results to one product")
	cmd.Flags().StringVar(&contentType, "type", "", "Restrict results to one content type")
	cmd.Flags().StringVar(&version, "doc-version", "", "Restrict results to one documented version")
	cmd.Flags().StringVar(&updatedAfter, "updated-after", "", "Keep only documents updated at or after this RFC3339 instant")
	cmd.Flags().StringVar(&updatedBefore, "updated-before", "", "Keep only documents updated before this RFC3339 instant")

	return cmd
}
