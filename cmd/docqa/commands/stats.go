package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/memory"
	"github.com/54b3r/docqa-go/internal/provider"
)

// NewStatsCmd constructs the `docqa stats` command, which reports corpus
// size and the configured model identifiers.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report corpus size and configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipe, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer pipe.Close()

			count, err := pipe.store.Count(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			// Provider config is resolved without a network call so stats
			// works even when the LLM backend is down.
			providerCfg := provider.ConfigFromEnv()

			fmt.Printf("collection:          %s\n", pipe.store.Definition().Collection)
			fmt.Printf("chunks:              %d\n", count)
			fmt.Printf("embedding model:     %s (%d dims)\n", embeddingModelName(pipe.embedder), pipe.embedder.Dimensions())
			if rm := rerankModelName(pipe.reranker); rm != "" {
				fmt.Printf("rerank model:        %s\n", rm)
			} else {
				fmt.Printf("rerank model:        (unsupported by embedding backend)\n")
			}
			fmt.Printf("llm backend:         %s\n", providerCfg.Backend)
			fmt.Printf("llm model:           %s\n", providerCfg.Model())

			// Session history stats are best-effort: history may be disabled.
			if dbPath, err := memory.DefaultDBPath(); err == nil {
				if store, err := memory.Open(getEnvOrDefault("DOCQA_HISTORY_DB", dbPath)); err == nil {
					defer store.Close()
					if hs, err := store.Stats(ctx); err == nil {
						fmt.Printf("history sessions:    %d (%d messages)\n", hs.Sessions, hs.Messages)
					}
				}
			}

			return nil
		},
	}
}
