package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/generator"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// natural language question grounded in the ingested corpus.
func NewAskCmd() *cobra.Command {
	var session string
	var rerank bool
	var topK int
	var product string
	var contentType string
	var version string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question answered from the ingested documentation",
		Long: `Ask a natural language question. The answer is grounded in passages
retrieved from the ingested documentation corpus; when no relevant context
exists the model is instructed to say it does not know.

Pass --session to keep a conversation going across invocations; prior turns
from the same session are replayed into the prompt.

Examples:
  docqa ask "how often are backups taken?"
  docqa ask --session ops --rerank "and what is the retention window?"
  docqa ask --product kubernetes "how do I drain a node?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			pipeline, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer pipeline.Close()

			history, closeHistory := openHistory(log)
			defer closeHistory()

			gen, err := generator.New(&generator.Config{
				ChatModel:    chatModel,
				Retriever:    pipeline.retriever,
				Memory:       history,
				TopK:         topK,
				HistoryDepth: getEnvInt("DOCQA_HISTORY_DEPTH", 0),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise generator: %w", err)
			}

			filter, err := buildFilter(product, contentType, version, "", "")
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			result, err := gen.Generate(ctx, args[0], generator.Options{
				SessionID: session,
				Rerank:    rerank,
				Filter:    filter,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(result.Answer)
			if result.HistoryDegraded {
				fmt.Fprintln(os.Stderr, "warning: conversation history unavailable for this answer")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session name for multi-turn conversations")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Rerank retrieved passages with the rerank model")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages to ground the answer in (default from config)")
	cmd.Flags().StringVar(&product, "product", "", "Restrict retrieval to one product")
	cmd.Flags().StringVar(&contentType, "type", "", "Restrict retrieval to one content type (reference, tutorial, guide, ...)")
	cmd.Flags().StringVar(&version, "doc-version", "", "Restrict retrieval to one documented version")

	return cmd
}
