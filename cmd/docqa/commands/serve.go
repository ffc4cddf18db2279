package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/generator"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server exposing the question-answering API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server on localhost.

The server exposes the REST API: POST /api/query, POST /api/search,
GET /api/history, POST /api/history/clear, GET /api/stats, plus liveness
(/api/health), readiness (/api/ready), and Prometheus metrics (/metrics).

Set DOCQA_API_KEY to require Bearer token authentication on the API routes.

Examples:
  docqa serve
  docqa serve --port 9090
  MODEL_PROVIDER=azure docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			pipeline, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer pipeline.Close()

			history, closeHistory := openHistory(log)
			defer closeHistory()

			gen, err := generator.New(&generator.Config{
				ChatModel:    chatModel,
				Retriever:    pipeline.retriever,
				Memory:       history,
				TopK:         getEnvInt("RETRIEVAL_TOP_K", 0),
				HistoryDepth: getEnvInt("DOCQA_HISTORY_DEPTH", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise generator: %w", err)
			}

			pingers := []server.Pinger{
				server.NewQdrantPinger(pipeline.store.Client()),
				server.NewEmbedderPinger(pipeline.embedder),
				server.NewLLMPinger(chatModel, string(providerCfg.Backend)),
			}

			srv, err := server.New(gen, pipeline.retriever, history, pipeline.store, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("DOCQA_API_KEY"),
				Stats: server.StatsInfo{
					EmbeddingModel:     embeddingModelName(pipeline.embedder),
					RerankModel:        rerankModelName(pipeline.reranker),
					EmbeddingDimension: pipeline.embedder.Dimensions(),
					LLMBackend:         string(providerCfg.Backend),
					LLMModel:           providerCfg.Model(),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
