package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// NewIndexCmd constructs the `docqa index` command group for vector index
// administration: create, recreate, and status.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Administer the vector index",
		Long: `Administer the Qdrant collection backing the documentation corpus.

The collection is declared with a fixed vector size (from the configured
embedding backend) and the closed set of filterable payload fields. Queries
against a missing or still-building index fail with a distinct "index
unavailable" condition rather than returning empty results.`,
	}

	cmd.AddCommand(
		newIndexCreateCmd(),
		newIndexRecreateCmd(),
		newIndexStatusCmd(),
	)

	return cmd
}

func newIndexCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the collection and its payload indexes if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipe, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("index create: %w", err)
			}
			defer pipe.Close()

			if err := pipe.store.EnsureIndex(ctx, false); err != nil {
				return fmt.Errorf("index create: %w", err)
			}

			def := pipe.store.Definition()
			fmt.Printf("collection %q ready (vector size %d, filterable fields: %v)\n",
				def.Collection, def.VectorSize, def.FilterableFields)
			return nil
		},
	}
}

func newIndexRecreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recreate",
		Short: "Drop and recreate the collection, discarding all chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipe, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("index recreate: %w", err)
			}
			defer pipe.Close()

			log.Warn("recreating collection, all chunks will be lost",
				slog.String("collection", pipe.store.Definition().Collection),
			)
			if err := pipe.store.EnsureIndex(ctx, true); err != nil {
				return fmt.Errorf("index recreate: %w", err)
			}

			fmt.Printf("collection %q recreated\n", pipe.store.Definition().Collection)
			return nil
		},
	}
}

func newIndexStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the index is ready and how many chunks it holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipe, err := buildPipeline(log)
			if err != nil {
				return fmt.Errorf("index status: %w", err)
			}
			defer pipe.Close()

			def := pipe.store.Definition()
			state, err := pipe.store.IndexStatus(ctx)
			if err != nil {
				return fmt.Errorf("index status: %w", err)
			}

			if state != rag.IndexReady {
				fmt.Printf("collection %q: NOT READY\n", def.Collection)
				return nil
			}

			count, err := pipe.store.Count(ctx)
			if err != nil {
				return fmt.Errorf("index status: %w", err)
			}
			fmt.Printf("collection %q: ready, %d chunks (vector size %d)\n",
				def.Collection, count, def.VectorSize)
			return nil
		},
	}
}
