package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siftd/sift/internal/index"
	"github.com/siftd/sift/internal/schema"
)

var reindexForce bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-index all datasets if newer data is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		source, err := newSource()
		if err != nil {
			return err
		}
		model := schema.Default()
		pool := index.NewPool(settings, logger)
		defer pool.Close()
		provider, err := index.NewESProvider(ctx, pool, model, logger)
		if err != nil {
			return err
		}
		indexer := index.NewIndexer(provider, source, settings.IndexPrefix, settings.Alias(), logger)
		return indexer.SyncAll(ctx, reindexForce)
	},
}

var deltaUpdateCmd = &cobra.Command{
	Use:   "delta-update",
	Short: "Update the index with new data only",
	RunE: func(cmd *cobra.Command, args []string) error {
		// A delta update is a reindex without force: datasets with an intact
		// delta chain are cloned and patched instead of rebuilt.
		reindexForce = false
		return reindexCmd.RunE(cmd, args)
	},
}

func init() {
	reindexCmd.Flags().BoolVarP(&reindexForce, "force", "f", false, "rebuild even if the version is current")
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(deltaUpdateCmd)
}
