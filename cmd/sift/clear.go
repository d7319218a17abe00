package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siftd/sift/internal/index"
	"github.com/siftd/sift/internal/schema"
)

var clearIndexCmd = &cobra.Command{
	Use:   "clear-index",
	Short: "Delete every index under the configured prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool := index.NewPool(settings, logger)
		defer pool.Close()
		provider, err := index.NewESProvider(ctx, pool, schema.Default(), logger)
		if err != nil {
			return err
		}
		names, err := provider.ListIndexes(ctx, settings.IndexPrefix+"*")
		if err != nil {
			return err
		}
		for _, name := range names {
			if !strings.HasPrefix(name, settings.IndexPrefix) {
				continue
			}
			logger.Info("deleting index", "index", name)
			if err := provider.DeleteIndex(ctx, name); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearIndexCmd)
}
