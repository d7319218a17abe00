package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/index"
	"github.com/siftd/sift/internal/schema"
	"github.com/siftd/sift/internal/server"
)

// autoReindexInterval is how often the serve loop re-checks the catalog for
// new dataset versions when auto_reindex is enabled.
const autoReindexInterval = 30 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search and match requests",
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

		if settings.AutoReindex {
			go autoReindex(ctx, indexer)
		}
		srv := server.New(settings, model, provider, indexer, source, logger)
		return srv.ListenAndServe(ctx)
	},
}

// autoReindex keeps the index tracking the catalog in the background.
func autoReindex(ctx context.Context, indexer *index.Indexer) {
	ticker := time.NewTicker(autoReindexInterval)
	defer ticker.Stop()
	for {
		if err := indexer.SyncAll(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, index.ErrIndexerBusy) {
				logger.Warn("auto reindex skipped, indexer busy")
			} else {
				logger.Error("auto reindex failed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// newSource builds the upstream catalog source from configuration.
func newSource() (data.Source, error) {
	if settings.Manifest == "" {
		return nil, fmt.Errorf("manifest is not configured (set SIFT_MANIFEST or the manifest key)")
	}
	return data.NewManifestSource(settings.Manifest), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
