package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/siftd/sift/internal/data"
)

// syncConcurrency bounds how many datasets index at once during a catalog
// sweep. Writers within one dataset are serialized by the per-dataset lock.
const syncConcurrency = 4

// Indexer drives the index lifecycle for every dataset: it decides between
// no-op, delta-clone and full rebuild, streams entities into the new index,
// validates the result and swaps the alias.
type Indexer struct {
	provider SearchProvider
	source   data.Source
	prefix   string
	alias    string
	log      *slog.Logger

	// MaxFailRatio is the tolerated share of failed bulk items before a job
	// aborts. Zero means any failure is fatal.
	MaxFailRatio float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	entitiesIndexed metric.Int64Counter
	itemsFailed     metric.Int64Counter
	syncRuns        metric.Int64Counter
}

// NewIndexer wires an indexer over a provider and an upstream source.
func NewIndexer(provider SearchProvider, source data.Source, prefix, alias string, log *slog.Logger) *Indexer {
	meter := otel.Meter("sift/indexer")
	entitiesIndexed, _ := meter.Int64Counter("sift.index.entities",
		metric.WithDescription("Entities written during index builds"))
	itemsFailed, _ := meter.Int64Counter("sift.index.failures",
		metric.WithDescription("Bulk items rejected during index builds"))
	syncRuns, _ := meter.Int64Counter("sift.index.sync_runs",
		metric.WithDescription("Dataset sync attempts"))
	return &Indexer{
		provider:        provider,
		source:          source,
		prefix:          prefix,
		alias:           alias,
		log:             log,
		locks:           make(map[string]*sync.Mutex),
		entitiesIndexed: entitiesIndexed,
		itemsFailed:     itemsFailed,
		syncRuns:        syncRuns,
	}
}

// SyncAll indexes every dataset in the catalog towards its current version.
// Datasets run concurrently up to syncConcurrency; the first failure cancels
// the sweep.
func (ix *Indexer) SyncAll(ctx context.Context, force bool) error {
	datasets, err := ix.source.ListDatasets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for _, ds := range datasets {
		g.Go(func() error {
			return ix.Sync(ctx, ds, force)
		})
	}
	return g.Wait()
}

// Sync brings one dataset to its current catalog version. It returns
// ErrIndexerBusy when another sync of the same dataset is running.
func (ix *Indexer) Sync(ctx context.Context, dataset *data.Dataset, force bool) error {
	lock := ix.datasetLock(dataset.Name)
	if !lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrIndexerBusy, dataset.Name)
	}
	defer lock.Unlock()
	ix.syncRuns.Add(ctx, 1)

	target, err := ix.source.CurrentVersion(ctx, dataset)
	if err != nil {
		return fmt.Errorf("failed to resolve catalog version for %s: %w", dataset.Name, err)
	}
	current, err := ix.CurrentVersion(ctx, dataset)
	if err != nil {
		return err
	}
	log := ix.log.With("dataset", dataset.Name, "current", current, "target", target)

	if current == target && !force {
		log.Info("index is up to date")
		return nil
	}
	if current == "" || force {
		return ix.fullRebuild(ctx, log, dataset, target)
	}
	hasDelta, err := ix.source.HasDelta(ctx, dataset, current, target)
	if err != nil {
		return fmt.Errorf("failed to check delta availability for %s: %w", dataset.Name, err)
	}
	if !hasDelta {
		log.Info("delta chain unavailable, rebuilding")
		return ix.fullRebuild(ctx, log, dataset, target)
	}
	return ix.deltaUpdate(ctx, log, dataset, current, target)
}

// CurrentVersion resolves the dataset version currently behind the alias by
// inspecting its backing indices. Multiple family versions should not occur;
// if they do, the lexicographically greatest version wins.
func (ix *Indexer) CurrentVersion(ctx context.Context, dataset *data.Dataset) (string, error) {
	backing, err := ix.provider.GetBackingIndexes(ctx, ix.alias)
	if err != nil {
		return "", err
	}
	var versions []string
	for _, name := range backing {
		prefix, ds, version, err := ParseIndexName(name)
		if err != nil {
			continue
		}
		if prefix == ix.prefix && ds == dataset.Name {
			versions = append(versions, IndexVersionToDataset(version))
		}
	}
	if len(versions) == 0 {
		return "", nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions[0], nil
}

// fullRebuild creates a fresh index for the target version, streams the
// whole dataset into it, validates and promotes it, then removes the
// superseded versions.
func (ix *Indexer) fullRebuild(ctx context.Context, log *slog.Logger, dataset *data.Dataset, target string) error {
	log.Info("starting full rebuild")
	previous, err := ix.familyIndexes(ctx, dataset)
	if err != nil {
		return err
	}
	next, err := NewIndex(ix.provider, ix.prefix, dataset.Name, target)
	if err != nil {
		return err
	}
	if err := next.Upsert(ctx); err != nil {
		return err
	}
	stream := ix.source.Entities(ctx, dataset, target)
	if err := ix.fill(ctx, log, next, stream); err != nil {
		return ix.rollback(ctx, log, next, err)
	}
	count, err := next.Count(ctx)
	if err != nil {
		return ix.rollback(ctx, log, next, err)
	}
	if count == 0 {
		err := fmt.Errorf("%w: %s", ErrEmptyIndex, next.Name)
		return ix.rollback(ctx, log, next, err)
	}
	if err := next.MakeMain(ctx, ix.alias); err != nil {
		return ix.rollback(ctx, log, next, err)
	}
	log.Info("index promoted", "index", next.Name, "entities", count)
	ix.cleanup(ctx, log, previous, next.Name)
	return nil
}

// deltaUpdate clones the current index and applies only the changes between
// the two versions.
func (ix *Indexer) deltaUpdate(ctx context.Context, log *slog.Logger, dataset *data.Dataset, current, target string) error {
	log.Info("starting delta update")
	currentIdx, err := NewIndex(ix.provider, ix.prefix, dataset.Name, current)
	if err != nil {
		return err
	}
	next, err := currentIdx.Clone(ctx, target)
	if err != nil {
		return err
	}
	stream := ix.source.Delta(ctx, dataset, current, target)
	if err := ix.fill(ctx, log, next, stream); err != nil {
		return ix.rollback(ctx, log, next, err)
	}
	if err := next.MakeMain(ctx, ix.alias); err != nil {
		return ix.rollback(ctx, log, next, err)
	}
	count, err := next.Count(ctx)
	if err == nil {
		log.Info("index promoted", "index", next.Name, "entities", count)
	}
	ix.cleanup(ctx, log, []string{currentIdx.Name}, next.Name)
	return nil
}

// fill streams envelopes into an index and applies the failure threshold.
func (ix *Indexer) fill(ctx context.Context, log *slog.Logger, idx *Index, stream data.Stream) error {
	ok, failed, err := idx.BulkUpdate(ctx, stream)
	ix.entitiesIndexed.Add(ctx, int64(ok))
	ix.itemsFailed.Add(ctx, int64(failed))
	if err != nil {
		return err
	}
	if failed > 0 {
		ratio := float64(failed) / float64(ok+failed)
		log.Warn("bulk items failed", "ok", ok, "failed", failed)
		if ratio > ix.MaxFailRatio {
			return fmt.Errorf("%d of %d bulk items failed for %s", failed, ok+failed, idx.Name)
		}
	}
	return nil
}

// rollback deletes a partial index and passes the original error through.
func (ix *Indexer) rollback(ctx context.Context, log *slog.Logger, next *Index, cause error) error {
	log.Error("index build failed, rolling back", "index", next.Name, "error", cause)
	if err := next.Delete(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrNotFound) {
		log.Error("failed to delete partial index", "index", next.Name, "error", err)
	}
	return cause
}

// cleanup removes superseded family indices after a successful promotion.
// Deletion failures are logged, not fatal: the alias has already moved.
func (ix *Indexer) cleanup(ctx context.Context, log *slog.Logger, names []string, keep string) {
	for _, name := range names {
		if name == keep {
			continue
		}
		if err := ix.provider.DeleteIndex(ctx, name); err != nil {
			log.Warn("failed to delete superseded index", "index", name, "error", err)
			continue
		}
		log.Info("deleted superseded index", "index", name)
	}
}

// familyIndexes lists the alias-attached indices of a dataset family.
func (ix *Indexer) familyIndexes(ctx context.Context, dataset *data.Dataset) ([]string, error) {
	backing, err := ix.provider.GetBackingIndexes(ctx, ix.alias)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range backing {
		prefix, ds, _, err := ParseIndexName(name)
		if err != nil {
			continue
		}
		if prefix == ix.prefix && ds == dataset.Name {
			names = append(names, name)
		}
	}
	return names, nil
}

// datasetLock returns the mutex guarding one dataset's index lifecycle.
func (ix *Indexer) datasetLock(name string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	lock, ok := ix.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		ix.locks[name] = lock
	}
	return lock
}
