package index

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/schema"
)

const (
	testPrefix = "sift-entities"
	testAlias  = "sift-entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envOf(op string, entity map[string]any) data.Envelope {
	return data.Envelope{Op: op, Entity: entity}
}

func entityRecord(id, name string) map[string]any {
	return map[string]any{
		"id":     id,
		"schema": "Person",
		"properties": map[string]any{
			"name": []any{name},
		},
	}
}

func newTestIndexer(t *testing.T) (*Indexer, *MemoryProvider, *data.StaticSource, *data.Dataset) {
	t.Helper()
	provider := NewMemoryProvider(schema.Default())
	source := data.NewStaticSource()
	dataset := &data.Dataset{Name: "acme", SourceNames: []string{"acme"}}
	indexer := NewIndexer(provider, source, testPrefix, testAlias, testLogger())
	return indexer, provider, source, dataset
}

func TestFullRebuild(t *testing.T) {
	ctx := context.Background()
	indexer, provider, source, dataset := newTestIndexer(t)
	source.AddDataset(dataset, "v2")
	source.AddEntities("acme", "v2", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
		envOf("ADD", entityRecord("b", "Bob Builder")),
		envOf("ADD", entityRecord("c", "Carol Cooper")),
	})

	require.NoError(t, indexer.Sync(ctx, dataset, false))

	count, err := provider.Count(ctx, "sift-entities-acme-v2")
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	backing, err := provider.GetBackingIndexes(ctx, testAlias)
	require.NoError(t, err)
	require.Equal(t, []string{"sift-entities-acme-v2"}, backing)

	current, err := indexer.CurrentVersion(ctx, dataset)
	require.NoError(t, err)
	require.Equal(t, "v2", current)
}

func TestSyncIsNoOpWhenCurrent(t *testing.T) {
	ctx := context.Background()
	indexer, provider, source, dataset := newTestIndexer(t)
	source.AddDataset(dataset, "v2")
	source.AddEntities("acme", "v2", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
	})
	require.NoError(t, indexer.Sync(ctx, dataset, false))

	// Remove the stream; a no-op sync must not consult it.
	source.AddEntities("acme", "v2", nil)
	require.NoError(t, indexer.Sync(ctx, dataset, false))

	count, err := provider.Count(ctx, "sift-entities-acme-v2")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDeltaUpdate(t *testing.T) {
	ctx := context.Background()
	indexer, provider, source, dataset := newTestIndexer(t)
	source.AddDataset(dataset, "v1")
	source.AddEntities("acme", "v1", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
		envOf("ADD", entityRecord("b", "Bob Builder")),
	})
	require.NoError(t, indexer.Sync(ctx, dataset, false))

	source.SetVersion("acme", "v2")
	source.AddDelta("acme", "v1", "v2", []data.Envelope{
		envOf("MOD", entityRecord("a", "Alice A. Aardvark")),
		envOf("DEL", map[string]any{"id": "b"}),
		envOf("ADD", entityRecord("c", "Carol Cooper")),
	})
	require.NoError(t, indexer.Sync(ctx, dataset, false))

	require.Equal(t, []string{"a", "c"}, provider.DocumentIDs("sift-entities-acme-v2"))

	backing, err := provider.GetBackingIndexes(ctx, testAlias)
	require.NoError(t, err)
	require.Equal(t, []string{"sift-entities-acme-v2"}, backing)

	exists, err := provider.IndexExists(ctx, "sift-entities-acme-v1")
	require.NoError(t, err)
	require.False(t, exists, "superseded index must be deleted")

	// The MOD was applied as a full replace.
	doc := provider.Document("sift-entities-acme-v2", "a")
	require.Contains(t, doc["names"], "Alice A. Aardvark")
}

func TestEmptyBuildRollsBack(t *testing.T) {
	ctx := context.Background()
	indexer, provider, source, dataset := newTestIndexer(t)
	source.AddDataset(dataset, "v2")
	source.AddEntities("acme", "v2", []data.Envelope{})

	err := indexer.Sync(ctx, dataset, false)
	require.ErrorIs(t, err, ErrEmptyIndex)

	exists, err := provider.IndexExists(ctx, "sift-entities-acme-v2")
	require.NoError(t, err)
	require.False(t, exists, "partial index must be cleaned up")

	backing, err := provider.GetBackingIndexes(ctx, testAlias)
	require.NoError(t, err)
	require.Empty(t, backing, "alias must be unchanged")
}

func TestBrokenDeltaChainFallsBackToRebuild(t *testing.T) {
	ctx := context.Background()
	indexer, provider, source, dataset := newTestIndexer(t)
	source.AddDataset(dataset, "v1")
	source.AddEntities("acme", "v1", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
	})
	require.NoError(t, indexer.Sync(ctx, dataset, false))

	// No delta registered between v1 and v3.
	source.SetVersion("acme", "v3")
	source.AddEntities("acme", "v3", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
		envOf("ADD", entityRecord("d", "Dan Deckard")),
	})
	require.NoError(t, indexer.Sync(ctx, dataset, false))

	require.Equal(t, []string{"a", "d"}, provider.DocumentIDs("sift-entities-acme-v3"))
	backing, err := provider.GetBackingIndexes(ctx, testAlias)
	require.NoError(t, err)
	require.Equal(t, []string{"sift-entities-acme-v3"}, backing)
}

func TestForceRebuild(t *testing.T) {
	ctx := context.Background()
	indexer, provider, source, dataset := newTestIndexer(t)
	source.AddDataset(dataset, "v1")
	source.AddEntities("acme", "v1", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
	})
	require.NoError(t, indexer.Sync(ctx, dataset, false))

	source.AddEntities("acme", "v1", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
		envOf("ADD", entityRecord("b", "Bob Builder")),
	})
	require.NoError(t, indexer.Sync(ctx, dataset, true))

	count, err := provider.Count(ctx, "sift-entities-acme-v1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestSyncBusyLock(t *testing.T) {
	indexer, _, _, dataset := newTestIndexer(t)
	lock := indexer.datasetLock(dataset.Name)
	lock.Lock()
	defer lock.Unlock()

	err := indexer.Sync(context.Background(), dataset, false)
	require.ErrorIs(t, err, ErrIndexerBusy)
}

func TestMalformedEnvelopeFailsBuild(t *testing.T) {
	ctx := context.Background()
	indexer, provider, source, dataset := newTestIndexer(t)
	source.AddDataset(dataset, "v1")
	source.AddEntities("acme", "v1", []data.Envelope{
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
		envOf("ADD", map[string]any{"schema": "Person"}),
	})

	err := indexer.Sync(ctx, dataset, false)
	require.Error(t, err)

	exists, err := provider.IndexExists(ctx, "sift-entities-acme-v1")
	require.NoError(t, err)
	require.False(t, exists, "partial index must be cleaned up")
}
