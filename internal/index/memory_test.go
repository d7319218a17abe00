package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/schema"
)

func TestMemoryProviderLifecycle(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider(schema.Default())

	require.NoError(t, provider.UpsertIndex(ctx, "sift-entities-acme-v1"))
	// Upsert is idempotent.
	require.NoError(t, provider.UpsertIndex(ctx, "sift-entities-acme-v1"))

	exists, err := provider.IndexExists(ctx, "sift-entities-acme-v1")
	require.NoError(t, err)
	require.True(t, exists)

	ok, failed, err := provider.Update(ctx, sliceStream(
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
		envOf("ADD", entityRecord("b", "Bob Builder")),
	), "sift-entities-acme-v1")
	require.NoError(t, err)
	require.Equal(t, 2, ok)
	require.Zero(t, failed)

	count, err := provider.Count(ctx, "sift-entities-acme-v1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// Deleting a missing index is not an error.
	require.NoError(t, provider.DeleteIndex(ctx, "sift-entities-acme-v9"))
}

func TestMemoryProviderClone(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider(schema.Default())
	require.NoError(t, provider.UpsertIndex(ctx, "sift-entities-acme-v1"))
	_, _, err := provider.Update(ctx, sliceStream(
		envOf("ADD", entityRecord("a", "Alice Aardvark")),
	), "sift-entities-acme-v1")
	require.NoError(t, err)

	require.NoError(t, provider.CloneIndex(ctx, "sift-entities-acme-v1", "sift-entities-acme-v2"))
	require.Equal(t, []string{"a"}, provider.DocumentIDs("sift-entities-acme-v2"))

	// The clone is independent of its source.
	_, _, err = provider.Update(ctx, sliceStream(
		envOf("ADD", entityRecord("b", "Bob Builder")),
	), "sift-entities-acme-v2")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, provider.DocumentIDs("sift-entities-acme-v1"))

	// Cloning onto an existing index is a conflict.
	err = provider.CloneIndex(ctx, "sift-entities-acme-v1", "sift-entities-acme-v2")
	require.ErrorIs(t, err, ErrAlreadyExists)

	// Cloning a missing index fails.
	err = provider.CloneIndex(ctx, "sift-entities-acme-v9", "sift-entities-acme-v10")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProviderRolloverScopesToFamily(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider(schema.Default())
	for _, name := range []string{"sift-entities-acme-v1", "sift-entities-other-v1"} {
		require.NoError(t, provider.UpsertIndex(ctx, name))
		require.NoError(t, provider.Rollover(ctx, "sift-entities", name, familyOf(t, name)))
	}

	require.NoError(t, provider.UpsertIndex(ctx, "sift-entities-acme-v2"))
	require.NoError(t, provider.Rollover(ctx, "sift-entities", "sift-entities-acme-v2", "sift-entities-acme"))

	backing, err := provider.GetBackingIndexes(ctx, "sift-entities")
	require.NoError(t, err)
	// Only the acme family was detached; other datasets stay attached.
	require.Equal(t, []string{"sift-entities-acme-v2", "sift-entities-other-v1"}, backing)
}

func familyOf(t *testing.T, name string) string {
	t.Helper()
	prefix, dataset, _, err := ParseIndexName(name)
	require.NoError(t, err)
	family, err := IndexName(prefix, dataset, "")
	require.NoError(t, err)
	return family
}

func sliceStream(envelopes ...data.Envelope) data.Stream {
	return func(yield func(data.Envelope, error) bool) {
		for _, env := range envelopes {
			if !yield(env, nil) {
				return
			}
		}
	}
}
