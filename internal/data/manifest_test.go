package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestManifestSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	entities := writeFile(t, dir, "entities.json",
		`{"op": "ADD", "entity": {"id": "a", "schema": "Person"}}
{"id": "b", "schema": "Person"}

`)
	delta := writeFile(t, dir, "delta.json",
		`{"op": "DEL", "entity": {"id": "a"}}
`)
	manifest := writeFile(t, dir, "manifest.json", `{
  "datasets": [
    {
      "name": "acme",
      "title": "ACME Watchlist",
      "source_names": ["acme", "acme_peps"],
      "version": "v2",
      "entities_url": "`+entities+`",
      "deltas": [{"from_version": "v1", "to_version": "v2", "url": "`+delta+`"}]
    }
  ]
}`)

	source := NewManifestSource(manifest)
	datasets, err := source.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	require.Equal(t, "acme", datasets[0].Name)
	require.Equal(t, []string{"acme", "acme_peps"}, datasets[0].SourceNames)

	version, err := source.CurrentVersion(ctx, datasets[0])
	require.NoError(t, err)
	require.Equal(t, "v2", version)

	var envelopes []Envelope
	for env, err := range source.Entities(ctx, datasets[0], "v2") {
		require.NoError(t, err)
		envelopes = append(envelopes, env)
	}
	require.Len(t, envelopes, 2)
	require.Equal(t, OpAdd, envelopes[0].Op)
	require.Equal(t, "a", envelopes[0].Entity["id"])
	// Bare entity lines are wrapped as ADD.
	require.Equal(t, OpAdd, envelopes[1].Op)
	require.Equal(t, "b", envelopes[1].Entity["id"])

	hasDelta, err := source.HasDelta(ctx, datasets[0], "v1", "v2")
	require.NoError(t, err)
	require.True(t, hasDelta)
	hasDelta, err = source.HasDelta(ctx, datasets[0], "v0", "v2")
	require.NoError(t, err)
	require.False(t, hasDelta)

	envelopes = envelopes[:0]
	for env, err := range source.Delta(ctx, datasets[0], "v1", "v2") {
		require.NoError(t, err)
		envelopes = append(envelopes, env)
	}
	require.Len(t, envelopes, 1)
	require.Equal(t, OpDel, envelopes[0].Op)
}

func TestManifestSourceVersionMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	manifest := writeFile(t, dir, "manifest.json",
		`{"datasets": [{"name": "acme", "version": "v2", "entities_url": "nowhere"}]}`)

	source := NewManifestSource(manifest)
	datasets, err := source.ListDatasets(ctx)
	require.NoError(t, err)

	// Source names default to the dataset's own name.
	require.Equal(t, []string{"acme"}, datasets[0].SourceNames)

	var streamErr error
	for _, err := range source.Entities(ctx, datasets[0], "v1") {
		streamErr = err
	}
	require.Error(t, streamErr, "requesting a version the manifest does not offer must fail")
}

func TestStaticSourceStreams(t *testing.T) {
	ctx := context.Background()
	source := NewStaticSource()
	dataset := &Dataset{Name: "acme", SourceNames: []string{"acme"}}
	source.AddDataset(dataset, "v1")
	source.AddEntities("acme", "v1", []Envelope{
		{Op: OpAdd, Entity: map[string]any{"id": "a"}},
	})

	version, err := source.CurrentVersion(ctx, dataset)
	require.NoError(t, err)
	require.Equal(t, "v1", version)

	count := 0
	for env, err := range source.Entities(ctx, dataset, "v1") {
		require.NoError(t, err)
		require.Equal(t, OpAdd, env.Op)
		count++
	}
	require.Equal(t, 1, count)

	var streamErr error
	for _, err := range source.Entities(ctx, dataset, "v9") {
		streamErr = err
	}
	require.Error(t, streamErr)
}
