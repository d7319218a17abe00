// Package data defines the upstream catalog boundary: datasets, operation
// envelopes, and the source interface the indexer pulls entity streams from.
// The concrete catalog fetcher lives outside this module; a static in-memory
// source ships for tests and local runs.
package data

import (
	"context"
	"iter"
)

// Operation types carried by envelopes.
const (
	OpAdd = "ADD"
	OpMod = "MOD"
	OpDel = "DEL"
)

// Dataset is a named collection of entities, possibly composed of several
// upstream source datasets. Instances are shared read-only snapshots.
type Dataset struct {
	Name  string
	Title string
	// SourceNames are the transitively included upstream dataset identifiers.
	// Documents are filtered against these at query time.
	SourceNames []string
}

// Envelope is one streamed change: an operation type plus the entity payload.
// For DEL operations only the entity id is required.
type Envelope struct {
	Op     string         `json:"op"`
	Entity map[string]any `json:"entity"`
}

// Stream is a pull-based sequence of envelopes. Iteration stops early when
// the consumer breaks; a non-nil error ends the stream.
type Stream = iter.Seq2[Envelope, error]

// Source is the upstream catalog the indexer reads from.
type Source interface {
	// ListDatasets returns every dataset known to the catalog.
	ListDatasets(ctx context.Context) ([]*Dataset, error)

	// CurrentVersion returns the newest available version of a dataset.
	CurrentVersion(ctx context.Context, dataset *Dataset) (string, error)

	// Entities streams all entities of a dataset version, as ADD envelopes.
	Entities(ctx context.Context, dataset *Dataset, version string) Stream

	// Delta streams the changes between two versions.
	Delta(ctx context.Context, dataset *Dataset, fromVersion, toVersion string) Stream

	// HasDelta reports whether a contiguous delta chain exists between two
	// versions. When false, the indexer falls back to a full rebuild.
	HasDelta(ctx context.Context, dataset *Dataset, fromVersion, toVersion string) (bool, error)
}
