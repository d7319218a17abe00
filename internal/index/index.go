package index

import (
	"context"
	"fmt"

	"github.com/siftd/sift/internal/data"
)

// Index is the facade over one concrete `<prefix>-<dataset>-<version>`
// index. It owns all mutations on that name and delegates to the provider.
type Index struct {
	provider SearchProvider
	prefix   string
	dataset  string
	version  string

	// Name is the full index name.
	Name string
}

// NewIndex builds the facade for a dataset at a catalog version. The version
// is encoded into its index form.
func NewIndex(provider SearchProvider, prefix, dataset, version string) (*Index, error) {
	name, err := IndexName(prefix, dataset, DatasetVersionToIndex(version))
	if err != nil {
		return nil, err
	}
	return &Index{
		provider: provider,
		prefix:   prefix,
		dataset:  dataset,
		version:  version,
		Name:     name,
	}, nil
}

// Exists reports whether the backing index exists.
func (i *Index) Exists(ctx context.Context) (bool, error) {
	return i.provider.IndexExists(ctx, i.Name)
}

// Upsert creates the backing index if missing.
func (i *Index) Upsert(ctx context.Context) error {
	return i.provider.UpsertIndex(ctx, i.Name)
}

// Delete removes the backing index.
func (i *Index) Delete(ctx context.Context) error {
	return i.provider.DeleteIndex(ctx, i.Name)
}

// Clone copies this index into a new version of the same dataset. Cloning
// onto the current version is rejected.
func (i *Index) Clone(ctx context.Context, version string) (*Index, error) {
	clone, err := NewIndex(i.provider, i.prefix, i.dataset, version)
	if err != nil {
		return nil, err
	}
	if clone.Name == i.Name {
		return nil, fmt.Errorf("%w: cannot clone index %s to itself", ErrBadIndexName, i.Name)
	}
	if err := i.provider.CloneIndex(ctx, i.Name, clone.Name); err != nil {
		return nil, err
	}
	return clone, nil
}

// MakeMain points the alias at this index, detaching every other version of
// the same dataset family.
func (i *Index) MakeMain(ctx context.Context, alias string) error {
	family, err := IndexName(i.prefix, i.dataset, "")
	if err != nil {
		return err
	}
	return i.provider.Rollover(ctx, alias, i.Name, family)
}

// BulkUpdate streams envelopes into the backing index.
func (i *Index) BulkUpdate(ctx context.Context, stream data.Stream) (int, int, error) {
	return i.provider.Update(ctx, stream, i.Name)
}

// Count returns the number of documents in the backing index.
func (i *Index) Count(ctx context.Context) (int64, error) {
	return i.provider.Count(ctx, i.Name)
}
