// Package index implements the index lifecycle: version-addressed index
// naming, the search provider capability set with Elasticsearch and in-memory
// implementations, document enrichment, and the reindex pipeline.
package index

import (
	"fmt"
	"strings"
)

// separator joins the name segments. It is reserved: dataset names must not
// contain it, and versions are restricted to [A-Za-z0-9.] by validVersion.
const separator = "-"

// IndexName constructs `<prefix>-<dataset>-<version>`. An empty version
// yields the family prefix `<prefix>-<dataset>`, used to scope alias
// rollovers to one dataset.
func IndexName(prefix, dataset, version string) (string, error) {
	if prefix == "" || dataset == "" {
		return "", fmt.Errorf("%w: prefix and dataset are required", ErrBadIndexName)
	}
	if strings.Contains(dataset, separator) {
		// A separator inside the dataset name would make family globs match
		// across datasets during rollover.
		return "", fmt.Errorf("%w: dataset %q contains reserved separator", ErrBadIndexName, dataset)
	}
	if version == "" {
		return prefix + separator + dataset, nil
	}
	if !validVersion(version) {
		return "", fmt.Errorf("%w: version %q may only contain [A-Za-z0-9.]", ErrBadIndexName, version)
	}
	return prefix + separator + dataset + separator + version, nil
}

// ParseIndexName splits a full index name back into prefix, dataset and
// version. The version is the rightmost segment, the dataset the one before
// it; everything to the left is the prefix, which may itself contain
// separators.
func ParseIndexName(name string) (prefix, dataset, version string, err error) {
	rest, version, ok := cutLast(name, separator)
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q has no version segment", ErrBadIndexName, name)
	}
	prefix, dataset, ok = cutLast(rest, separator)
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q has fewer than three segments", ErrBadIndexName, name)
	}
	if !validVersion(version) {
		return "", "", "", fmt.Errorf("%w: %q has invalid version %q", ErrBadIndexName, name, version)
	}
	return prefix, dataset, version, nil
}

// DatasetVersionToIndex encodes a catalog version for use in an index name.
// Catalog versions may contain `-`, which is reserved in names; it is encoded
// as `.`. Catalog versions therefore must not contain `.` themselves.
func DatasetVersionToIndex(version string) string {
	return strings.ReplaceAll(version, "-", ".")
}

// IndexVersionToDataset is the inverse of DatasetVersionToIndex.
func IndexVersionToDataset(version string) string {
	return strings.ReplaceAll(version, ".", "-")
}

func validVersion(version string) bool {
	for _, r := range version {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.':
		default:
			return false
		}
	}
	return version != ""
}

func cutLast(s, sep string) (before, after string, found bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}
