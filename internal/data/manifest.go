package data

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Manifest describes a catalog as consumed from a file or URL: each dataset
// with its current version, a full entity export, and optional delta chains.
// Entity exports and deltas are newline-delimited JSON envelopes; full
// exports may also be plain entity records, which are wrapped as ADD.
type Manifest struct {
	Datasets []ManifestDataset `json:"datasets"`
}

// ManifestDataset is one catalog entry.
type ManifestDataset struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	SourceNames []string        `json:"source_names"`
	Version     string          `json:"version"`
	EntitiesURL string          `json:"entities_url"`
	Deltas      []ManifestDelta `json:"deltas"`
}

// ManifestDelta is one link in a dataset's delta chain.
type ManifestDelta struct {
	FromVersion string `json:"from_version"`
	ToVersion   string `json:"to_version"`
	URL         string `json:"url"`
}

// ManifestSource implements Source over a manifest document. The manifest is
// cached for up to a minute and re-read after that, so a refreshed upstream
// export is picked up without a restart.
type ManifestSource struct {
	location string
	client   *http.Client

	mu     sync.Mutex
	cached *Manifest
	loaded time.Time
	maxAge time.Duration
}

// NewManifestSource creates a source reading the manifest at a local path or
// HTTP(S) URL.
func NewManifestSource(location string) *ManifestSource {
	return &ManifestSource{
		location: location,
		client:   &http.Client{Timeout: 30 * time.Second},
		maxAge:   time.Minute,
	}
}

func (s *ManifestSource) manifest(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && time.Since(s.loaded) < s.maxAge {
		return s.cached, nil
	}
	body, err := s.open(ctx, s.location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest %s: %w", s.location, err)
	}
	defer body.Close()
	var manifest Manifest
	if err := json.NewDecoder(body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", s.location, err)
	}
	s.cached = &manifest
	s.loaded = time.Now()
	return s.cached, nil
}

func (s *ManifestSource) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		res, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if res.StatusCode != http.StatusOK {
			res.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", res.Status)
		}
		return res.Body, nil
	}
	return os.Open(location)
}

func (s *ManifestSource) entry(ctx context.Context, name string) (*ManifestDataset, error) {
	manifest, err := s.manifest(ctx)
	if err != nil {
		return nil, err
	}
	for i := range manifest.Datasets {
		if manifest.Datasets[i].Name == name {
			return &manifest.Datasets[i], nil
		}
	}
	return nil, fmt.Errorf("dataset %s not in manifest", name)
}

func (s *ManifestSource) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	manifest, err := s.manifest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Dataset, 0, len(manifest.Datasets))
	for _, entry := range manifest.Datasets {
		sources := entry.SourceNames
		if len(sources) == 0 {
			sources = []string{entry.Name}
		}
		out = append(out, &Dataset{
			Name:        entry.Name,
			Title:       entry.Title,
			SourceNames: sources,
		})
	}
	return out, nil
}

func (s *ManifestSource) CurrentVersion(ctx context.Context, dataset *Dataset) (string, error) {
	entry, err := s.entry(ctx, dataset.Name)
	if err != nil {
		return "", err
	}
	if entry.Version == "" {
		return "", fmt.Errorf("dataset %s has no version in manifest", dataset.Name)
	}
	return entry.Version, nil
}

func (s *ManifestSource) Entities(ctx context.Context, dataset *Dataset, version string) Stream {
	return func(yield func(Envelope, error) bool) {
		entry, err := s.entry(ctx, dataset.Name)
		if err != nil {
			yield(Envelope{}, err)
			return
		}
		if entry.Version != version {
			yield(Envelope{}, fmt.Errorf("manifest offers %s@%s, not %s", dataset.Name, entry.Version, version))
			return
		}
		s.streamEnvelopes(ctx, entry.EntitiesURL, yield)
	}
}

func (s *ManifestSource) Delta(ctx context.Context, dataset *Dataset, fromVersion, toVersion string) Stream {
	return func(yield func(Envelope, error) bool) {
		entry, err := s.entry(ctx, dataset.Name)
		if err != nil {
			yield(Envelope{}, err)
			return
		}
		for _, delta := range entry.Deltas {
			if delta.FromVersion == fromVersion && delta.ToVersion == toVersion {
				s.streamEnvelopes(ctx, delta.URL, yield)
				return
			}
		}
		yield(Envelope{}, fmt.Errorf("no delta for %s from %s to %s", dataset.Name, fromVersion, toVersion))
	}
}

func (s *ManifestSource) HasDelta(ctx context.Context, dataset *Dataset, fromVersion, toVersion string) (bool, error) {
	entry, err := s.entry(ctx, dataset.Name)
	if err != nil {
		return false, err
	}
	for _, delta := range entry.Deltas {
		if delta.FromVersion == fromVersion && delta.ToVersion == toVersion {
			return true, nil
		}
	}
	return false, nil
}

// streamEnvelopes reads newline-delimited JSON from a path or URL. Lines
// that are bare entity records are wrapped as ADD envelopes.
func (s *ManifestSource) streamEnvelopes(ctx context.Context, location string, yield func(Envelope, error) bool) {
	body, err := s.open(ctx, location)
	if err != nil {
		yield(Envelope{}, fmt.Errorf("failed to open %s: %w", location, err))
		return
	}
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			yield(Envelope{}, err)
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var env Envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			yield(Envelope{}, fmt.Errorf("invalid envelope line: %w", err))
			return
		}
		if env.Op == "" {
			// A bare entity record.
			var entity map[string]any
			if err := json.Unmarshal([]byte(line), &entity); err != nil {
				yield(Envelope{}, fmt.Errorf("invalid entity line: %w", err))
				return
			}
			env = Envelope{Op: OpAdd, Entity: entity}
		}
		if !yield(env, nil) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		yield(Envelope{}, fmt.Errorf("failed to read %s: %w", location, err))
	}
}

var _ Source = (*ManifestSource)(nil)
