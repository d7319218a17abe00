package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/schema"
)

// ESSearchProvider implements SearchProvider against Elasticsearch.
type ESSearchProvider struct {
	client *elasticsearch.Client
	pool   *Pool
	model  *schema.Schemata
	log    *slog.Logger

	chunkSize int
	// raiseOnError makes any failed bulk item fail the whole update call.
	raiseOnError bool
}

// NewESProvider connects the provider through the pool. The first call
// performs the health-gated connection handshake.
func NewESProvider(ctx context.Context, pool *Pool, model *schema.Schemata, log *slog.Logger) (*ESSearchProvider, error) {
	client, err := pool.Client(ctx)
	if err != nil {
		return nil, err
	}
	return &ESSearchProvider{
		client:       client,
		pool:         pool,
		model:        model,
		log:          log,
		chunkSize:    pool.settings.BulkChunkSize,
		raiseOnError: true,
	}, nil
}

var _ SearchProvider = (*ESSearchProvider)(nil)

func (p *ESSearchProvider) UpsertIndex(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	body, err := encodeJSON(map[string]any{
		"mappings": entityMappings(),
		"settings": indexSettings,
	})
	if err != nil {
		return providerErr("create index", name, err)
	}
	res, err := p.client.Indices.Create(name,
		p.client.Indices.Create.WithContext(ctx),
		p.client.Indices.Create.WithBody(body),
	)
	if err != nil {
		return providerErr("create index", name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil
		}
		return providerErr("create index", name, err)
	}
	return nil
}

func (p *ESSearchProvider) CloneIndex(ctx context.Context, src, dst string) error {
	if exists, err := p.IndexExists(ctx, dst); err != nil {
		return err
	} else if exists {
		return providerErr("clone index", dst, ErrAlreadyExists)
	}
	if err := p.setWriteBlock(ctx, src, true); err != nil {
		return err
	}
	// The source must regain write access whether or not the clone succeeds.
	defer func() {
		if err := p.setWriteBlock(context.WithoutCancel(ctx), src, false); err != nil {
			p.log.Error("failed to remove write block after clone", "index", src, "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	body, err := encodeJSON(map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"blocks": map[string]any{"read_only": false},
			},
		},
	})
	if err != nil {
		return providerErr("clone index", src, err)
	}
	res, err := p.client.Indices.Clone(src, dst,
		p.client.Indices.Clone.WithContext(ctx),
		p.client.Indices.Clone.WithBody(body),
	)
	if err != nil {
		return providerErr("clone index", src, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return providerErr("clone index", src, err)
	}
	return nil
}

func (p *ESSearchProvider) setWriteBlock(ctx context.Context, name string, blocked bool) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	body, err := encodeJSON(map[string]any{
		"index.blocks.read_only": blocked,
	})
	if err != nil {
		return providerErr("put settings", name, err)
	}
	res, err := p.client.Indices.PutSettings(body,
		p.client.Indices.PutSettings.WithContext(ctx),
		p.client.Indices.PutSettings.WithIndex(name),
	)
	if err != nil {
		return providerErr("put settings", name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return providerErr("put settings", name, err)
	}
	return nil
}

func (p *ESSearchProvider) IndexExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := p.client.Indices.Exists([]string{name},
		p.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, providerErr("index exists", name, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, providerErr("index exists", name, fmt.Errorf("unexpected status %s", res.Status()))
}

func (p *ESSearchProvider) DeleteIndex(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := p.client.Indices.Delete([]string{name},
		p.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return providerErr("delete index", name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return providerErr("delete index", name, err)
	}
	return nil
}

func (p *ESSearchProvider) Rollover(ctx context.Context, alias, newIndex, familyPrefix string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	body, err := encodeJSON(map[string]any{
		"actions": []any{
			map[string]any{"remove": map[string]any{"index": familyPrefix + "*", "alias": alias}},
			map[string]any{"add": map[string]any{"index": newIndex, "alias": alias}},
		},
	})
	if err != nil {
		return providerErr("rollover", newIndex, err)
	}
	res, err := p.client.Indices.UpdateAliases(body,
		p.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return providerErr("rollover", newIndex, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return providerErr("rollover", newIndex, err)
	}
	return nil
}

func (p *ESSearchProvider) Count(ctx context.Context, name string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := p.client.Count(
		p.client.Count.WithContext(ctx),
		p.client.Count.WithIndex(name),
	)
	if err != nil {
		return 0, providerErr("count", name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return 0, providerErr("count", name, err)
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, providerErr("count", name, err)
	}
	return out.Count, nil
}

func (p *ESSearchProvider) GetBackingIndexes(ctx context.Context, alias string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := p.client.Indices.GetAlias(
		p.client.Indices.GetAlias.WithContext(ctx),
		p.client.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return nil, providerErr("get alias", alias, err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil, nil
	}
	if err := responseError(res); err != nil {
		return nil, providerErr("get alias", alias, err)
	}
	var out map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, providerErr("get alias", alias, err)
	}
	indexes := make([]string, 0, len(out))
	for name := range out {
		indexes = append(indexes, name)
	}
	return indexes, nil
}

// Update streams envelopes into the index in chunks. Envelope order is
// preserved up to chunk boundaries; cancellation takes effect between
// chunks.
func (p *ESSearchProvider) Update(ctx context.Context, stream data.Stream, name string) (int, int, error) {
	var (
		buf     bytes.Buffer
		pending int
		ok      int
		failed  int
	)
	flush := func() error {
		if pending == 0 {
			return nil
		}
		chunkOK, chunkFailed, err := p.bulkChunk(ctx, name, &buf)
		ok += chunkOK
		failed += chunkFailed
		buf.Reset()
		pending = 0
		if err != nil {
			return err
		}
		if failed > 0 && p.raiseOnError {
			return providerErr("bulk", name, fmt.Errorf("%d items failed", failed))
		}
		return nil
	}

	for env, err := range stream {
		if err != nil {
			return ok, failed, providerErr("bulk", name, err)
		}
		op, err := toOperation(p.model, env)
		if err != nil {
			if p.raiseOnError {
				return ok, failed, providerErr("bulk", name, err)
			}
			failed++
			continue
		}
		if err := appendBulkOp(&buf, name, op); err != nil {
			return ok, failed, providerErr("bulk", name, err)
		}
		pending++
		if pending >= p.chunkSize {
			if err := flush(); err != nil {
				return ok, failed, err
			}
			if err := ctx.Err(); err != nil {
				return ok, failed, providerErr("bulk", name, err)
			}
		}
	}
	if err := flush(); err != nil {
		return ok, failed, err
	}
	return ok, failed, nil
}

// bulkChunk submits one NDJSON chunk and tallies per-item results.
func (p *ESSearchProvider) bulkChunk(ctx context.Context, name string, body io.Reader) (int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := p.client.Bulk(body,
		p.client.Bulk.WithContext(ctx),
		p.client.Bulk.WithIndex(name),
	)
	if err != nil {
		return 0, 0, providerErr("bulk", name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return 0, 0, providerErr("bulk", name, err)
	}
	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string          `json:"_id"`
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, 0, providerErr("bulk", name, err)
	}
	ok, failed := 0, 0
	for _, item := range out.Items {
		for _, result := range item {
			// Deletes of absent documents are not failures.
			if result.Error == nil || result.Status == 404 {
				ok++
			} else {
				failed++
				p.log.Warn("bulk item failed", "index", name, "id", result.ID, "status", result.Status)
			}
		}
	}
	return ok, failed, nil
}

func appendBulkOp(buf *bytes.Buffer, name string, op bulkOp) error {
	action, err := json.Marshal(map[string]any{
		op.action: map[string]any{"_index": name, "_id": op.docID},
	})
	if err != nil {
		return err
	}
	buf.Write(action)
	buf.WriteByte('\n')
	if op.action == "index" {
		doc, err := json.Marshal(op.doc)
		if err != nil {
			return err
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	return nil
}

// ListIndexes returns every concrete index matching a name pattern. Used by
// maintenance commands; not part of the SearchProvider contract.
func (p *ESSearchProvider) ListIndexes(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := p.client.Cat.Indices(
		p.client.Cat.Indices.WithContext(ctx),
		p.client.Cat.Indices.WithIndex(pattern),
		p.client.Cat.Indices.WithFormat("json"),
	)
	if err != nil {
		return nil, providerErr("cat indices", pattern, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, providerErr("cat indices", pattern, err)
	}
	var out []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, providerErr("cat indices", pattern, err)
	}
	names := make([]string, 0, len(out))
	for _, row := range out {
		names = append(names, row.Index)
	}
	return names, nil
}

// Search runs a structured query under the shared query semaphore.
func (p *ESSearchProvider) Search(ctx context.Context, index string, req *SearchRequest) (*SearchResult, error) {
	if err := p.pool.AcquireQuery(ctx); err != nil {
		return nil, providerErr("search", index, err)
	}
	defer p.pool.ReleaseQuery()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload := map[string]any{"query": req.Query}
	if req.Limit > 0 {
		payload["size"] = req.Limit
	}
	if req.Offset > 0 {
		payload["from"] = req.Offset
	}
	if len(req.Sort) > 0 {
		payload["sort"] = req.Sort
	}
	if len(req.Aggregations) > 0 {
		payload["aggregations"] = req.Aggregations
	}
	body, err := encodeJSON(payload)
	if err != nil {
		return nil, providerErr("search", index, err)
	}
	res, err := p.client.Search(
		p.client.Search.WithContext(ctx),
		p.client.Search.WithIndex(index),
		p.client.Search.WithBody(body),
		p.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, providerErr("search", index, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return nil, providerErr("search", index, err)
	}
	return decodeSearchResult(res.Body)
}

// Close detaches the pool's client reference. The provider itself holds no
// other resources.
func (p *ESSearchProvider) Close() error {
	p.pool.Close()
	return nil
}

func decodeSearchResult(body io.Reader) (*SearchResult, error) {
	var out struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string         `json:"_id"`
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]struct {
			Buckets []struct {
				Key      any   `json:"key"`
				DocCount int64 `json:"doc_count"`
			} `json:"buckets"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	result := &SearchResult{Total: out.Hits.Total.Value}
	for _, hit := range out.Hits.Hits {
		result.Hits = append(result.Hits, Hit{ID: hit.ID, Score: hit.Score, Source: hit.Source})
	}
	if len(out.Aggregations) > 0 {
		result.Facets = make(map[string]map[string]int64)
		for field, agg := range out.Aggregations {
			buckets := make(map[string]int64, len(agg.Buckets))
			for _, bucket := range agg.Buckets {
				buckets[fmt.Sprint(bucket.Key)] = bucket.DocCount
			}
			result.Facets[field] = buckets
		}
	}
	return result, nil
}

// responseError turns an error response body into a classified error.
func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	raw, _ := io.ReadAll(res.Body)
	var out struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &out)
	switch {
	case out.Error.Type == "resource_already_exists_exception":
		return fmt.Errorf("%w: %s", ErrAlreadyExists, out.Error.Reason)
	case out.Error.Type == "index_not_found_exception":
		return fmt.Errorf("%w: %s", ErrNotFound, out.Error.Reason)
	case out.Error.Type != "":
		return fmt.Errorf("%s: %s", out.Error.Type, out.Error.Reason)
	}
	return fmt.Errorf("status %s: %s", res.Status(), strings.TrimSpace(string(raw)))
}

func encodeJSON(v any) (io.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}
