package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/schema"
)

// MemoryProvider is an in-memory SearchProvider used by tests. It mirrors
// the lifecycle semantics of the Elasticsearch provider (clone write blocks,
// family-glob rollover, idempotent create and delete) but only approximates
// query execution: Search resolves the alias and pages over documents
// without evaluating the query tree.
//
// Thread-safe: all operations are protected by a read-write mutex.
type MemoryProvider struct {
	mu      sync.RWMutex
	model   *schema.Schemata
	indexes map[string]*memIndex
	aliases map[string]map[string]bool

	raiseOnError bool
}

type memIndex struct {
	docs         map[string]map[string]any
	writeBlocked bool
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider(model *schema.Schemata) *MemoryProvider {
	return &MemoryProvider{
		model:        model,
		indexes:      make(map[string]*memIndex),
		aliases:      make(map[string]map[string]bool),
		raiseOnError: true,
	}
}

var _ SearchProvider = (*MemoryProvider)(nil)

func (p *MemoryProvider) UpsertIndex(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.indexes[name]; ok {
		return nil
	}
	p.indexes[name] = &memIndex{docs: make(map[string]map[string]any)}
	return nil
}

func (p *MemoryProvider) CloneIndex(ctx context.Context, src, dst string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	source, ok := p.indexes[src]
	if !ok {
		return providerErr("clone index", src, ErrNotFound)
	}
	if _, ok := p.indexes[dst]; ok {
		return providerErr("clone index", dst, ErrAlreadyExists)
	}
	source.writeBlocked = true
	defer func() { source.writeBlocked = false }()
	clone := &memIndex{docs: make(map[string]map[string]any, len(source.docs))}
	for id, doc := range source.docs {
		copied := make(map[string]any, len(doc))
		for k, v := range doc {
			copied[k] = v
		}
		clone.docs[id] = copied
	}
	p.indexes[dst] = clone
	return nil
}

func (p *MemoryProvider) IndexExists(ctx context.Context, name string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.indexes[name]
	return ok, nil
}

func (p *MemoryProvider) DeleteIndex(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.indexes, name)
	for _, backing := range p.aliases {
		delete(backing, name)
	}
	return nil
}

func (p *MemoryProvider) Rollover(ctx context.Context, alias, newIndex, familyPrefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.indexes[newIndex]; !ok {
		return providerErr("rollover", newIndex, ErrNotFound)
	}
	backing, ok := p.aliases[alias]
	if !ok {
		backing = make(map[string]bool)
		p.aliases[alias] = backing
	}
	for name := range backing {
		if strings.HasPrefix(name, familyPrefix) {
			delete(backing, name)
		}
	}
	backing[newIndex] = true
	return nil
}

func (p *MemoryProvider) Count(ctx context.Context, name string) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.indexes[name]
	if !ok {
		return 0, providerErr("count", name, ErrNotFound)
	}
	return int64(len(idx.docs)), nil
}

func (p *MemoryProvider) GetBackingIndexes(ctx context.Context, alias string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	backing := p.aliases[alias]
	names := make([]string, 0, len(backing))
	for name := range backing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *MemoryProvider) Update(ctx context.Context, stream data.Stream, name string) (int, int, error) {
	ok, failed := 0, 0
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
		if err := p.apply(name, op); err != nil {
			return ok, failed, err
		}
		ok++
	}
	return ok, failed, nil
}

func (p *MemoryProvider) apply(name string, op bulkOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, present := p.indexes[name]
	if !present {
		return providerErr("bulk", name, ErrNotFound)
	}
	if idx.writeBlocked {
		return providerErr("bulk", name, fmt.Errorf("index is write-blocked"))
	}
	switch op.action {
	case "index":
		idx.docs[op.docID] = op.doc
	case "delete":
		delete(idx.docs, op.docID)
	}
	return nil
}

// Search resolves aliases and pages over documents in id order. Query
// evaluation is deliberately not emulated here.
func (p *MemoryProvider) Search(ctx context.Context, index string, req *SearchRequest) (*SearchResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := []string{index}
	if backing, ok := p.aliases[index]; ok {
		names = names[:0]
		for name := range backing {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	var ids []string
	docs := make(map[string]map[string]any)
	for _, name := range names {
		idx, ok := p.indexes[name]
		if !ok {
			continue
		}
		for id, doc := range idx.docs {
			if _, seen := docs[id]; !seen {
				ids = append(ids, id)
			}
			docs[id] = doc
		}
	}
	sort.Strings(ids)
	result := &SearchResult{Total: int64(len(ids))}
	offset := min(req.Offset, len(ids))
	end := len(ids)
	if req.Limit > 0 && offset+req.Limit < end {
		end = offset + req.Limit
	}
	for _, id := range ids[offset:end] {
		result.Hits = append(result.Hits, Hit{ID: id, Source: docs[id]})
	}
	return result, nil
}

func (p *MemoryProvider) Close() error {
	return nil
}

// DocumentIDs returns the sorted ids in an index, for test assertions.
func (p *MemoryProvider) DocumentIDs(name string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.indexes[name]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Document returns one stored document, for test assertions.
func (p *MemoryProvider) Document(name, id string) map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx, ok := p.indexes[name]
	if !ok {
		return nil
	}
	return idx.docs[id]
}
