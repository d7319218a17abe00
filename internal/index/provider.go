package index

import (
	"context"

	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/schema"
)

// SearchProvider is the capability set the rest of the service needs from a
// search backend. ESSearchProvider is the production implementation; tests
// use MemoryProvider.
type SearchProvider interface {
	// UpsertIndex creates an index with the entity mappings. Creating an
	// index that already exists is not an error.
	UpsertIndex(ctx context.Context, name string) error

	// CloneIndex makes a server-side copy of src as dst. The source is
	// write-blocked for the duration and unblocked on every exit path. The
	// target must not exist.
	CloneIndex(ctx context.Context, src, dst string) error

	// IndexExists reports whether the named index exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// DeleteIndex removes an index. Deleting a missing index is not an error.
	DeleteIndex(ctx context.Context, name string) error

	// Rollover atomically detaches every index matching familyPrefix from the
	// alias and attaches newIndex instead.
	Rollover(ctx context.Context, alias, newIndex, familyPrefix string) error

	// Count returns the number of documents in an index.
	Count(ctx context.Context, name string) (int64, error)

	// GetBackingIndexes returns the concrete indices behind an alias.
	GetBackingIndexes(ctx context.Context, alias string) ([]string, error)

	// Update streams operation envelopes into the named index in chunks,
	// returning the number of successful and failed items. By default any
	// failed item fails the whole call.
	Update(ctx context.Context, stream data.Stream, name string) (ok, failed int, err error)

	// Search executes a structured query against an index or alias.
	Search(ctx context.Context, index string, req *SearchRequest) (*SearchResult, error)

	// Close releases the provider's resources. Idempotent.
	Close() error
}

// SearchRequest carries a structured query plus paging, sorting and faceting.
type SearchRequest struct {
	Query        map[string]any
	Limit        int
	Offset       int
	Sort         []any
	Aggregations map[string]any
}

// SearchResult is the provider-agnostic slice of a search response.
type SearchResult struct {
	Total  int64
	Hits   []Hit
	Facets map[string]map[string]int64
}

// Hit is one matched document.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// bulkOp is one translated bulk operation.
type bulkOp struct {
	// action is "index" or "delete".
	action string
	docID  string
	doc    map[string]any
}

// toOperation translates an operation envelope into a bulk operation,
// enriching the entity into its indexable form. MOD is a full replace.
func toOperation(model *schema.Schemata, env data.Envelope) (bulkOp, error) {
	switch env.Op {
	case data.OpAdd, data.OpMod:
		if env.Entity == nil {
			return bulkOp{}, &MalformedEnvelopeError{Reason: "no entity in envelope"}
		}
		if id, _ := env.Entity["id"].(string); id == "" {
			return bulkOp{}, &MalformedEnvelopeError{Reason: "no entity id in envelope"}
		}
		docID, doc, err := MakeIndexable(model, env.Entity)
		if err != nil {
			return bulkOp{}, err
		}
		return bulkOp{action: "index", docID: docID, doc: doc}, nil
	case data.OpDel:
		docID, _ := env.Entity["id"].(string)
		if docID == "" {
			return bulkOp{}, &MalformedEnvelopeError{Reason: "no entity id in envelope"}
		}
		return bulkOp{action: "delete", docID: docID}, nil
	default:
		return bulkOp{}, &UnknownOperationError{Op: env.Op}
	}
}
