// Package search builds structured queries for the entity index. Every
// builder is a pure function over its inputs and returns a fresh tree of
// maps, ready to be serialized by whichever provider executes it.
package search

import (
	"sort"
	"strings"

	"github.com/siftd/sift/internal/data"
	"github.com/siftd/sift/internal/schema"
)

// maxPhraseLen caps the length of values folded into text phrase matching.
const maxPhraseLen = 100

// facetSize is the number of buckets returned per facet field.
const facetSize = 1000

// Filters map field names to filter values: a string or bool yields a term
// clause, a string slice a terms clause. Empty strings and empty lists are
// dropped.
type Filters map[string]any

// FilterQuery wraps should clauses with the dataset, schema and field
// filters: documents must satisfy every filter and at least one should.
func FilterQuery(shoulds []map[string]any, dataset *data.Dataset, sch *schema.Schema, filters Filters) map[string]any {
	filterqs := []map[string]any{}
	if dataset != nil {
		filterqs = append(filterqs, map[string]any{
			"terms": map[string]any{"datasets": append([]string{}, dataset.SourceNames...)},
		})
	}
	if sch != nil {
		// Copy before appending: the memoized sets on the model are shared.
		schemata := append([]*schema.Schema{}, sch.MatchableSchemata()...)
		schemata = append(schemata, sch)
		if !sch.Matchable {
			schemata = append(schemata, sch.Descendants()...)
		}
		names := dedupe(schema.SchemaNames(schemata))
		filterqs = append(filterqs, map[string]any{
			"terms": map[string]any{"schema": names},
		})
	}
	for _, field := range sortedFilterFields(filters) {
		switch value := filters[field].(type) {
		case bool:
			filterqs = append(filterqs, map[string]any{
				"term": map[string]any{field: map[string]any{"value": value}},
			})
		case string:
			filterqs = append(filterqs, map[string]any{
				"term": map[string]any{field: map[string]any{"value": value}},
			})
		case []string:
			values := []string{}
			for _, v := range value {
				if len(v) > 0 {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				filterqs = append(filterqs, map[string]any{
					"terms": map[string]any{field: values},
				})
			}
		}
	}
	return map[string]any{
		"bool": map[string]any{
			"filter":               filterqs,
			"should":               shoulds,
			"minimum_should_match": 1,
		},
	}
}

// EntityQuery matches an example entity against the index: name values use
// analyzed matching with optional fuzziness, other grouped values become
// terms clauses, and short name, string and address values feed text phrase
// matching. The entity's schema and the dataset scope the result.
func EntityQuery(dataset *data.Dataset, entity *schema.Entity, fuzzy bool) map[string]any {
	terms := map[string][]string{}
	var texts []string
	var shoulds []map[string]any

	for _, name := range entity.PropertyNames() {
		prop := entity.Schema.Property(name)
		for _, value := range entity.Values(name) {
			if prop.Type == schema.TypeName {
				shoulds = append(shoulds, map[string]any{
					"match": map[string]any{
						"names": map[string]any{
							"query":                value,
							"lenient":              false,
							"minimum_should_match": "60%",
							"fuzziness":            fuzziness(fuzzy, 1),
						},
					},
				})
			} else if prop.Type.Group != "" && !prop.Type.Text() {
				terms[prop.Type.Group] = append(terms[prop.Type.Group], value)
			}
			switch prop.Type {
			case schema.TypeName, schema.TypeString, schema.TypeAddress:
				if len(value) < maxPhraseLen {
					texts = append(texts, value)
				}
			}
		}
	}

	for _, group := range sortedGroupFields(terms) {
		shoulds = append(shoulds, map[string]any{
			"terms": map[string]any{group: terms[group]},
		})
	}
	for _, value := range texts {
		shoulds = append(shoulds, map[string]any{
			"match_phrase": map[string]any{"text": value},
		})
	}
	return FilterQuery(shoulds, dataset, entity.Schema, nil)
}

// TextQuery runs a free-text query over names and text. A blank query
// matches everything within the filters.
func TextQuery(dataset *data.Dataset, sch *schema.Schema, query string, filters Filters, fuzzy bool) map[string]any {
	var should map[string]any
	if strings.TrimSpace(query) == "" {
		should = map[string]any{"match_all": map[string]any{}}
	} else {
		should = map[string]any{
			"query_string": map[string]any{
				"query":            query,
				"fields":           []string{"names^3", "text"},
				"default_operator": "and",
				"fuzziness":        fuzziness(fuzzy, 2),
				"lenient":          fuzzy,
			},
		}
	}
	return FilterQuery([]map[string]any{should}, dataset, sch, filters)
}

// PrefixQuery matches name prefixes for autocomplete. A blank prefix
// matches nothing.
func PrefixQuery(dataset *data.Dataset, prefix string) map[string]any {
	var should map[string]any
	if strings.TrimSpace(prefix) == "" {
		should = map[string]any{"match_none": map[string]any{}}
	} else {
		should = map[string]any{
			"match_phrase_prefix": map[string]any{
				"names": map[string]any{"query": prefix, "slop": 2},
			},
		}
	}
	return FilterQuery([]map[string]any{should}, dataset, nil, nil)
}

// StatementQuery conjoins term filters over statement fields. Nil values are
// skipped; with no filters at all the query matches everything.
func StatementQuery(dataset *data.Dataset, fields map[string]any) map[string]any {
	filters := []map[string]any{}
	if dataset != nil {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"dataset": append([]string{}, dataset.SourceNames...)},
		})
	}
	for _, field := range sortedFilterFields(fields) {
		value := fields[field]
		if value == nil {
			continue
		}
		filters = append(filters, map[string]any{
			"term": map[string]any{field: value},
		})
	}
	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"bool": map[string]any{"filter": filters},
	}
}

// FacetAggregations builds one terms aggregation per facet field.
func FacetAggregations(fields []string) map[string]any {
	aggs := map[string]any{}
	for _, field := range fields {
		aggs[field] = map[string]any{
			"terms": map[string]any{"field": field, "size": facetSize},
		}
	}
	return aggs
}

// ParseSorts parses `<field>[:asc|desc]` sort expressions. Score is always
// the final tiebreaker.
func ParseSorts(sorts []string) []any {
	objs := make([]any, 0, len(sorts)+1)
	for _, expr := range sorts {
		field, order := expr, "asc"
		if idx := strings.LastIndex(expr, ":"); idx >= 0 {
			field, order = expr[:idx], expr[idx+1:]
		}
		objs = append(objs, map[string]any{
			field: map[string]any{"order": order, "missing": "_last"},
		})
	}
	return append(objs, "_score")
}

func dedupe(values []string) []string {
	out := values[:0:0]
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func fuzziness(fuzzy bool, distance int) int {
	if fuzzy {
		return distance
	}
	return 0
}

func sortedFilterFields(filters map[string]any) []string {
	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func sortedGroupFields(terms map[string][]string) []string {
	fields := make([]string, 0, len(terms))
	for field := range terms {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
