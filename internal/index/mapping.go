package index

import "github.com/siftd/sift/internal/schema"

// indexSettings are applied to every entity index at creation time.
var indexSettings = map[string]any{
	"analysis": map[string]any{
		"normalizer": map[string]any{
			"latinize": map[string]any{
				"type":   "custom",
				"filter": []string{"lowercase", "asciifolding"},
			},
		},
		"analyzer": map[string]any{
			"latin-index": map[string]any{
				"tokenizer": "standard",
				"filter":    []string{"lowercase", "asciifolding"},
			},
		},
	},
	"index": map[string]any{
		"refresh_interval": "5s",
	},
}

// entityMappings builds the mapping for entity documents: analyzed name and
// text fields, keyword group fields, and keyword enrichment fields.
func entityMappings() map[string]any {
	properties := map[string]any{
		"schema":    keywordField(),
		"caption":   map[string]any{"type": "text", "analyzer": "latin-index"},
		"datasets":  keywordField(),
		"referents": keywordField(),
		fieldNames: map[string]any{
			"type":     "text",
			"analyzer": "latin-index",
			"fields": map[string]any{
				"keyword": map[string]any{
					"type":       "keyword",
					"normalizer": "latinize",
				},
			},
		},
		fieldNameParts:    keywordField(),
		fieldNameKeys:     keywordField(),
		fieldNamePhonetic: keywordField(),
		fieldText:         map[string]any{"type": "text", "analyzer": "latin-index"},
	}
	for _, group := range schema.Groups() {
		if group == fieldNames {
			continue
		}
		properties[group] = keywordField()
	}
	return map[string]any{
		"dynamic":    "strict",
		"properties": properties,
	}
}

func keywordField() map[string]any {
	return map[string]any{"type": "keyword"}
}
