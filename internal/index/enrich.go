package index

import (
	"github.com/siftd/sift/internal/schema"
	"github.com/siftd/sift/internal/text"
)

// Index field names for the enriched name forms.
const (
	fieldNames        = "names"
	fieldNameParts    = "name_parts"
	fieldNameKeys     = "name_keys"
	fieldNamePhonetic = "name_phonetic"
	fieldText         = "text"
	datesGroup        = "dates"
)

// MakeIndexable projects a raw entity record into its indexable document:
// property values folded into group fields, names expanded into parts,
// fingerprint keys and phonetic codes, dates widened to year and year-month
// prefixes, and a free-text bag. The entity id is returned separately and
// not part of the body.
//
// The projection is pure and deterministic; re-running it on the same record
// yields an identical document.
func MakeIndexable(model *schema.Schemata, record map[string]any) (string, map[string]any, error) {
	entity, err := schema.FromDict(model, record)
	if err != nil {
		return "", nil, err
	}

	doc := map[string]any{
		"schema": entity.Schema.Name,
	}
	if entity.Caption != "" {
		doc["caption"] = entity.Caption
	}
	if len(entity.Datasets) > 0 {
		doc["datasets"] = entity.Datasets
	}
	if len(entity.Referents) > 0 {
		doc["referents"] = entity.Referents
	}

	grouped := entity.Grouped()
	names := grouped[fieldNames]
	// Weak aliases are not matchable but still searchable by name.
	names = append(names, entity.Values("weakAlias")...)

	nameParts := text.NameParts(names)
	texts := entity.TextValues()
	texts = append(texts, nameParts...)

	for group, values := range grouped {
		if group == datesGroup {
			values = text.ExpandDates(values)
		}
		doc[group] = values
	}
	if len(names) > 0 {
		doc[fieldNames] = names
	}
	doc[fieldNameParts] = nameParts
	doc[fieldNameKeys] = text.NameKeys(names)
	doc[fieldNamePhonetic] = text.PhoneticNames(names)
	doc[fieldText] = texts

	return entity.ID, doc, nil
}
