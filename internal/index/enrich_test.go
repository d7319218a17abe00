package index

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siftd/sift/internal/schema"
)

func personRecord() map[string]any {
	return map[string]any{
		"id":       "Q7747",
		"schema":   "Person",
		"caption":  "Jürgen Müller",
		"datasets": []any{"eu_sanctions"},
		"properties": map[string]any{
			"name":      []any{"Jürgen Müller"},
			"weakAlias": []any{"The Accountant"},
			"birthDate": []any{"1965-03-01"},
			"country":   []any{"de"},
			"notes":     []any{"Listed under program X."},
		},
	}
}

func TestMakeIndexable(t *testing.T) {
	model := schema.Default()
	docID, doc, err := MakeIndexable(model, personRecord())
	require.NoError(t, err)
	require.Equal(t, "Q7747", docID)

	// The id travels as the document id, never in the body.
	require.NotContains(t, doc, "id")
	require.Equal(t, "Person", doc["schema"])
	require.Equal(t, []string{"eu_sanctions"}, doc["datasets"])

	require.ElementsMatch(t, []string{"Jürgen Müller", "The Accountant"}, doc[fieldNames])
	require.Equal(t, []string{"accountant", "jurgen", "muller", "the"}, doc[fieldNameParts])
	require.Contains(t, doc[fieldNameKeys], "jurgenmuller")

	// Dates are widened to year and year-month prefixes.
	require.Equal(t, []string{"1965", "1965-03", "1965-03-01"}, doc["dates"])
	require.Equal(t, []string{"de"}, doc["countries"])

	// Free text carries the notes and the name parts.
	text, ok := doc[fieldText].([]string)
	require.True(t, ok)
	require.Contains(t, text, "Listed under program X.")
	require.Contains(t, text, "jurgen")

	phonetic, ok := doc[fieldNamePhonetic].([]string)
	require.True(t, ok)
	require.NotEmpty(t, phonetic)
}

func TestMakeIndexableDeterministic(t *testing.T) {
	model := schema.Default()
	_, first, err := MakeIndexable(model, personRecord())
	require.NoError(t, err)
	_, second, err := MakeIndexable(model, personRecord())
	require.NoError(t, err)
	require.True(t, reflect.DeepEqual(first, second), "same record must enrich identically")
}

func TestMakeIndexableRejectsBadRecords(t *testing.T) {
	model := schema.Default()

	_, _, err := MakeIndexable(model, map[string]any{"schema": "Person"})
	require.Error(t, err)

	_, _, err = MakeIndexable(model, map[string]any{"id": "x", "schema": "NoSuchSchema"})
	require.Error(t, err)
}

func TestToOperationDispatch(t *testing.T) {
	model := schema.Default()

	op, err := toOperation(model, envOf("ADD", personRecord()))
	require.NoError(t, err)
	require.Equal(t, "index", op.action)
	require.Equal(t, "Q7747", op.docID)
	require.NotNil(t, op.doc)

	op, err = toOperation(model, envOf("MOD", personRecord()))
	require.NoError(t, err)
	require.Equal(t, "index", op.action, "MOD is a full replace")

	op, err = toOperation(model, envOf("DEL", map[string]any{"id": "Q7747"}))
	require.NoError(t, err)
	require.Equal(t, "delete", op.action)
	require.Equal(t, "Q7747", op.docID)

	var malformed *MalformedEnvelopeError
	_, err = toOperation(model, envOf("ADD", nil))
	require.ErrorAs(t, err, &malformed)
	_, err = toOperation(model, envOf("ADD", map[string]any{"schema": "Person"}))
	require.ErrorAs(t, err, &malformed)
	_, err = toOperation(model, envOf("DEL", map[string]any{}))
	require.ErrorAs(t, err, &malformed)

	var unknown *UnknownOperationError
	_, err = toOperation(model, envOf("UPSERT", personRecord()))
	require.ErrorAs(t, err, &unknown)
}
