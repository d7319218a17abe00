package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultModelGraph(t *testing.T) {
	model := Default()

	person := model.Get("Person")
	require.NotNil(t, person)
	require.True(t, person.Matchable)
	require.True(t, person.IsA("LegalEntity"))
	require.True(t, person.IsA("Thing"))
	require.False(t, person.IsA("Asset"))

	thing := model.Get("Thing")
	require.False(t, thing.Matchable)
	descendants := SchemaNames(thing.Descendants())
	require.Contains(t, descendants, "Person")
	require.Contains(t, descendants, "Vessel")
	require.NotContains(t, descendants, "Thing")
}

func TestMatchableSchemata(t *testing.T) {
	model := Default()

	names := SchemaNames(model.Get("LegalEntity").MatchableSchemata())
	require.Contains(t, names, "LegalEntity")
	require.Contains(t, names, "Person")
	require.Contains(t, names, "Organization")
	require.NotContains(t, names, "Vessel", "vessels are not comparable with legal entities")
	require.NotContains(t, names, "Thing", "Thing is not matchable")
}

func TestPropertyInheritance(t *testing.T) {
	model := Default()
	company := model.Get("Company")

	// Declared on Thing, inherited all the way down.
	require.NotNil(t, company.Property("name"))
	require.Equal(t, TypeName, company.Property("name").Type)
	// Declared on Company itself.
	require.NotNil(t, company.Property("leiCode"))
	require.Nil(t, company.Property("birthDate"), "person properties must not leak")

	props := company.Properties()
	require.Contains(t, props, "name")
	require.Contains(t, props, "registrationNumber")
}

func TestFromDict(t *testing.T) {
	model := Default()
	entity, err := FromDict(model, map[string]any{
		"id":       "Q1",
		"schema":   "Person",
		"caption":  "Test Person",
		"datasets": []any{"a", "b"},
		"properties": map[string]any{
			"name":        []any{"Test Person"},
			"birthDate":   []any{"1980-01-01"},
			"notAPropery": []any{"dropped"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Q1", entity.ID)
	require.Equal(t, "Person", entity.Schema.Name)
	require.Equal(t, []string{"a", "b"}, entity.Datasets)
	require.Equal(t, []string{"Test Person"}, entity.Values("name"))
	require.Nil(t, entity.Values("notAPropery"))
}

func TestFromDictRejects(t *testing.T) {
	model := Default()

	_, err := FromDict(model, map[string]any{"schema": "Person"})
	require.Error(t, err, "missing id")

	_, err = FromDict(model, map[string]any{"id": "x", "schema": "Nope"})
	require.Error(t, err, "unknown schema")
}

func TestGrouped(t *testing.T) {
	model := Default()
	entity, err := FromDict(model, map[string]any{
		"id":     "Q1",
		"schema": "Person",
		"properties": map[string]any{
			"name":        []any{"Test Person"},
			"firstName":   []any{"Test"},
			"weakAlias":   []any{"Testy"},
			"nationality": []any{"de"},
			"notes":       []any{"some notes"},
		},
	})
	require.NoError(t, err)

	grouped := entity.Grouped()
	require.ElementsMatch(t, []string{"Test Person", "Test"}, grouped["names"])
	require.Equal(t, []string{"de"}, grouped["countries"])
	// Weak aliases and free text stay out of the groups.
	require.NotContains(t, grouped["names"], "Testy")
	require.NotContains(t, grouped, "notes")

	require.Equal(t, []string{"some notes"}, entity.TextValues())
}
