package schema

import (
	"fmt"
	"sort"
)

// Entity is a typed view over one upstream record. Property values are kept
// as string multi-values keyed by property name; unknown properties are
// dropped at projection time.
type Entity struct {
	ID        string
	Schema    *Schema
	Caption   string
	Datasets  []string
	Referents []string
	props     map[string][]string
}

// FromDict projects a raw record into a typed entity. The record must carry a
// non-empty id and a known schema name.
func FromDict(model *Schemata, data map[string]any) (*Entity, error) {
	id, _ := data["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("entity has no id")
	}
	name, _ := data["schema"].(string)
	sc := model.Get(name)
	if sc == nil {
		return nil, fmt.Errorf("entity %s has unknown schema %q", id, name)
	}
	e := &Entity{
		ID:     id,
		Schema: sc,
		props:  make(map[string][]string),
	}
	e.Caption, _ = data["caption"].(string)
	e.Datasets = stringList(data["datasets"])
	e.Referents = stringList(data["referents"])
	if raw, ok := data["properties"].(map[string]any); ok {
		for prop, values := range raw {
			if sc.Property(prop) == nil {
				continue
			}
			vals := stringList(values)
			if len(vals) > 0 {
				e.props[prop] = vals
			}
		}
	}
	return e, nil
}

// Values returns the values of the named property, or nil when unset.
func (e *Entity) Values(prop string) []string {
	return e.props[prop]
}

// Add appends a value to the named property. Unknown properties are ignored.
func (e *Entity) Add(prop, value string) {
	if value == "" || e.Schema.Property(prop) == nil {
		return
	}
	e.props[prop] = append(e.props[prop], value)
}

// PropertyNames returns the set properties in sorted order, for deterministic
// iteration.
func (e *Entity) PropertyNames() []string {
	names := make([]string, 0, len(e.props))
	for name := range e.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Grouped folds matchable property values into their type groups. Values of
// non-matchable properties and of types without a group are excluded.
func (e *Entity) Grouped() map[string][]string {
	out := make(map[string][]string)
	for _, name := range e.PropertyNames() {
		prop := e.Schema.Property(name)
		if !prop.Matchable || prop.Type.Group == "" {
			continue
		}
		out[prop.Type.Group] = append(out[prop.Type.Group], e.props[name]...)
	}
	return out
}

// TextValues collects the free-text bag: every value of a text-like property,
// the raw material of the "text" index field. Grouped values are not included.
func (e *Entity) TextValues() []string {
	var out []string
	for _, name := range e.PropertyNames() {
		prop := e.Schema.Property(name)
		if prop.Type.Text() {
			out = append(out, e.props[name]...)
		}
	}
	return out
}

func stringList(v any) []string {
	switch vals := v.(type) {
	case []string:
		out := make([]string, len(vals))
		copy(out, vals)
		return out
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vals == "" {
			return nil
		}
		return []string{vals}
	}
	return nil
}
