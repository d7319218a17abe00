package schema

import "sort"

// Property is a typed attribute declared on a schema.
type Property struct {
	Name      string
	Label     string
	Type      *PropertyType
	// Matchable properties contribute to the indexed group fields; weak
	// attributes (weak aliases, notes) are left out of them.
	Matchable bool
}

// Schema is one node in the entity type graph. Instances are created by the
// model builder and shared read-only afterwards.
type Schema struct {
	Name      string
	Label     string
	Matchable bool

	extends    []*Schema
	properties map[string]*Property

	model *Schemata
}

// Extends returns the direct parents of the schema.
func (s *Schema) Extends() []*Schema {
	return s.extends
}

// Properties returns the schema's properties, including inherited ones.
// Declarations on the schema itself shadow parent declarations.
func (s *Schema) Properties() map[string]*Property {
	out := make(map[string]*Property)
	var walk func(sc *Schema)
	walk = func(sc *Schema) {
		for _, p := range sc.extends {
			walk(p)
		}
		for name, prop := range sc.properties {
			out[name] = prop
		}
	}
	walk(s)
	return out
}

// Property looks up a property by name, walking the inheritance graph.
func (s *Schema) Property(name string) *Property {
	if p, ok := s.properties[name]; ok {
		return p
	}
	for _, parent := range s.extends {
		if p := parent.Property(name); p != nil {
			return p
		}
	}
	return nil
}

// IsA reports whether the schema is the named schema or descends from it.
func (s *Schema) IsA(name string) bool {
	if s.Name == name {
		return true
	}
	for _, parent := range s.extends {
		if parent.IsA(name) {
			return true
		}
	}
	return false
}

// Descendants returns every schema that transitively extends this one.
func (s *Schema) Descendants() []*Schema {
	return s.model.descendants[s.Name]
}

// MatchableSchemata returns the matchable schemas comparable with this one:
// every matchable schema that is an ancestor or descendant of s (including s
// itself when matchable).
func (s *Schema) MatchableSchemata() []*Schema {
	return s.model.matchable[s.Name]
}

// SchemaNames maps a schema list to a sorted list of names.
func SchemaNames(schemata []*Schema) []string {
	names := make([]string, 0, len(schemata))
	for _, sc := range schemata {
		names = append(names, sc.Name)
	}
	sort.Strings(names)
	return names
}
