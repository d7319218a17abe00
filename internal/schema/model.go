package schema

import (
	"fmt"
	"sort"
)

// Schemata is the full schema graph plus memoized derived sets. It is built
// once and treated as immutable.
type Schemata struct {
	schemas     map[string]*Schema
	descendants map[string][]*Schema
	matchable   map[string][]*Schema
}

// Get returns the named schema, or nil if unknown.
func (m *Schemata) Get(name string) *Schema {
	return m.schemas[name]
}

// All returns every schema in the model, sorted by name.
func (m *Schemata) All() []*Schema {
	out := make([]*Schema, 0, len(m.schemas))
	for _, sc := range m.schemas {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// schemaSpec is the declarative input to the model builder.
type schemaSpec struct {
	name      string
	label     string
	matchable bool
	extends   []string
	props     []Property
}

// build wires a spec list into a Schemata graph and memoizes derived sets.
func build(specs []schemaSpec) (*Schemata, error) {
	m := &Schemata{
		schemas:     make(map[string]*Schema),
		descendants: make(map[string][]*Schema),
		matchable:   make(map[string][]*Schema),
	}
	for _, spec := range specs {
		props := make(map[string]*Property, len(spec.props))
		for i := range spec.props {
			p := spec.props[i]
			props[p.Name] = &p
		}
		m.schemas[spec.name] = &Schema{
			Name:       spec.name,
			Label:      spec.label,
			Matchable:  spec.matchable,
			properties: props,
			model:      m,
		}
	}
	for _, spec := range specs {
		sc := m.schemas[spec.name]
		for _, parent := range spec.extends {
			ps, ok := m.schemas[parent]
			if !ok {
				return nil, fmt.Errorf("schema %s extends unknown schema %s", spec.name, parent)
			}
			sc.extends = append(sc.extends, ps)
		}
	}
	for _, sc := range m.schemas {
		for _, other := range m.All() {
			if other != sc && other.IsA(sc.Name) {
				m.descendants[sc.Name] = append(m.descendants[sc.Name], other)
			}
		}
	}
	for _, sc := range m.schemas {
		seen := make(map[string]bool)
		for _, other := range m.All() {
			if !other.Matchable {
				continue
			}
			// Comparable: one is an ancestor of the other.
			if other.IsA(sc.Name) || sc.IsA(other.Name) {
				if !seen[other.Name] {
					seen[other.Name] = true
					m.matchable[sc.Name] = append(m.matchable[sc.Name], other)
				}
			}
		}
	}
	return m, nil
}

// Default returns the built-in model covering the entity types found in
// sanctions and PEP source data.
func Default() *Schemata {
	m, err := build(defaultSpecs)
	if err != nil {
		panic(err)
	}
	return m
}

var defaultSpecs = []schemaSpec{
	{
		name:  "Thing",
		label: "Thing",
		props: []Property{
			{Name: "name", Label: "Name", Type: TypeName, Matchable: true},
			{Name: "alias", Label: "Other name", Type: TypeName, Matchable: true},
			{Name: "weakAlias", Label: "Weak alias", Type: TypeName},
			{Name: "country", Label: "Country", Type: TypeCountry, Matchable: true},
			{Name: "topics", Label: "Topics", Type: TypeTopic, Matchable: true},
			{Name: "notes", Label: "Notes", Type: TypeText},
			{Name: "description", Label: "Description", Type: TypeText},
			{Name: "sourceUrl", Label: "Source link", Type: TypeURL},
			{Name: "address", Label: "Address", Type: TypeAddress, Matchable: true},
		},
	},
	{
		name:    "LegalEntity",
		label:   "Legal entity",
		extends: []string{"Thing"},
		// LegalEntity is the matchable root for people and companies.
		matchable: true,
		props: []Property{
			{Name: "email", Label: "E-Mail", Type: TypeEmail, Matchable: true},
			{Name: "phone", Label: "Phone", Type: TypePhone, Matchable: true},
			{Name: "jurisdiction", Label: "Jurisdiction", Type: TypeCountry, Matchable: true},
			{Name: "registrationNumber", Label: "Registration number", Type: TypeIdentifier, Matchable: true},
			{Name: "idNumber", Label: "ID number", Type: TypeIdentifier, Matchable: true},
			{Name: "taxNumber", Label: "Tax number", Type: TypeIdentifier, Matchable: true},
			{Name: "incorporationDate", Label: "Incorporation date", Type: TypeDate, Matchable: true},
			{Name: "dissolutionDate", Label: "Dissolution date", Type: TypeDate, Matchable: true},
			{Name: "status", Label: "Status", Type: TypeString},
		},
	},
	{
		name:      "Person",
		label:     "Person",
		extends:   []string{"LegalEntity"},
		matchable: true,
		props: []Property{
			{Name: "firstName", Label: "First name", Type: TypeName, Matchable: true},
			{Name: "lastName", Label: "Last name", Type: TypeName, Matchable: true},
			{Name: "middleName", Label: "Middle name", Type: TypeName, Matchable: true},
			{Name: "birthDate", Label: "Birth date", Type: TypeDate, Matchable: true},
			{Name: "deathDate", Label: "Death date", Type: TypeDate, Matchable: true},
			{Name: "birthPlace", Label: "Place of birth", Type: TypeString},
			{Name: "nationality", Label: "Nationality", Type: TypeCountry, Matchable: true},
			{Name: "gender", Label: "Gender", Type: TypeGender, Matchable: true},
			{Name: "passportNumber", Label: "Passport number", Type: TypeIdentifier, Matchable: true},
			{Name: "position", Label: "Position", Type: TypeString},
		},
	},
	{
		name:      "Organization",
		label:     "Organization",
		extends:   []string{"LegalEntity"},
		matchable: true,
	},
	{
		name:      "Company",
		label:     "Company",
		extends:   []string{"Organization"},
		matchable: true,
		props: []Property{
			{Name: "ogrnCode", Label: "OGRN code", Type: TypeIdentifier, Matchable: true},
			{Name: "innCode", Label: "INN code", Type: TypeIdentifier, Matchable: true},
			{Name: "leiCode", Label: "LEI code", Type: TypeIdentifier, Matchable: true},
		},
	},
	{
		name:      "PublicBody",
		label:     "Public body",
		extends:   []string{"Organization"},
		matchable: true,
	},
	{
		name:    "Asset",
		label:   "Asset",
		extends: []string{"Thing"},
	},
	{
		name:      "Vehicle",
		label:     "Vehicle",
		extends:   []string{"Asset"},
		props: []Property{
			{Name: "registrationNumber", Label: "Registration number", Type: TypeIdentifier, Matchable: true},
		},
	},
	{
		name:      "Vessel",
		label:     "Vessel",
		extends:   []string{"Vehicle"},
		matchable: true,
		props: []Property{
			{Name: "imoNumber", Label: "IMO number", Type: TypeIdentifier, Matchable: true},
			{Name: "flag", Label: "Flag", Type: TypeCountry, Matchable: true},
			{Name: "mmsi", Label: "MMSI", Type: TypeIdentifier, Matchable: true},
		},
	},
	{
		name:      "Airplane",
		label:     "Airplane",
		extends:   []string{"Vehicle"},
		matchable: true,
		props: []Property{
			{Name: "serialNumber", Label: "Serial number", Type: TypeIdentifier, Matchable: true},
		},
	},
	{
		name:    "Address",
		label:   "Address",
		extends: []string{"Thing"},
		props: []Property{
			{Name: "full", Label: "Full address", Type: TypeAddress, Matchable: true},
			{Name: "city", Label: "City", Type: TypeString},
			{Name: "postalCode", Label: "Postal code", Type: TypeIdentifier, Matchable: true},
		},
	},
	{
		name:    "Sanction",
		label:   "Sanction",
		extends: []string{"Thing"},
		props: []Property{
			{Name: "authority", Label: "Authority", Type: TypeString},
			{Name: "program", Label: "Program", Type: TypeString},
			{Name: "startDate", Label: "Start date", Type: TypeDate, Matchable: true},
			{Name: "endDate", Label: "End date", Type: TypeDate, Matchable: true},
			{Name: "reason", Label: "Reason", Type: TypeText},
		},
	},
	{
		name:    "Family",
		label:   "Family relationship",
		extends: []string{"Thing"},
		props: []Property{
			{Name: "relationship", Label: "Relationship", Type: TypeString},
		},
	},
}
