// Package schema holds the read-only entity model: property types, the schema
// graph, and the projection from raw records to typed entities.
//
// The model is loaded once at startup and never mutated afterwards. Schemas
// form a multiple-inheritance graph; rather than encoding that with embedding,
// each schema is a plain record carrying parent pointers, and derived sets
// (descendants, matchable schemata) are memoized on the model.
package schema

// PropertyType describes the value semantics of a property. Group names the
// index field that values of this type are folded into; types with an empty
// group are only searchable through the free-text field.
type PropertyType struct {
	Name  string
	Group string
}

// Text reports whether values of this type are prose rather than discrete
// terms. Text values never participate in exact terms matching.
func (t *PropertyType) Text() bool {
	switch t {
	case TypeText, TypeString, TypeAddress:
		return true
	}
	return false
}

// The type registry. Pointer identity is used for comparisons throughout.
var (
	TypeName       = &PropertyType{Name: "name", Group: "names"}
	TypeDate       = &PropertyType{Name: "date", Group: "dates"}
	TypeCountry    = &PropertyType{Name: "country", Group: "countries"}
	TypeAddress    = &PropertyType{Name: "address", Group: "addresses"}
	TypeIdentifier = &PropertyType{Name: "identifier", Group: "identifiers"}
	TypeTopic      = &PropertyType{Name: "topic", Group: "topics"}
	TypeEmail      = &PropertyType{Name: "email", Group: "emails"}
	TypePhone      = &PropertyType{Name: "phone", Group: "phones"}
	TypeGender     = &PropertyType{Name: "gender", Group: "genders"}
	TypeLanguage   = &PropertyType{Name: "language", Group: "languages"}
	TypeURL        = &PropertyType{Name: "url", Group: ""}
	TypeString     = &PropertyType{Name: "string", Group: ""}
	TypeText       = &PropertyType{Name: "text", Group: ""}
	TypeEntity     = &PropertyType{Name: "entity", Group: ""}
)

// Groups lists every non-empty property group in the model, in a stable order.
// The index mapping derives one keyword field per group from this list.
func Groups() []string {
	return []string{
		"names", "dates", "countries", "addresses", "identifiers",
		"topics", "emails", "phones", "genders", "languages",
	}
}
