package index

import (
	"fmt"
)

// FieldKind is the mapping type of an index field.
type FieldKind string

const (
	// FieldText is analyzed full-text content.
	FieldText FieldKind = "text"
	// FieldKeyword is an exact-match, unanalyzed term (ids, uid, enums).
	FieldKeyword FieldKind = "keyword"
	// FieldDate is an RFC3339 timestamp.
	FieldDate FieldKind = "date"
)

// Field is one entry in an index's field-mapping contract.
type Field struct {
	Name string
	Kind FieldKind
}

// WeightedField is a full-text search field with its score multiplier.
type WeightedField struct {
	Name   string
	Weight float64
}

// IndexSchema describes one entity type's index: its name, the full
// field-mapping contract, and the weighted fields queried at search time.
// The mapping must not change shape across documents of the type.
type IndexSchema struct {
	Type         EntityType
	Name         string
	Fields       []Field
	SearchFields []WeightedField
}

// Field returns the mapping entry for name.
func (s IndexSchema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// TextFields returns the names of all analyzed text fields in mapping order.
func (s IndexSchema) TextFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Kind == FieldText {
			names = append(names, f.Name)
		}
	}
	return names
}

// validate checks the schema's internal consistency.
func (s IndexSchema) validate() error {
	if s.Type == "" || s.Name == "" {
		return fmt.Errorf("schema for %q: type and index name are required", s.Type)
	}
	if len(s.SearchFields) == 0 {
		return fmt.Errorf("schema %s: no search fields", s.Name)
	}
	for _, required := range []string{"id", "uid"} {
		f, ok := s.Field(required)
		if !ok {
			return fmt.Errorf("schema %s: missing required field %q", s.Name, required)
		}
		if f.Kind != FieldKeyword {
			return fmt.Errorf("schema %s: field %q must be a keyword field", s.Name, required)
		}
	}
	for _, wf := range s.SearchFields {
		f, ok := s.Field(wf.Name)
		if !ok {
			return fmt.Errorf("schema %s: search field %q not in mapping", s.Name, wf.Name)
		}
		if f.Kind != FieldText {
			return fmt.Errorf("schema %s: search field %q is not a text field", s.Name, wf.Name)
		}
		if wf.Weight <= 0 {
			return fmt.Errorf("schema %s: search field %q has non-positive weight", s.Name, wf.Name)
		}
	}
	return nil
}

// Registry is the immutable entity-type to index-schema table.
// It is validated once at construction and read-only afterwards.
type Registry struct {
	schemas map[EntityType]IndexSchema
	order   []EntityType
}

// NewRegistry builds a registry from schemas, validating each entry.
func NewRegistry(schemas []IndexSchema) (*Registry, error) {
	r := &Registry{schemas: make(map[EntityType]IndexSchema, len(schemas))}
	for _, s := range schemas {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.schemas[s.Type]; dup {
			return nil, fmt.Errorf("duplicate schema for entity type %q", s.Type)
		}
		r.schemas[s.Type] = s
		r.order = append(r.order, s.Type)
	}
	return r, nil
}

// ForType returns the schema registered for t.
func (r *Registry) ForType(t EntityType) (IndexSchema, error) {
	s, ok := r.schemas[t]
	if !ok {
		return IndexSchema{}, fmt.Errorf("no index schema for entity type %q", t)
	}
	return s, nil
}

// All returns every registered schema in registration order.
func (r *Registry) All() []IndexSchema {
	out := make([]IndexSchema, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.schemas[t])
	}
	return out
}

// DefaultRegistry returns the built-in schema table. Title-like fields
// are weighted 2x over body fields; scores from all matching fields are
// summed (most-fields semantics).
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]IndexSchema{
		{
			Type: TypeResource,
			Name: "resources",
			Fields: []Field{
				{Name: "id", Kind: FieldKeyword},
				{Name: "title", Kind: FieldText},
				{Name: "content", Kind: FieldText},
				{Name: "url", Kind: FieldKeyword},
				{Name: "createdAt", Kind: FieldDate},
				{Name: "updatedAt", Kind: FieldDate},
				{Name: "uid", Kind: FieldKeyword},
			},
			SearchFields: []WeightedField{
				{Name: "title", Weight: 2},
				{Name: "content", Weight: 1},
			},
		},
		{
			Type: TypeNote,
			Name: "notes",
			Fields: []Field{
				{Name: "id", Kind: FieldKeyword},
				{Name: "title", Kind: FieldText},
				{Name: "content", Kind: FieldText},
				{Name: "createdAt", Kind: FieldDate},
				{Name: "updatedAt", Kind: FieldDate},
				{Name: "uid", Kind: FieldKeyword},
			},
			SearchFields: []WeightedField{
				{Name: "title", Weight: 2},
				{Name: "content", Weight: 1},
			},
		},
		{
			Type: TypeCollection,
			Name: "collections",
			Fields: []Field{
				{Name: "id", Kind: FieldKeyword},
				{Name: "title", Kind: FieldText},
				{Name: "description", Kind: FieldText},
				{Name: "createdAt", Kind: FieldDate},
				{Name: "updatedAt", Kind: FieldDate},
				{Name: "uid", Kind: FieldKeyword},
			},
			SearchFields: []WeightedField{
				{Name: "title", Weight: 2},
				{Name: "description", Weight: 1},
			},
		},
		{
			Type: TypeConversationMessage,
			Name: "conversation_messages",
			Fields: []Field{
				{Name: "id", Kind: FieldKeyword},
				{Name: "convId", Kind: FieldKeyword},
				{Name: "convTitle", Kind: FieldText},
				{Name: "content", Kind: FieldText},
				{Name: "type", Kind: FieldKeyword},
				{Name: "createdAt", Kind: FieldDate},
				{Name: "updatedAt", Kind: FieldDate},
				{Name: "uid", Kind: FieldKeyword},
			},
			SearchFields: []WeightedField{
				{Name: "convTitle", Weight: 2},
				{Name: "content", Weight: 1},
			},
		},
		{
			Type: TypeSkill,
			Name: "skills",
			Fields: []Field{
				{Name: "id", Kind: FieldKeyword},
				{Name: "displayName", Kind: FieldText},
				{Name: "description", Kind: FieldText},
				{Name: "tplName", Kind: FieldText},
				{Name: "createdAt", Kind: FieldDate},
				{Name: "updatedAt", Kind: FieldDate},
				{Name: "uid", Kind: FieldKeyword},
			},
			SearchFields: []WeightedField{
				{Name: "displayName", Weight: 2},
				{Name: "description", Weight: 1},
				{Name: "tplName", Weight: 1},
			},
		},
	})
	if err != nil {
		// The built-in table is static; a validation failure here is a
		// programming error.
		panic(err)
	}
	return r
}
