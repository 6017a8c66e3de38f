package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdentityPolicy describes how an entity type derives its identity key.
type IdentityPolicy string

const (
	// IdentityAutoAssign lets the store generate the key; caller supplied
	// keys are cleared on insert.
	IdentityAutoAssign IdentityPolicy = "auto"
	// IdentityFromField derives the key from a named field. The field
	// doubles as the "ID" column header during import.
	IdentityFromField IdentityPolicy = "field"
	// IdentityUserSupplied keeps whatever key the caller provides.
	IdentityUserSupplied IdentityPolicy = "prompt"
)

// ChildCollection declares a nested collection field on an entity schema.
type ChildCollection struct {
	FieldName string `json:"fieldname"`
	Label     string `json:"label"`
	// EntityType of the nested records.
	EntityType string `json:"entity_type"`
}

// EntitySchema describes one entity type in the store: its importable
// fields, identity policy and nested child collections.
type EntitySchema struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Label           string            `json:"label"`
	Fields          []FieldDescriptor `json:"fields"`
	IdentityPolicy  IdentityPolicy    `json:"identity_policy"`
	// IdentityField is the source field when IdentityPolicy is
	// IdentityFromField.
	IdentityField    string            `json:"identity_field,omitempty"`
	ChildCollections []ChildCollection `json:"child_collections,omitempty"`
	// Submittable entities support a finalize step after insert.
	Submittable bool `json:"submittable"`
	// IsChildTable marks schemas that only ever appear nested under a
	// parent entity.
	IsChildTable bool `json:"is_child_table"`
	// Version bumps on every schema change; resolver caches key on it.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntitySchema creates a new entity schema with immutable pattern
func NewEntitySchema(name, label string, fields []FieldDescriptor) EntitySchema {
	now := time.Now()
	return EntitySchema{
		ID:             uuid.New(),
		Name:           name,
		Label:          label,
		Fields:         copyFields(fields),
		IdentityPolicy: IdentityAutoAssign,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// WithField returns a new schema with an added/updated field
func (es EntitySchema) WithField(field FieldDescriptor) EntitySchema {
	newFields := copyFields(es.Fields)

	found := false
	for i, existing := range newFields {
		if existing.FieldName == field.FieldName {
			newFields[i] = field
			found = true
			break
		}
	}
	if !found {
		newFields = append(newFields, field)
	}

	next := es
	next.Fields = newFields
	next.Version = es.Version + 1
	next.UpdatedAt = time.Now()
	return next
}

// WithIdentityFromField returns a new schema whose identity derives from
// the named field.
func (es EntitySchema) WithIdentityFromField(fieldName string) EntitySchema {
	next := es
	next.Fields = copyFields(es.Fields)
	next.IdentityPolicy = IdentityFromField
	next.IdentityField = fieldName
	next.Version = es.Version + 1
	next.UpdatedAt = time.Now()
	return next
}

// WithChildCollection returns a new schema with an added child collection.
func (es EntitySchema) WithChildCollection(collection ChildCollection) EntitySchema {
	next := es
	next.Fields = copyFields(es.Fields)
	next.ChildCollections = append(append([]ChildCollection{}, es.ChildCollections...), collection)
	next.Version = es.Version + 1
	next.UpdatedAt = time.Now()
	return next
}

// Field returns the descriptor for a field name.
func (es EntitySchema) Field(name string) (FieldDescriptor, bool) {
	for _, field := range es.Fields {
		if field.FieldName == name {
			return field, true
		}
	}
	return FieldDescriptor{}, false
}

// IdentityFieldName resolves the field used to re-identify existing
// records: the autoname-style source field when identity derives from a
// field, otherwise the generic "name" key.
func (es EntitySchema) IdentityFieldName() string {
	if es.IdentityPolicy == IdentityFromField && es.IdentityField != "" {
		return es.IdentityField
	}
	return "name"
}

// Defaults returns the default scalar values declared on the schema.
func (es EntitySchema) Defaults() map[string]any {
	defaults := make(map[string]any)
	for _, field := range es.Fields {
		if field.Default != "" {
			defaults[field.FieldName] = field.Default
		}
	}
	return defaults
}

// copyFields creates a deep copy of the fields slice to ensure immutability
func copyFields(fields []FieldDescriptor) []FieldDescriptor {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDescriptor, len(fields))
	copy(newFields, fields)
	return newFields
}
