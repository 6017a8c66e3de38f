package domain

// Record is one parsed entity payload: a typed scalar field map plus
// named lists of nested child records. It replaces free-form dictionary
// mutation with an explicit two-variant shape; scalar fields and child
// collections never share a key.
type Record struct {
	// Key is the store identity of the record, empty until persisted or
	// parsed from an identity column.
	Key        string              `json:"key,omitempty"`
	EntityType string              `json:"entity_type"`
	Fields     map[string]any      `json:"fields"`
	Children   map[string][]Record `json:"children,omitempty"`
}

// NewRecord creates an empty record for an entity type.
func NewRecord(entityType string) Record {
	return Record{
		EntityType: entityType,
		Fields:     make(map[string]any),
	}
}

// NewRecordWithDefaults creates a record seeded with the schema defaults.
func NewRecordWithDefaults(schema EntitySchema) Record {
	rec := NewRecord(schema.Name)
	for name, value := range schema.Defaults() {
		rec.Fields[name] = value
	}
	return rec
}

// Set assigns a scalar field value.
func (r *Record) Set(field string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[field] = value
}

// Get returns a scalar field value.
func (r Record) Get(field string) (any, bool) {
	value, ok := r.Fields[field]
	return value, ok
}

// GetString returns a scalar field value as a string if it is one.
func (r Record) GetString(field string) string {
	if value, ok := r.Fields[field]; ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return ""
}

// AppendChild appends a nested record to the named collection, preserving
// insertion order as collection order.
func (r *Record) AppendChild(collectionField string, child Record) {
	if r.Children == nil {
		r.Children = make(map[string][]Record)
	}
	r.Children[collectionField] = append(r.Children[collectionField], child)
}

// HasChildren reports whether the named collection holds any records.
// A collection never appended to is absent, which is distinct from an
// empty list.
func (r Record) HasChildren(collectionField string) bool {
	_, ok := r.Children[collectionField]
	return ok
}

// Merge overlays the other record's scalar fields and child lists onto a
// copy of this record. Existing structure wins, incoming values overwrite
// matching fields.
func (r Record) Merge(other Record) Record {
	merged := r.Clone()
	for field, value := range other.Fields {
		merged.Fields[field] = value
	}
	for collection, children := range other.Children {
		merged.Children = ensureChildren(merged.Children)
		merged.Children[collection] = cloneRecords(children)
	}
	if other.Key != "" {
		merged.Key = other.Key
	}
	return merged
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := Record{
		Key:        r.Key,
		EntityType: r.EntityType,
		Fields:     make(map[string]any, len(r.Fields)),
	}
	for field, value := range r.Fields {
		clone.Fields[field] = value
	}
	if r.Children != nil {
		clone.Children = make(map[string][]Record, len(r.Children))
		for collection, children := range r.Children {
			clone.Children[collection] = cloneRecords(children)
		}
	}
	return clone
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

func ensureChildren(children map[string][]Record) map[string][]Record {
	if children == nil {
		return make(map[string][]Record)
	}
	return children
}
