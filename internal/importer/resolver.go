package importer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rfenton/docimport/internal/domain"
	"github.com/rfenton/docimport/internal/repository"
)

// FieldIndex maps every reasonable header string of a target entity to a
// field descriptor: labels, fieldnames, "Label (fieldname)" combinations,
// and for child-collection fields "Label (Table Label)" and
// "tablefield.fieldname" combinations.
type FieldIndex struct {
	byHeader map[string]domain.FieldDescriptor
	schema   domain.EntitySchema
}

// Lookup resolves a header string to a field descriptor.
func (fi FieldIndex) Lookup(header string) (domain.FieldDescriptor, bool) {
	descriptor, ok := fi.byHeader[header]
	return descriptor, ok
}

// Schema returns the root entity schema the index was built from.
func (fi FieldIndex) Schema() domain.EntitySchema {
	return fi.schema
}

// ColumnResolver builds and caches header-to-field indexes per entity
// type. The cache lives for the process; InvalidateSchema is the keyed
// hook callers use when an entity's schema changes.
type ColumnResolver struct {
	store repository.Store

	mu       sync.Mutex
	cache    map[string]FieldIndex
	versions map[string]int64
}

// NewColumnResolver creates a resolver backed by the given store.
func NewColumnResolver(store repository.Store) *ColumnResolver {
	return &ColumnResolver{
		store:    store,
		cache:    make(map[string]FieldIndex),
		versions: make(map[string]int64),
	}
}

// InvalidateSchema drops the cached index for an entity type.
func (r *ColumnResolver) InvalidateSchema(entityType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, entityType)
	delete(r.versions, entityType)
}

// FieldIndexFor returns the cached index for an entity type, rebuilding
// it when the schema version moved since the index was built.
func (r *ColumnResolver) FieldIndexFor(ctx context.Context, entityType string) (FieldIndex, error) {
	schema, err := r.store.SchemaOf(ctx, entityType)
	if err != nil {
		return FieldIndex{}, fmt.Errorf("failed to load schema for %s: %w", entityType, err)
	}

	r.mu.Lock()
	cached, ok := r.cache[entityType]
	version := r.versions[entityType]
	r.mu.Unlock()
	if ok && version == schema.Version {
		return cached, nil
	}

	index, err := r.buildIndex(ctx, schema)
	if err != nil {
		return FieldIndex{}, err
	}

	r.mu.Lock()
	r.cache[entityType] = index
	r.versions[entityType] = schema.Version
	r.mu.Unlock()
	return index, nil
}

func (r *ColumnResolver) buildIndex(ctx context.Context, schema domain.EntitySchema) (FieldIndex, error) {
	out := make(map[string]domain.FieldDescriptor)

	// put registers a header key. First one wins so that duplicate labels
	// across fields resolve to the field declared first.
	put := func(header string, descriptor domain.FieldDescriptor) {
		if header == "" {
			return
		}
		if _, exists := out[header]; !exists {
			out[header] = descriptor
		}
	}
	// force overrides regardless of prior entries; used for fieldname
	// keys and combined "Label (fieldname)" keys which are unambiguous.
	force := func(header string, descriptor domain.FieldDescriptor) {
		if header != "" {
			out[header] = descriptor
		}
	}

	index := func(owner domain.EntitySchema, collection *domain.ChildCollection) {
		identity := identityDescriptor(owner, collection)
		if collection == nil {
			put("name", identity)
			put("ID", identity)
		} else {
			put(collection.FieldName+".name", identity)
			put(fmt.Sprintf("ID (%s)", collection.Label), identity)
		}

		for _, pseudo := range standardFields(owner, collection) {
			put(pseudo.Label, pseudo)
			force(pseudoHeaderFieldName(pseudo, collection), pseudo)
		}

		for _, field := range owner.Fields {
			descriptor := field
			descriptor.OwningEntity = owner.Name
			if collection != nil {
				descriptor.ChildCollectionField = collection.FieldName
				descriptor.ChildCollectionLabel = collection.Label
			}

			if collection == nil {
				put(descriptor.Label, descriptor)
				force(descriptor.FieldName, descriptor)
				force(fmt.Sprintf("%s (%s)", descriptor.Label, descriptor.FieldName), descriptor)
			} else {
				force(fmt.Sprintf("%s.%s", collection.FieldName, descriptor.FieldName), descriptor)
				put(fmt.Sprintf("%s (%s)", descriptor.Label, collection.Label), descriptor)
			}
		}
	}

	index(schema, nil)
	for i := range schema.ChildCollections {
		collection := schema.ChildCollections[i]
		childSchema, err := r.store.SchemaOf(ctx, collection.EntityType)
		if err != nil {
			return FieldIndex{}, fmt.Errorf("failed to load child schema for %s: %w", collection.EntityType, err)
		}
		index(childSchema, &collection)
	}

	// When the identity derives from a field, the ID headers map to that
	// field so that "ID" columns feed the autoname source directly.
	if schema.IdentityPolicy == domain.IdentityFromField && schema.IdentityField != "" {
		if field, ok := schema.Field(schema.IdentityField); ok {
			field.OwningEntity = schema.Name
			force("ID", field)
			force("name", field)
			force(fmt.Sprintf("ID (%s)", field.Label), field)
		}
	}

	return FieldIndex{byHeader: out, schema: schema}, nil
}

// identityDescriptor synthesizes the read-only identity pseudo-field for
// an entity or child collection.
func identityDescriptor(owner domain.EntitySchema, collection *domain.ChildCollection) domain.FieldDescriptor {
	descriptor := domain.FieldDescriptor{
		FieldType:    domain.FieldTypePlainText,
		FieldName:    "name",
		Label:        "ID",
		OwningEntity: owner.Name,
		Required:     true,
	}
	if collection != nil {
		descriptor.ChildCollectionField = collection.FieldName
		descriptor.ChildCollectionLabel = collection.Label
	}
	return descriptor
}

// standardFields lists the synthetic pseudo-fields beyond identity:
// owner for root entities, parent linkage and row index for child tables.
func standardFields(owner domain.EntitySchema, collection *domain.ChildCollection) []domain.FieldDescriptor {
	var defs []struct{ label, fieldname string }
	if collection == nil {
		defs = []struct{ label, fieldname string }{
			{"Owner", "owner"},
		}
	} else {
		defs = []struct{ label, fieldname string }{
			{"Parent", "parent"},
			{"Parent Type", "parenttype"},
			{"Parent Field", "parentfield"},
			{"Row Index", "idx"},
		}
	}

	out := make([]domain.FieldDescriptor, 0, len(defs))
	for _, def := range defs {
		descriptor := domain.FieldDescriptor{
			FieldType:    domain.FieldTypePlainText,
			FieldName:    def.fieldname,
			Label:        def.label,
			OwningEntity: owner.Name,
		}
		if def.fieldname == "idx" {
			descriptor.FieldType = domain.FieldTypeInteger
		}
		if collection != nil {
			descriptor.ChildCollectionField = collection.FieldName
			descriptor.ChildCollectionLabel = collection.Label
		}
		out = append(out, descriptor)
	}
	return out
}

func pseudoHeaderFieldName(descriptor domain.FieldDescriptor, collection *domain.ChildCollection) string {
	if collection == nil {
		return descriptor.FieldName
	}
	return collection.FieldName + "." + descriptor.FieldName
}
