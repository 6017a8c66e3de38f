package importer

import (
	"context"
	"testing"

	"github.com/rfenton/docimport/internal/domain"
)

func TestFieldIndexHeaderKeys(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	resolver := NewColumnResolver(store)
	fieldIndex, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to build field index: %v", err)
	}

	cases := map[string]string{
		"Title":               "title",
		"title":               "title",
		"Title (title)":       "title",
		"ID":                  "name",
		"name":                "name",
		"Owner":               "owner",
		"items.description":   "description",
		"Description (Items)": "description",
		"items.name":          "name",
		"ID (Items)":          "name",
		"items.parent":        "parent",
	}
	for header, want := range cases {
		descriptor, ok := fieldIndex.Lookup(header)
		if !ok {
			t.Fatalf("expected header %q to resolve", header)
		}
		if descriptor.FieldName != want {
			t.Fatalf("header %q: expected fieldname %q, got %q", header, want, descriptor.FieldName)
		}
	}

	if _, ok := fieldIndex.Lookup("Nonexistent"); ok {
		t.Fatalf("expected unknown header to miss")
	}

	child, _ := fieldIndex.Lookup("Description (Items)")
	if child.OwningEntity != "Task Item" || child.ChildCollectionField != "items" {
		t.Fatalf("unexpected child descriptor: %+v", child)
	}
}

func TestFieldIndexIdentityFromFieldRemapsIDHeaders(t *testing.T) {
	schemas := taskSchemas()
	schemas[0] = schemas[0].WithIdentityFromField("title")
	store := newStubStore(schemas...)
	resolver := NewColumnResolver(store)

	fieldIndex, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to build field index: %v", err)
	}

	descriptor, ok := fieldIndex.Lookup("ID")
	if !ok || descriptor.FieldName != "title" {
		t.Fatalf("expected ID header to map to the identity source field, got %+v", descriptor)
	}
}

func TestFieldIndexCacheInvalidation(t *testing.T) {
	store := newStubStore(taskSchemas()...)
	resolver := NewColumnResolver(store)

	first, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to build field index: %v", err)
	}
	if _, ok := first.Lookup("Deadline"); ok {
		t.Fatalf("did not expect Deadline before the schema change")
	}

	// Same version, cached index returned.
	again, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to rebuild field index: %v", err)
	}
	if again.Schema().Version != first.Schema().Version {
		t.Fatalf("expected cached index for unchanged schema")
	}

	// A version bump rebuilds the index without an explicit invalidation.
	store.schemas["Task"] = store.schemas["Task"].WithField(domain.FieldDescriptor{
		FieldType: domain.FieldTypeDate,
		FieldName: "deadline",
		Label:     "Deadline",
	})
	rebuilt, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to rebuild field index: %v", err)
	}
	if _, ok := rebuilt.Lookup("Deadline"); !ok {
		t.Fatalf("expected Deadline after the schema change")
	}

	resolver.InvalidateSchema("Task")
	afterInvalidate, err := resolver.FieldIndexFor(context.Background(), "Task")
	if err != nil {
		t.Fatalf("failed to rebuild after invalidation: %v", err)
	}
	if _, ok := afterInvalidate.Lookup("Deadline"); !ok {
		t.Fatalf("expected rebuilt index after explicit invalidation")
	}
}
