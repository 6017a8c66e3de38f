package importer

import (
	"context"

	"github.com/rfenton/docimport/internal/domain"
	"github.com/rfenton/docimport/internal/repository"
)

// Header is the parsed first row of an import file: the ordered columns
// plus the derived set of (entity, child collection) target groups to be
// extracted from every data row.
type Header struct {
	RowIndex int
	Columns  []*Column
	// TargetGroups is deduplicated and ordered with the root entity's
	// group first; child groups follow in first-seen order.
	TargetGroups []domain.TargetGroup

	entityType string
}

// newHeader builds the header from the raw header row and the full raw
// matrix (each column's data cells feed column-level validation).
// overrides maps column index to an explicit fieldname or SkipField.
func newHeader(ctx context.Context, rowIndex int, headerRow []string, dataRows [][]string, overrides map[int]string, fieldIndex FieldIndex, store repository.Store) (*Header, error) {
	h := &Header{
		RowIndex:   rowIndex,
		entityType: fieldIndex.Schema().Name,
	}

	seen := make(map[string]bool)
	for j, title := range headerRow {
		values := make([]string, 0, len(dataRows))
		for _, row := range dataRows {
			values = append(values, cellAt(row, j))
		}

		col := newColumn(j, title, values, overrides[j], seen, fieldIndex)
		seen[title] = true
		if err := col.validateValues(ctx, store); err != nil {
			return nil, err
		}
		h.Columns = append(h.Columns, col)
	}

	h.deriveTargetGroups()
	return h, nil
}

func (h *Header) deriveTargetGroups() {
	seen := make(map[domain.TargetGroup]bool)
	var root []domain.TargetGroup
	var children []domain.TargetGroup

	for _, col := range h.Columns {
		if col.SkipImport || col.Descriptor == nil {
			continue
		}
		group := domain.TargetGroup{
			Entity:               col.Descriptor.OwningEntity,
			ChildCollectionField: col.Descriptor.ChildCollectionField,
		}
		if seen[group] {
			continue
		}
		seen[group] = true
		if group.IsRoot(h.entityType) {
			root = append(root, group)
		} else {
			children = append(children, group)
		}
	}

	h.TargetGroups = append(root, children...)
}

// ColumnIndexes returns the ordered column indexes belonging to one
// (entity, child collection) pair, excluding skipped columns.
func (h *Header) ColumnIndexes(entity, childCollectionField string) []int {
	var indexes []int
	for _, col := range h.Columns {
		if col.SkipImport || col.Descriptor == nil {
			continue
		}
		if col.Descriptor.OwningEntity != entity {
			continue
		}
		if col.Descriptor.ChildCollectionField != childCollectionField {
			continue
		}
		indexes = append(indexes, col.Index)
	}
	return indexes
}

// ColumnsAt returns the columns at the given indexes.
func (h *Header) ColumnsAt(indexes []int) []*Column {
	columns := make([]*Column, 0, len(indexes))
	for _, idx := range indexes {
		columns = append(columns, h.Columns[idx])
	}
	return columns
}

// Warnings collects the warnings of every column.
func (h *Header) Warnings() []domain.Warning {
	var warnings []domain.Warning
	for _, col := range h.Columns {
		warnings = append(warnings, col.Warnings...)
	}
	return warnings
}

// HeaderTitles returns the raw header strings in column order.
func (h *Header) HeaderTitles() []string {
	titles := make([]string, len(h.Columns))
	for i, col := range h.Columns {
		titles[i] = col.HeaderTitle
	}
	return titles
}

// cellAt reads a cell with best-effort positional access; out-of-range
// reads yield the empty value.
func cellAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}
