package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rfenton/docimport/internal/domain"
	"github.com/rfenton/docimport/internal/repository"
)

// LinkMemo caches link-existence lookups per (entity, value) pair for the
// duration of one run. The run driver marks keys created mid-run so a
// stale "does not exist" never survives past the point the referenced
// record was created.
type LinkMemo struct {
	mu    sync.Mutex
	known map[string]bool
}

// NewLinkMemo creates an empty memo.
func NewLinkMemo() *LinkMemo {
	return &LinkMemo{known: make(map[string]bool)}
}

// Exists checks link existence through the memo.
func (m *LinkMemo) Exists(ctx context.Context, store repository.Store, entityType, value string) (bool, error) {
	key := entityType + "::" + value
	m.mu.Lock()
	exists, ok := m.known[key]
	m.mu.Unlock()
	if ok {
		return exists, nil
	}

	exists, err := store.Exists(ctx, entityType, value)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	m.known[key] = exists
	m.mu.Unlock()
	return exists, nil
}

// MarkCreated records that a key now exists.
func (m *LinkMemo) MarkCreated(entityType, value string) {
	m.mu.Lock()
	m.known[entityType+"::"+value] = true
	m.mu.Unlock()
}

// pseudo fieldnames never set on parsed records.
var internalFieldNames = map[string]bool{
	"owner":       true,
	"parent":      true,
	"parenttype":  true,
	"parentfield": true,
	"idx":         true,
}

// Row is one data row of an import file. Raw values align positionally
// with the header's columns; a cardinality mismatch is a non-fatal
// warning and access past the end yields absent values.
type Row struct {
	Index int
	// RowNumber is 1-based and refers to the source file line.
	RowNumber int
	Data      []string
	Warnings  []domain.Warning

	header     *Header
	importType domain.ImportType
	linkMemo   *LinkMemo
	store      repository.Store
}

func newRow(index int, data []string, header *Header, importType domain.ImportType, store repository.Store, memo *LinkMemo) *Row {
	r := &Row{
		Index:      index,
		RowNumber:  index + 1,
		Data:       data,
		header:     header,
		importType: importType,
		linkMemo:   memo,
		store:      store,
	}

	if len(data) != len(header.Columns) {
		message := "Row has more values than columns"
		if len(data) < len(header.Columns) {
			message = "Row has less values than columns"
		}
		r.Warnings = append(r.Warnings, domain.Warning{
			Message:  message,
			Severity: domain.SeverityInfo,
			Row:      r.RowNumber,
		})
	}
	return r
}

// Values reads the raw cells at the given column indexes.
func (r *Row) Values(indexes []int) []string {
	values := make([]string, len(indexes))
	for i, idx := range indexes {
		values[i] = cellAt(r.Data, idx)
	}
	return values
}

// Blank reports whether every cell at the given indexes is empty.
func (r *Row) Blank(indexes []int) bool {
	for _, idx := range indexes {
		if cellAt(r.Data, idx) != "" {
			return false
		}
	}
	return true
}

// ExtractEntity builds the record for one (entity, child collection)
// scope of this row. Returns nil when every relevant cell is empty, in
// which case the row contributes nothing to that scope.
func (r *Row) ExtractEntity(ctx context.Context, entityType, childCollectionField string) (*domain.Record, error) {
	indexes := r.header.ColumnIndexes(entityType, childCollectionField)
	if len(indexes) == 0 || r.Blank(indexes) {
		return nil, nil
	}

	schema, err := r.store.SchemaOf(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema for %s: %w", entityType, err)
	}

	rec := domain.NewRecord(entityType)
	if r.importType == domain.ImportTypeInsert {
		rec = domain.NewRecordWithDefaults(schema)
	}

	columns := r.header.ColumnsAt(indexes)
	values := r.Values(indexes)
	for i, col := range columns {
		value := values[i]
		if value == "" {
			continue
		}

		validated, keep := r.validateValue(ctx, value, col)
		if !keep {
			continue
		}

		coerced := r.coerceValue(validated, col)
		if coerced == nil {
			continue
		}

		fieldName := col.Descriptor.FieldName
		if internalFieldNames[fieldName] {
			continue
		}
		if fieldName == "name" {
			rec.Key = fmt.Sprintf("%v", coerced)
			continue
		}
		rec.Set(fieldName, coerced)
	}

	if childCollectionField != "" && r.importType == domain.ImportTypeUpdate {
		merged, err := r.mergeExistingChild(ctx, schema, rec)
		if err != nil {
			return nil, err
		}
		rec = merged
	}

	return &rec, nil
}

// mergeExistingChild resolves update-mode child rows against persisted
// records: when the row names an existing child, new values overlay a
// fetched copy so prior fields survive; otherwise the row starts from the
// child schema's defaults.
func (r *Row) mergeExistingChild(ctx context.Context, schema domain.EntitySchema, rec domain.Record) (domain.Record, error) {
	idValue := rec.Key
	if idValue == "" {
		idValue = rec.GetString(schema.IdentityFieldName())
	}

	if idValue != "" {
		exists, err := r.store.Exists(ctx, schema.Name, idValue)
		if err != nil {
			return domain.Record{}, err
		}
		if exists {
			existing, err := r.store.Get(ctx, schema.Name, idValue)
			if err != nil {
				return domain.Record{}, err
			}
			return existing.Merge(rec), nil
		}
	}

	fresh := domain.NewRecordWithDefaults(schema)
	return fresh.Merge(rec), nil
}

// validateValue applies per-cell constraints. Dropped values (keep=false)
// are treated as absent for the cell; the warning may surface again as a
// persistence error downstream.
func (r *Row) validateValue(ctx context.Context, value string, col *Column) (string, bool) {
	descriptor := col.Descriptor
	switch descriptor.FieldType {
	case domain.FieldTypeSelect:
		options := descriptor.SelectOptions()
		if len(options) == 0 {
			return value, true
		}
		for _, option := range options {
			if option == value {
				return value, true
			}
		}
		r.warnField(col, "Value must be one of %s", strings.Join(options, ", "))
		return "", false

	case domain.FieldTypeLink:
		exists, err := r.linkMemo.Exists(ctx, r.store, descriptor.Options, value)
		if err != nil {
			r.warnField(col, "Could not verify value %s against %s: %v", value, descriptor.Options, err)
			return "", false
		}
		if !exists {
			r.warnField(col, "Value %s missing for %s", value, descriptor.Options)
			return "", false
		}
		return value, true

	case domain.FieldTypeDate, domain.FieldTypeDateTime:
		if _, err := time.Parse(col.DateLayout, value); err != nil {
			// Not auto-corrected; the unparsed string stays and the
			// import of this cell will likely fail downstream.
			r.warnField(col, "Value %s must be in %s format", value, col.DateLayout)
		}
		return value, true

	case domain.FieldTypeDuration:
		if !validDuration(value) {
			r.warnField(col, "Value %s must be in the valid duration format: d h m s", value)
		}
		return value, true
	}

	return value, true
}

// coerceValue turns a validated raw value into its typed form.
func (r *Row) coerceValue(value string, col *Column) any {
	switch col.Descriptor.FieldType {
	case domain.FieldTypeCheckbox:
		normalized := strings.ToLower(strings.TrimSpace(value))
		switch normalized {
		case "t", "true", "y", "yes":
			return int64(1)
		case "f", "false", "n", "no":
			return int64(0)
		}
		return castInt(value)
	case domain.FieldTypeInteger:
		return castInt(value)
	case domain.FieldTypeFloat, domain.FieldTypePercent, domain.FieldTypeCurrency:
		return castFloat(value)
	case domain.FieldTypeDate, domain.FieldTypeDateTime, domain.FieldTypeTime:
		if parsed, err := time.Parse(col.DateLayout, value); err == nil {
			return parsed
		}
		return value
	case domain.FieldTypeDuration:
		if validDuration(value) {
			return durationToSeconds(value)
		}
		return value
	}
	return value
}

func (r *Row) warnField(col *Column, format string, args ...any) {
	w := domain.Warningf(format, args...)
	w.Row = r.RowNumber
	w.Col = col.ColumnNumber()
	w.Field = col.Descriptor.FieldName
	r.Warnings = append(r.Warnings, w)
}

// castInt mirrors tolerant numeric casting: non-numeric input becomes 0.
func castInt(value string) int64 {
	value = strings.TrimSpace(value)
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int64(f)
	}
	return 0
}

// castFloat mirrors tolerant numeric casting: non-numeric input becomes 0.
func castFloat(value string) float64 {
	value = strings.TrimSpace(value)
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return 0
}
