package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rfenton/docimport/internal/domain"
	"github.com/rfenton/docimport/internal/repository"
)

// SkipField is the explicit override value that marks a column as not
// imported.
const SkipField = "Don't Import"

// Column wraps one header cell: its resolved field descriptor, the
// warnings raised while resolving it and, for date columns, the layout
// inferred from the values beneath it.
type Column struct {
	Index       int
	HeaderTitle string
	// Descriptor is nil when the column is not imported.
	Descriptor *domain.FieldDescriptor
	SkipImport bool
	// DateLayout is the inferred per-column date layout, empty for
	// non-date columns.
	DateLayout string
	Warnings   []domain.Warning

	values []string
}

// ColumnNumber is the 1-based position used in user-facing messages.
func (c *Column) ColumnNumber() int {
	return c.Index + 1
}

// newColumn resolves one header cell against the field index. values is
// the full column of data cells beneath the header, used later by
// validateValues. seen holds the header titles already consumed to the
// left; a duplicate forces skipImport.
func newColumn(index int, headerTitle string, values []string, override string, seen map[string]bool, fieldIndex FieldIndex) *Column {
	col := &Column{
		Index:       index,
		HeaderTitle: headerTitle,
		values:      values,
	}
	col.resolve(override, seen, fieldIndex)
	return col
}

func (c *Column) resolve(override string, seen map[string]bool, fieldIndex FieldIndex) {
	var descriptor *domain.FieldDescriptor

	switch {
	case override == SkipField:
		// Explicit "don't import" short-circuits without a blocking
		// warning; the notice keeps the skip visible in previews.
		c.SkipImport = true
		c.warn(domain.Infof("Skipping column %s", c.title()))
		return
	case override != "":
		if d, ok := fieldIndex.Lookup(override); ok {
			descriptor = &d
			c.warn(domain.Infof("Mapping column %s to field %s", c.title(), d.Label))
		} else {
			c.warn(domain.Infof("Could not map column %d to field %s", c.ColumnNumber(), override))
		}
	default:
		if d, ok := fieldIndex.Lookup(c.HeaderTitle); ok {
			descriptor = &d
		}
	}

	if seen[c.HeaderTitle] {
		// First column with this header wins; later ones are unmapped.
		c.warn(domain.Infof("Skipping duplicate column %s", c.title()))
		c.Descriptor = nil
		c.SkipImport = true
		return
	}

	if descriptor == nil {
		c.SkipImport = true
		if c.HeaderTitle != "" {
			c.warn(domain.Infof("Cannot match column %s with any field", c.title()))
		} else {
			c.warn(domain.Infof("Skipping untitled column %d", c.ColumnNumber()))
		}
		return
	}

	c.Descriptor = descriptor
}

// validateValues pre-validates the whole column of data cells: link
// existence in bulk, select-option membership, and date layout
// consistency. Runs once after resolution.
func (c *Column) validateValues(ctx context.Context, store repository.Store) error {
	if c.SkipImport || c.Descriptor == nil {
		return nil
	}
	if !c.hasValue() {
		return nil
	}

	switch {
	case c.Descriptor.FieldType == domain.FieldTypeLink:
		return c.validateLinkValues(ctx, store)
	case c.Descriptor.FieldType.IsDateLike():
		c.inferDateLayout()
	case c.Descriptor.FieldType == domain.FieldTypeSelect:
		c.validateSelectValues()
	}
	return nil
}

func (c *Column) validateLinkValues(ctx context.Context, store repository.Store) error {
	distinct := make(map[string]bool)
	var values []string
	for _, value := range c.values {
		if value == "" || distinct[value] {
			continue
		}
		distinct[value] = true
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil
	}

	target := c.Descriptor.Options
	existing, err := store.ListExistingKeys(ctx, target, values)
	if err != nil {
		return fmt.Errorf("failed to check %s links for column %d: %w", target, c.ColumnNumber(), err)
	}

	exists := make(map[string]bool, len(existing))
	for _, key := range existing {
		exists[key] = true
	}
	var missing []string
	for _, value := range values {
		if !exists[value] {
			missing = append(missing, value)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		w := domain.Warningf("The following values do not exist for %s: %s", target, strings.Join(missing, ", "))
		w.Col = c.ColumnNumber()
		c.warn(w)
	}
	return nil
}

func (c *Column) inferDateLayout() {
	layout, distinct := inferColumnDateLayout(c.values)
	if distinct == 0 {
		c.DateLayout = defaultLayoutFor(c.Descriptor.FieldType)
		c.warn(domain.Warning{
			Message:  fmt.Sprintf("%s format could not be determined from the values in this column. Defaulting to %s.", c.Descriptor.FieldType, c.DateLayout),
			Severity: domain.SeverityInfo,
			Col:      c.ColumnNumber(),
		})
		return
	}

	c.DateLayout = layout
	if distinct > 1 {
		c.warn(domain.Warning{
			Message: fmt.Sprintf(
				"The column %s has %d different date formats. Automatically setting %s as the default format as it is the most common. Please change other values in this column to this format.",
				c.title(), distinct, layout),
			Severity: domain.SeverityInfo,
			Col:      c.ColumnNumber(),
		})
	}
}

func (c *Column) validateSelectValues() {
	options := c.Descriptor.SelectOptions()
	if len(options) == 0 {
		return
	}
	permitted := make(map[string]bool, len(options))
	for _, option := range options {
		permitted[option] = true
	}

	invalidSet := make(map[string]bool)
	var invalid []string
	for _, value := range c.values {
		if value == "" || permitted[value] || invalidSet[value] {
			continue
		}
		invalidSet[value] = true
		invalid = append(invalid, value)
	}
	if len(invalid) > 0 {
		w := domain.Warningf("The following values are invalid: %s. Values must be one of %s",
			strings.Join(invalid, ", "), strings.Join(options, ", "))
		w.Col = c.ColumnNumber()
		c.warn(w)
	}
}

func (c *Column) hasValue() bool {
	for _, value := range c.values {
		if value != "" {
			return true
		}
	}
	return false
}

func (c *Column) title() string {
	if c.HeaderTitle == "" {
		return "Untitled Column"
	}
	return c.HeaderTitle
}

func (c *Column) warn(w domain.Warning) {
	c.Warnings = append(c.Warnings, w)
}
