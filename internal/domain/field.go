package domain

// FieldType represents the type of a field in an entity schema
type FieldType string

const (
	FieldTypePlainText FieldType = "plain_text"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeCurrency  FieldType = "currency"
	FieldTypePercent   FieldType = "percent"
	FieldTypeDate      FieldType = "date"
	FieldTypeDateTime  FieldType = "datetime"
	FieldTypeTime      FieldType = "time"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeSelect    FieldType = "select"
	FieldTypeLink      FieldType = "link"
	FieldTypeDuration  FieldType = "duration"
)

// IsDateLike reports whether values of this type carry a date/time layout.
func (t FieldType) IsDateLike() bool {
	return t == FieldTypeDate || t == FieldTypeDateTime || t == FieldTypeTime
}

// FieldDescriptor describes one importable field of a target entity.
// For select fields Options holds the newline-delimited choices; for link
// fields it holds the linked entity type. ChildCollectionField is non-empty
// when the field belongs to a child collection of the owning entity rather
// than the root entity itself.
type FieldDescriptor struct {
	FieldType    FieldType `json:"fieldtype"`
	FieldName    string    `json:"fieldname"`
	Label        string    `json:"label"`
	Options      string    `json:"options,omitempty"`
	OwningEntity string    `json:"owning_entity"`
	Required     bool      `json:"required"`
	ReadOnly     bool      `json:"read_only"`
	Default      string    `json:"default,omitempty"`

	// ChildCollectionField names the collection field on the root entity
	// that rows of OwningEntity nest under. Empty for root entity fields.
	ChildCollectionField string `json:"child_collection_field,omitempty"`
	// ChildCollectionLabel is the display label of that collection field.
	ChildCollectionLabel string `json:"child_collection_label,omitempty"`
}

// SelectOptions splits the newline-delimited option list, dropping blanks.
func (d FieldDescriptor) SelectOptions() []string {
	var options []string
	start := 0
	for i := 0; i <= len(d.Options); i++ {
		if i == len(d.Options) || d.Options[i] == '\n' {
			if option := d.Options[start:i]; option != "" {
				options = append(options, option)
			}
			start = i + 1
		}
	}
	return options
}

// TargetGroup identifies one (entity, child collection) pair extracted
// from data rows. A zero ChildCollectionField means the root entity group.
type TargetGroup struct {
	Entity               string
	ChildCollectionField string
}

// IsRoot reports whether the group is the root entity's own group.
func (g TargetGroup) IsRoot(rootEntity string) bool {
	return g.Entity == rootEntity && g.ChildCollectionField == ""
}
