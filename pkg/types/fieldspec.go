package types

// Field types determine how a payload field is rendered and validated.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeEmail    FieldType = "email"
	FieldTypeDate     FieldType = "date"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeSelect   FieldType = "select"
)

// validFieldTypes is the set of recognized field types.
var validFieldTypes = map[FieldType]bool{
	FieldTypeText:     true,
	FieldTypeNumber:   true,
	FieldTypeEmail:    true,
	FieldTypeDate:     true,
	FieldTypeTextarea: true,
	FieldTypeSelect:   true,
}

// IsValidFieldType reports whether ft is a recognized field type.
func IsValidFieldType(ft FieldType) bool {
	return validFieldTypes[ft]
}

// Option is one selectable value of a select field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FieldSpec describes one field of an event type's payload. A FieldSpec is
// immutable once parsed; callers must not modify the Options slice.
type FieldSpec struct {
	Name        string    `json:"name"`  // Machine key, unique within an event type.
	Label       string    `json:"label"` // Display label; may carry a unit suffix, e.g. "Water volume (l)".
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Placeholder string    `json:"placeholder,omitempty"`
	Options     []Option  `json:"options,omitempty"` // Only meaningful for select fields.
	Min         *float64  `json:"min,omitempty"`     // Only meaningful for number fields.
	Max         *float64  `json:"max,omitempty"`
}

// HasOption reports whether value is one of the field's option values.
func (f FieldSpec) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// EventType is a catalog entry describing a kind of care event. The
// PayloadFields string is the raw JSON descriptor as served by the catalog:
// either an array of labels or an array of structured field objects.
type EventType struct {
	ID            string `json:"id"`
	Name          string `json:"eventTypeName"`
	Description   string `json:"eventTypeDesc"`
	PayloadFields string `json:"payloadFields"`
}
