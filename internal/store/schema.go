package store

import "fmt"

// Field types understood by the backends. Names follow the Airtable metadata API.
const (
	TypeSingleLineText      = "singleLineText"
	TypeMultilineText       = "multilineText"
	TypeNumber              = "number"
	TypeCheckbox            = "checkbox"
	TypeSingleSelect        = "singleSelect"
	TypeDate                = "date"
	TypeDateTime            = "dateTime"
	TypeMultipleRecordLinks = "multipleRecordLinks"
)

// FieldSchema describes one field of a table.
type FieldSchema struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// TableSchema describes a table. The first field is the primary field.
type TableSchema struct {
	ID     string        `json:"id,omitempty"`
	Name   string        `json:"name"`
	Fields []FieldSchema `json:"fields"`
}

// Field returns the named field schema.
func (t TableSchema) Field(name string) (FieldSchema, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// FindTable returns the schema named name from a table listing.
func FindTable(tables []TableSchema, name string) (TableSchema, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSchema{}, false
}

// Choices returns the option names of a single-select field.
func (f FieldSchema) Choices() []string {
	raw, ok := f.Options["choices"]
	if !ok {
		return nil
	}
	var names []string
	switch list := raw.(type) {
	case []map[string]any:
		for _, c := range list {
			if n, ok := c["name"].(string); ok {
				names = append(names, n)
			}
		}
	case []any:
		for _, item := range list {
			if c, ok := item.(map[string]any); ok {
				if n, ok := c["name"].(string); ok {
					names = append(names, n)
				}
			}
		}
	}
	return names
}

// TextField builds a singleLineText field.
func TextField(name string) FieldSchema {
	return FieldSchema{Name: name, Type: TypeSingleLineText}
}

// CheckboxField builds a checkbox field with the green check style.
func CheckboxField(name string) FieldSchema {
	return FieldSchema{
		Name:    name,
		Type:    TypeCheckbox,
		Options: map[string]any{"icon": "check", "color": "greenBright"},
	}
}

// NumberField builds an integer number field.
func NumberField(name string) FieldSchema {
	return FieldSchema{Name: name, Type: TypeNumber, Options: map[string]any{"precision": 0}}
}

// DecimalField builds a number field with the given precision.
func DecimalField(name string, precision int) FieldSchema {
	return FieldSchema{Name: name, Type: TypeNumber, Options: map[string]any{"precision": precision}}
}

// DateField builds an ISO-formatted date field.
func DateField(name string) FieldSchema {
	return FieldSchema{
		Name:    name,
		Type:    TypeDate,
		Options: map[string]any{"dateFormat": map[string]any{"name": "iso"}},
	}
}

// DateTimeField builds a dateTime field shown in the given IANA zone.
func DateTimeField(name, timeZone string) FieldSchema {
	return FieldSchema{
		Name: name,
		Type: TypeDateTime,
		Options: map[string]any{
			"dateFormat": map[string]any{"name": "iso"},
			"timeFormat": map[string]any{"name": "24hour"},
			"timeZone":   timeZone,
		},
	}
}

// SelectField builds a singleSelect field with the given choices.
func SelectField(name string, choices ...string) FieldSchema {
	list := make([]any, len(choices))
	for i, c := range choices {
		list[i] = map[string]any{"name": c}
	}
	return FieldSchema{Name: name, Type: TypeSingleSelect, Options: map[string]any{"choices": list}}
}

// LinkField builds a link to the table with the given id.
func LinkField(name, tableID string) FieldSchema {
	return FieldSchema{
		Name:    name,
		Type:    TypeMultipleRecordLinks,
		Options: map[string]any{"linkedTableId": tableID},
	}
}

// ValidateOptions checks single-select values in fields against schema.
// Fields the schema does not describe are not checked.
func ValidateOptions(schema TableSchema, fields Fields) error {
	for name, v := range fields {
		fs, ok := schema.Field(name)
		if !ok || fs.Type != TypeSingleSelect {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if !contains(fs.Choices(), s) {
			return &InvalidOptionError{
				Table:   schema.Name,
				Field:   name,
				Value:   s,
				Message: fmt.Sprintf("insufficient permissions to create new select option %q", s),
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
