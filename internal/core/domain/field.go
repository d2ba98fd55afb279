package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeArray   FieldType = "array"
	FieldTypeObject  FieldType = "object"
)

// FieldTypes lists the recognized field types in their canonical order.
var FieldTypes = []FieldType{
	FieldTypeString,
	FieldTypeNumber,
	FieldTypeBoolean,
	FieldTypeDate,
	FieldTypeArray,
	FieldTypeObject,
}

func (t FieldType) Valid() bool {
	return slices.Contains(FieldTypes, t)
}

// FieldOptions holds the constraints of a field. Keys the engine does not
// interpret are kept in Extra and written back out unchanged.
type FieldOptions struct {
	Required bool
	Min      *float64
	Max      *float64
	Enum     []Value
	Extra    map[string]Value
}

// FieldDefinition is a named, typed slot of a schema. Subfields are only
// kept for object fields.
type FieldDefinition struct {
	Name      string            `json:"name"`
	Type      FieldType         `json:"type"`
	Options   *FieldOptions     `json:"options,omitempty"`
	Subfields []FieldDefinition `json:"subfields,omitempty"`
}

func (f FieldDefinition) IsRequired() bool {
	return f.Options != nil && f.Options.Required
}

// FieldDefinitionFromValue converts a decoded field object. It does not
// validate; see validation.ValidateSchemaStructure for that. Unknown
// top-level keys are dropped and subfield entries that are not objects are
// skipped.
func FieldDefinitionFromValue(v Value) (FieldDefinition, bool) {
	m, ok := v.AsMap()
	if !ok {
		return FieldDefinition{}, false
	}

	var f FieldDefinition
	if name, ok := m.Get("name"); ok {
		f.Name, _ = name.AsString()
	}
	if typ, ok := m.Get("type"); ok {
		s, _ := typ.AsString()
		f.Type = FieldType(s)
	}
	if raw, ok := m.Get("options"); ok {
		if opts, ok := raw.AsMap(); ok {
			f.Options = FieldOptionsFromMap(opts)
		}
	}
	if f.Type == FieldTypeObject {
		if raw, ok := m.Get("subfields"); ok {
			if items, ok := raw.AsSequence(); ok {
				f.Subfields = make([]FieldDefinition, 0, len(items))
				for _, item := range items {
					if sub, ok := FieldDefinitionFromValue(item); ok {
						f.Subfields = append(f.Subfields, sub)
					}
				}
			}
		}
	}
	return f, true
}

// FieldOptionsFromMap reads the known option keys. A known key holding a
// value of the wrong kind is treated like an unknown key and kept in Extra.
func FieldOptionsFromMap(m *Map) *FieldOptions {
	opts := &FieldOptions{}
	for key, val := range m.All() {
		switch key {
		case "required":
			if b, ok := val.AsBool(); ok {
				opts.Required = b
				continue
			}
		case "min":
			if n, ok := val.AsNumber(); ok {
				opts.Min = &n
				continue
			}
		case "max":
			if n, ok := val.AsNumber(); ok {
				opts.Max = &n
				continue
			}
		case "enum":
			if items, ok := val.AsSequence(); ok {
				opts.Enum = slices.Clone(items)
				if opts.Enum == nil {
					opts.Enum = []Value{}
				}
				continue
			}
		}
		if opts.Extra == nil {
			opts.Extra = make(map[string]Value)
		}
		opts.Extra[key] = val
	}
	return opts
}

func (o FieldOptions) MarshalJSON() ([]byte, error) {
	m := NewMap()
	if o.Required {
		m.Set("required", BoolValue(true))
	}
	if o.Min != nil {
		m.Set("min", NumberValue(*o.Min))
	}
	if o.Max != nil {
		m.Set("max", NumberValue(*o.Max))
	}
	if o.Enum != nil {
		m.Set("enum", SequenceValue(o.Enum...))
	}
	extraKeys := make([]string, 0, len(o.Extra))
	for key := range o.Extra {
		extraKeys = append(extraKeys, key)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		m.Set(key, o.Extra[key])
	}
	return MapValue(m).MarshalJSON()
}

func (o *FieldOptions) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	m, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("field options must be an object, got %s", v.Kind())
	}
	*o = *FieldOptionsFromMap(m)
	return nil
}

func (f *FieldDefinition) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	parsed, ok := FieldDefinitionFromValue(v)
	if !ok {
		return fmt.Errorf("field definition must be an object, got %s", bytes.TrimSpace(data))
	}
	*f = parsed
	return nil
}

// EncodeFields and DecodeFields move a field tree to and from its stored
// JSON form.
func EncodeFields(fields []FieldDefinition) (string, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func DecodeFields(raw string) ([]FieldDefinition, error) {
	var fields []FieldDefinition
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
