// Package validation holds the two pure checks of the service: the
// structure of a proposed schema definition and the conformance of a data
// payload to a stored schema.
//
// Both checks stop at the first violation and are safe for concurrent use.
// Only the field -> subfield levels of a schema are inspected: a subfield's
// own subfields are stored but never validated.
package validation

import (
	"fmt"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

// ParseSchemaDefinition validates candidate and converts it into a draft
// ready to be stored.
func ParseSchemaDefinition(candidate domain.Value) (domain.SchemaDraft, error) {
	if err := ValidateSchemaStructure(candidate); err != nil {
		return domain.SchemaDraft{}, err
	}

	root, _ := candidate.AsMap()
	nameVal, _ := root.Get("name")
	fieldsVal, _ := root.Get("fields")
	name, _ := nameVal.AsString()
	items, _ := fieldsVal.AsSequence()

	fields := make([]domain.FieldDefinition, 0, len(items))
	for _, item := range items {
		f, _ := domain.FieldDefinitionFromValue(item)
		fields = append(fields, f)
	}
	return domain.SchemaDraft{Name: name, Fields: fields}, nil
}

// ValidateSchemaStructure checks that candidate is a well-formed schema
// definition: a name, a non-empty fields array, and for every field a name,
// a known type, well-typed options and, for object fields, well-formed
// subfields.
func ValidateSchemaStructure(candidate domain.Value) error {
	root, ok := candidate.AsMap()
	if !ok {
		return domain.ErrSchemaDataRequired
	}

	nameVal, _ := root.Get("name")
	if name, ok := nameVal.AsString(); !ok || name == "" {
		return domain.ErrSchemaNameInvalid
	}

	fieldsVal, _ := root.Get("fields")
	fields, ok := fieldsVal.AsSequence()
	if !ok {
		return domain.ErrSchemaFieldsInvalid
	}
	if len(fields) == 0 {
		return domain.ErrSchemaFieldsEmpty
	}

	for i, f := range fields {
		if err := validateField(f, fmt.Sprintf("fields[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateField(v domain.Value, position string) error {
	field, _ := v.AsMap()

	name, typ, err := checkNameAndType(field, position, "")
	if err != nil {
		return err
	}
	if err := checkOptions(field, name); err != nil {
		return err
	}
	if typ != domain.FieldTypeObject {
		return nil
	}

	raw, ok := field.Get("subfields")
	if !ok || raw.IsNull() {
		return nil
	}
	subfields, ok := raw.AsSequence()
	if !ok {
		return &domain.FieldError{Err: domain.ErrInvalidSubfields, Field: name}
	}
	for i, sub := range subfields {
		subMap, _ := sub.AsMap()
		if _, _, err := checkNameAndType(subMap, fmt.Sprintf("%s.subfields[%d]", name, i), name); err != nil {
			return err
		}
	}
	return nil
}

// checkNameAndType validates the name and type of a field. field may be nil
// when the entry is not an object; it then fails the name check.
func checkNameAndType(field *domain.Map, position, parent string) (string, domain.FieldType, error) {
	nameVal, _ := field.Get("name")
	name, ok := nameVal.AsString()
	if !ok || name == "" {
		return "", "", &domain.FieldError{Err: domain.ErrInvalidFieldName, Field: position}
	}

	typeVal, present := field.Get("type")
	typ, ok := typeVal.AsString()
	if !ok || !domain.FieldType(typ).Valid() {
		rendered := "<missing>"
		if present {
			rendered = typeVal.Render()
		}
		return "", "", &domain.FieldError{
			Err:   domain.ErrInvalidFieldType,
			Field: qualify(parent, name),
			Value: rendered,
		}
	}
	return name, domain.FieldType(typ), nil
}

func checkOptions(field *domain.Map, name string) error {
	raw, ok := field.Get("options")
	if !ok || raw.IsNull() {
		return nil
	}
	opts, ok := raw.AsMap()
	if !ok {
		return optionsError(name, "options must be an object")
	}

	if v, ok := opts.Get("required"); ok && v.Kind() != domain.KindBoolean {
		return optionsError(name, "required option must be a boolean")
	}
	if v, ok := opts.Get("min"); ok && v.Kind() != domain.KindNumber {
		return optionsError(name, "min option must be a number")
	}
	if v, ok := opts.Get("max"); ok && v.Kind() != domain.KindNumber {
		return optionsError(name, "max option must be a number")
	}
	if v, ok := opts.Get("enum"); ok && v.Kind() != domain.KindSequence {
		return optionsError(name, "enum option must be an array")
	}
	return nil
}

func optionsError(field, reason string) error {
	return &domain.FieldError{Err: domain.ErrInvalidFieldOptions, Field: field, Reason: reason}
}

func qualify(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
