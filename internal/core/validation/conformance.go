package validation

import (
	"fmt"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

// maxDepth is the number of field levels inspected: top-level fields and
// their direct subfields.
const maxDepth = 2

// ValidateData checks payload against schema and, when it conforms, fills
// the defaults of FillDefaults into payload in place.
func ValidateData(payload domain.Value, schema domain.SchemaDefinition) error {
	if err := CheckData(payload, schema.Fields); err != nil {
		return err
	}
	FillDefaults(payload, schema.Fields)
	return nil
}

// CheckData reports the first field of fields that payload violates, in
// declaration order. It does not modify payload. A missing required object
// field at the top level is accepted: FillDefaults supplies it. An empty
// object in its place is treated the same way.
func CheckData(payload domain.Value, fields []domain.FieldDefinition) error {
	if payload.IsNull() {
		return domain.ErrDataRequired
	}
	data, ok := payload.AsMap()
	if !ok {
		return fmt.Errorf("%w: payload must be an object, got %s", domain.ErrDataRequired, payload.Kind())
	}
	return checkFields(data, fields, "", 0)
}

// FillDefaults sets an empty object for every required top-level object
// field absent from payload and returns the names it filled.
func FillDefaults(payload domain.Value, fields []domain.FieldDefinition) []string {
	data, ok := payload.AsMap()
	if !ok {
		return nil
	}

	var filled []string
	for _, f := range fields {
		if f.Type != domain.FieldTypeObject || !f.IsRequired() || data.Has(f.Name) {
			continue
		}
		data.Set(f.Name, domain.MapValue(domain.NewMap()))
		filled = append(filled, f.Name)
	}
	return filled
}

// checkFields applies the missing and present value rules to data. data is
// nil when the parent value is a sequence: it has no named entries.
func checkFields(data *domain.Map, fields []domain.FieldDefinition, parent string, depth int) error {
	for _, f := range fields {
		path := qualify(parent, f.Name)

		v, present := data.Get(f.Name)
		if !present {
			if !f.IsRequired() {
				continue
			}
			if depth == 0 && f.Type == domain.FieldTypeObject {
				continue
			}
			return &domain.FieldError{Err: domain.ErrRequiredFieldMissing, Field: path}
		}

		if err := checkValue(f, v, path); err != nil {
			return err
		}

		if depth == 0 && isFilledDefault(f, v) {
			continue
		}
		if f.Type == domain.FieldTypeObject && len(f.Subfields) > 0 && v.IsComposite() && depth+1 < maxDepth {
			nested, _ := v.AsMap()
			if err := checkFields(nested, f.Subfields, path, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// isFilledDefault reports whether v is the empty object FillDefaults puts in
// place of a missing required top-level object. It counts as absent, so its
// subfields are not checked and a filled payload validates again.
func isFilledDefault(f domain.FieldDefinition, v domain.Value) bool {
	if f.Type != domain.FieldTypeObject || !f.IsRequired() {
		return false
	}
	m, ok := v.AsMap()
	return ok && m.Len() == 0
}

func checkValue(f domain.FieldDefinition, v domain.Value, path string) error {
	mismatch := func() error {
		return &domain.FieldError{Err: domain.ErrTypeMismatch, Field: path, Expected: f.Type, Value: v.Render()}
	}

	switch f.Type {
	case domain.FieldTypeNumber:
		n, ok := v.AsNumber()
		if !ok {
			return mismatch()
		}
		if err := checkRange(f.Options, n, path); err != nil {
			return err
		}
	case domain.FieldTypeString:
		if v.Kind() != domain.KindString {
			return mismatch()
		}
	case domain.FieldTypeBoolean:
		if v.Kind() != domain.KindBoolean {
			return mismatch()
		}
	case domain.FieldTypeDate:
		if !isDate(v) {
			return mismatch()
		}
	case domain.FieldTypeObject:
		if !v.IsComposite() {
			return mismatch()
		}
	case domain.FieldTypeArray:
		// element shapes are not validated
	}

	if f.Options != nil && f.Options.Enum != nil {
		for _, allowed := range f.Options.Enum {
			if v.Equal(allowed) {
				return nil
			}
		}
		return &domain.FieldError{Err: domain.ErrEnumViolation, Field: path, Allowed: f.Options.Enum, Value: v.Render()}
	}
	return nil
}

func checkRange(opts *domain.FieldOptions, n float64, path string) error {
	if opts == nil {
		return nil
	}
	if opts.Min != nil && n < *opts.Min {
		return &domain.FieldError{Err: domain.ErrRangeViolation, Field: path, Bound: "min", Limit: *opts.Min}
	}
	if opts.Max != nil && n > *opts.Max {
		return &domain.FieldError{Err: domain.ErrRangeViolation, Field: path, Bound: "max", Limit: *opts.Max}
	}
	return nil
}

func isDate(v domain.Value) bool {
	if _, ok := v.AsDate(); ok {
		return true
	}
	s, ok := v.AsString()
	if !ok {
		return false
	}
	_, ok = ParseDate(s)
	return ok
}
