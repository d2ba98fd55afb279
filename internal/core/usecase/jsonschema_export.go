package usecase

import (
	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

const draft7URI = "http://json-schema.org/draft-07/schema#"

// renderJSONSchema describes the documents accepted for schema. Like the
// conformance check it covers two levels: the subfields of a subfield are
// not rendered.
func renderJSONSchema(schema domain.SchemaDefinition) domain.Value {
	doc := domain.NewMap()
	doc.Set("$schema", domain.StringValue(draft7URI))
	doc.Set("title", domain.StringValue(schema.Name))
	doc.Set("type", domain.StringValue("object"))
	addProperties(doc, schema.Fields, 0)
	return domain.MapValue(doc)
}

func addProperties(doc *domain.Map, fields []domain.FieldDefinition, depth int) {
	props := domain.NewMap()
	var required []domain.Value
	for _, f := range fields {
		props.Set(f.Name, fieldJSONSchema(f, depth))
		if f.IsRequired() {
			required = append(required, domain.StringValue(f.Name))
		}
	}
	doc.Set("properties", domain.MapValue(props))
	if len(required) > 0 {
		doc.Set("required", domain.SequenceValue(required...))
	}
}

func fieldJSONSchema(f domain.FieldDefinition, depth int) domain.Value {
	m := domain.NewMap()
	switch f.Type {
	case domain.FieldTypeString:
		m.Set("type", domain.StringValue("string"))
	case domain.FieldTypeNumber:
		m.Set("type", domain.StringValue("number"))
	case domain.FieldTypeBoolean:
		m.Set("type", domain.StringValue("boolean"))
	case domain.FieldTypeDate:
		// accepted layouts are wider than any format keyword
		m.Set("type", domain.StringValue("string"))
		m.Set("x-field-type", domain.StringValue(string(domain.FieldTypeDate)))
	case domain.FieldTypeArray:
		m.Set("type", domain.StringValue("array"))
	case domain.FieldTypeObject:
		m.Set("type", domain.SequenceValue(domain.StringValue("object"), domain.StringValue("array")))
	}

	if opts := f.Options; opts != nil && f.Type == domain.FieldTypeNumber {
		if opts.Min != nil {
			m.Set("minimum", domain.NumberValue(*opts.Min))
		}
		if opts.Max != nil {
			m.Set("maximum", domain.NumberValue(*opts.Max))
		}
	}
	if f.Options != nil && f.Options.Enum != nil {
		m.Set("enum", domain.SequenceValue(f.Options.Enum...))
	}

	if f.Type == domain.FieldTypeObject && len(f.Subfields) > 0 && depth == 0 {
		addProperties(m, f.Subfields, depth+1)
	}
	return domain.MapValue(m)
}
