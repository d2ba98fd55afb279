package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

func mustParse(t *testing.T, raw string) domain.Value {
	t.Helper()
	v, err := domain.ParseJSON([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestValidateSchemaStructure(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		wantErr   error
		wantField string // only checked for *domain.FieldError
	}{
		{
			name:      "well formed",
			candidate: `{"name":"Task","fields":[{"name":"Title","type":"string","options":{"required":true}}]}`,
		},
		{
			name:      "every type",
			candidate: `{"name":"All","fields":[{"name":"a","type":"string"},{"name":"b","type":"number"},{"name":"c","type":"boolean"},{"name":"d","type":"date"},{"name":"e","type":"array"},{"name":"f","type":"object"}]}`,
		},
		{
			name:      "null candidate",
			candidate: `null`,
			wantErr:   domain.ErrSchemaDataRequired,
		},
		{
			name:      "candidate not an object",
			candidate: `["Task"]`,
			wantErr:   domain.ErrSchemaDataRequired,
		},
		{
			name:      "missing name",
			candidate: `{"fields":[{"name":"Title","type":"string"}]}`,
			wantErr:   domain.ErrSchemaNameInvalid,
		},
		{
			name:      "empty name",
			candidate: `{"name":"","fields":[{"name":"Title","type":"string"}]}`,
			wantErr:   domain.ErrSchemaNameInvalid,
		},
		{
			name:      "numeric name",
			candidate: `{"name":7,"fields":[{"name":"Title","type":"string"}]}`,
			wantErr:   domain.ErrSchemaNameInvalid,
		},
		{
			name:      "missing fields",
			candidate: `{"name":"Task"}`,
			wantErr:   domain.ErrSchemaFieldsInvalid,
		},
		{
			name:      "fields not an array",
			candidate: `{"name":"Task","fields":{"Title":"string"}}`,
			wantErr:   domain.ErrSchemaFieldsInvalid,
		},
		{
			name:      "empty fields",
			candidate: `{"name":"Task","fields":[]}`,
			wantErr:   domain.ErrSchemaFieldsEmpty,
		},
		{
			name:      "field without name",
			candidate: `{"name":"Task","fields":[{"name":"Title","type":"string"},{"type":"string"}]}`,
			wantErr:   domain.ErrInvalidFieldName,
			wantField: "fields[1]",
		},
		{
			name:      "field entry not an object",
			candidate: `{"name":"Task","fields":["Title"]}`,
			wantErr:   domain.ErrInvalidFieldName,
			wantField: "fields[0]",
		},
		{
			name:      "unknown type",
			candidate: `{"name":"Task","fields":[{"name":"Title","type":"text"}]}`,
			wantErr:   domain.ErrInvalidFieldType,
			wantField: "Title",
		},
		{
			name:      "missing type",
			candidate: `{"name":"Task","fields":[{"name":"Title"}]}`,
			wantErr:   domain.ErrInvalidFieldType,
			wantField: "Title",
		},
		{
			name:      "options not an object",
			candidate: `{"name":"Task","fields":[{"name":"Title","type":"string","options":true}]}`,
			wantErr:   domain.ErrInvalidFieldOptions,
			wantField: "Title",
		},
		{
			name:      "required not boolean",
			candidate: `{"name":"Task","fields":[{"name":"Title","type":"string","options":{"required":"yes"}}]}`,
			wantErr:   domain.ErrInvalidFieldOptions,
			wantField: "Title",
		},
		{
			name:      "min not numeric",
			candidate: `{"name":"Person","fields":[{"name":"Age","type":"number","options":{"min":"0"}}]}`,
			wantErr:   domain.ErrInvalidFieldOptions,
			wantField: "Age",
		},
		{
			name:      "max not numeric",
			candidate: `{"name":"Person","fields":[{"name":"Age","type":"number","options":{"max":null}}]}`,
			wantErr:   domain.ErrInvalidFieldOptions,
			wantField: "Age",
		},
		{
			name:      "enum not a sequence",
			candidate: `{"name":"Task","fields":[{"name":"Priority","type":"string","options":{"enum":"Low"}}]}`,
			wantErr:   domain.ErrInvalidFieldOptions,
			wantField: "Priority",
		},
		{
			name:      "null options skipped",
			candidate: `{"name":"Task","fields":[{"name":"Title","type":"string","options":null}]}`,
		},
		{
			name:      "unknown option keys kept",
			candidate: `{"name":"Task","fields":[{"name":"Title","type":"string","options":{"placeholder":"..."}}]}`,
		},
		{
			name:      "subfields not an array",
			candidate: `{"name":"Person","fields":[{"name":"Address","type":"object","subfields":{"name":"Street"}}]}`,
			wantErr:   domain.ErrInvalidSubfields,
			wantField: "Address",
		},
		{
			name:      "subfield without name",
			candidate: `{"name":"Person","fields":[{"name":"Address","type":"object","subfields":[{"type":"string"}]}]}`,
			wantErr:   domain.ErrInvalidFieldName,
			wantField: "Address.subfields[0]",
		},
		{
			name:      "subfield with unknown type",
			candidate: `{"name":"Person","fields":[{"name":"Address","type":"object","subfields":[{"name":"Street","type":"text"}]}]}`,
			wantErr:   domain.ErrInvalidFieldType,
			wantField: "Address.Street",
		},
		{
			name:      "subfields ignored on scalar fields",
			candidate: `{"name":"Person","fields":[{"name":"Age","type":"number","subfields":"bogus"}]}`,
		},
		{
			name:      "subfield options are not inspected",
			candidate: `{"name":"Person","fields":[{"name":"Address","type":"object","subfields":[{"name":"Zip","type":"number","options":{"min":"0"}}]}]}`,
		},
		{
			name:      "sub-subfields are not inspected",
			candidate: `{"name":"Person","fields":[{"name":"Address","type":"object","subfields":[{"name":"Geo","type":"object","subfields":[{"type":"nonsense"}]}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaStructure(mustParse(t, tt.candidate))

			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsValidationError(err))

			var fe *domain.FieldError
			if tt.wantField != "" {
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, tt.wantField, fe.Field)
			}
		})
	}
}

func TestValidateSchemaStructureFirstViolationWins(t *testing.T) {
	candidate := mustParse(t, `{"name":"Task","fields":[{"name":"A","type":"bogus"},{"type":"string"}]}`)

	err := ValidateSchemaStructure(candidate)
	require.ErrorIs(t, err, domain.ErrInvalidFieldType)
	assert.NotErrorIs(t, err, domain.ErrInvalidFieldName)
}

func TestInvalidFieldTypeNamesOffendingValue(t *testing.T) {
	err := ValidateSchemaStructure(mustParse(t, `{"name":"Task","fields":[{"name":"Title","type":"text"}]}`))

	var fe *domain.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, `"text"`, fe.Value)
	assert.Contains(t, err.Error(), `"text"`)
	assert.Contains(t, err.Error(), "Title")
}

func TestParseSchemaDefinition(t *testing.T) {
	candidate := mustParse(t, `{
		"name": "Person",
		"fields": [
			{"name": "Age", "type": "number", "options": {"min": 0, "max": 120, "unit": "years"}},
			{"name": "Address", "type": "object", "options": {"required": true}, "subfields": [
				{"name": "Street", "type": "string", "options": {"required": true}}
			]},
			{"name": "Tags", "type": "array", "subfields": [{"name": "ignored", "type": "string"}]}
		]
	}`)

	draft, err := ParseSchemaDefinition(candidate)
	require.NoError(t, err)
	assert.Equal(t, "Person", draft.Name)
	require.Len(t, draft.Fields, 3)

	age := draft.Fields[0]
	assert.Equal(t, domain.FieldTypeNumber, age.Type)
	require.NotNil(t, age.Options)
	require.NotNil(t, age.Options.Min)
	require.NotNil(t, age.Options.Max)
	assert.Equal(t, 0.0, *age.Options.Min)
	assert.Equal(t, 120.0, *age.Options.Max)
	assert.True(t, age.Options.Extra["unit"].Equal(domain.StringValue("years")))

	address := draft.Fields[1]
	assert.True(t, address.IsRequired())
	require.Len(t, address.Subfields, 1)
	assert.Equal(t, "Street", address.Subfields[0].Name)

	assert.Empty(t, draft.Fields[2].Subfields)
}

func TestParseSchemaDefinitionRejectsInvalid(t *testing.T) {
	_, err := ParseSchemaDefinition(mustParse(t, `{"name":"Task","fields":[]}`))
	assert.ErrorIs(t, err, domain.ErrSchemaFieldsEmpty)
}
