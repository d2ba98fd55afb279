package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidKey = errors.New("invalid key")
	ErrNotFound   = errors.New("not found")
)

// Schema structure errors.
var (
	ErrSchemaDataRequired  = errors.New("schema data is required")
	ErrSchemaNameInvalid   = errors.New("schema must have a valid name")
	ErrSchemaFieldsInvalid = errors.New("schema must have a fields array")
	ErrSchemaFieldsEmpty   = errors.New("schema must have at least one field")
	ErrInvalidFieldName    = errors.New("invalid field name")
	ErrInvalidFieldType    = errors.New("invalid field type")
	ErrInvalidFieldOptions = errors.New("invalid field options")
	ErrInvalidSubfields    = errors.New("invalid subfields")
)

// Data conformance errors.
var (
	ErrDataRequired         = errors.New("data is required")
	ErrRequiredFieldMissing = errors.New("required field missing")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrRangeViolation       = errors.New("range violation")
	ErrEnumViolation        = errors.New("enum violation")
)

var (
	ErrSchemaNotFound     = errors.New("schema not found")
	ErrDataRecordNotFound = errors.New("data record not found")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrSchemaDataRequired, "schema_data_required"},
	{ErrSchemaNameInvalid, "schema_name_invalid"},
	{ErrSchemaFieldsInvalid, "schema_fields_invalid"},
	{ErrSchemaFieldsEmpty, "schema_fields_empty"},
	{ErrInvalidFieldName, "invalid_field_name"},
	{ErrInvalidFieldType, "invalid_field_type"},
	{ErrInvalidFieldOptions, "invalid_field_options"},
	{ErrInvalidSubfields, "invalid_subfields"},
	{ErrDataRequired, "data_required"},
	{ErrRequiredFieldMissing, "required_field_missing"},
	{ErrTypeMismatch, "type_mismatch"},
	{ErrRangeViolation, "range_violation"},
	{ErrEnumViolation, "enum_violation"},
	{ErrSchemaNotFound, "schema_not_found"},
	{ErrDataRecordNotFound, "data_record_not_found"},
	{ErrInvalidKey, "invalid_key"},
	{ErrNotFound, "not_found"},
}

// ErrorCode returns the stable machine-readable code for err, or "" when err
// is not one of the domain errors.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// IsValidationError reports whether err was raised by schema structure or
// data conformance validation. Such errors are the caller's fault.
func IsValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrSchemaDataRequired, ErrSchemaNameInvalid, ErrSchemaFieldsInvalid, ErrSchemaFieldsEmpty,
		ErrInvalidFieldName, ErrInvalidFieldType, ErrInvalidFieldOptions, ErrInvalidSubfields,
		ErrDataRequired, ErrRequiredFieldMissing, ErrTypeMismatch, ErrRangeViolation, ErrEnumViolation,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// FieldError is a validation failure tied to one field. Field holds the
// dotted path of the field (Address.Street), or its position when the field
// has no usable name.
type FieldError struct {
	Err      error
	Field    string
	Value    string    // offending value as JSON text
	Expected FieldType // for ErrTypeMismatch
	Bound    string    // "min" or "max" for ErrRangeViolation
	Limit    float64
	Allowed  []Value
	Reason   string
}

func (e *FieldError) Error() string {
	switch e.Err {
	case ErrInvalidFieldName:
		return fmt.Sprintf("each field must have a valid name (%s)", e.Field)
	case ErrInvalidFieldType:
		return fmt.Sprintf("invalid field type %s for field %s: must be one of %s", e.Value, e.Field, joinFieldTypes())
	case ErrInvalidFieldOptions:
		return fmt.Sprintf("field %s %s", e.Field, e.Reason)
	case ErrInvalidSubfields:
		return fmt.Sprintf("field %s subfields must be an array", e.Field)
	case ErrRequiredFieldMissing:
		return fmt.Sprintf("required field %s is missing", e.Field)
	case ErrTypeMismatch:
		return fmt.Sprintf("field %s must be of type %s", e.Field, e.Expected)
	case ErrRangeViolation:
		limit := strconv.FormatFloat(e.Limit, 'g', -1, 64)
		if e.Bound == "min" {
			return fmt.Sprintf("field %s must be at least %s", e.Field, limit)
		}
		return fmt.Sprintf("field %s must be at most %s", e.Field, limit)
	case ErrEnumViolation:
		return fmt.Sprintf("field %s must be one of %s", e.Field, SequenceValue(e.Allowed...).Render())
	}
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func joinFieldTypes() string {
	names := make([]string, 0, len(FieldTypes))
	for _, t := range FieldTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// NotFoundError reports a missing entity. It matches both ErrNotFound and
// its entity sentinel under errors.Is.
type NotFoundError struct {
	Entity error
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Entity }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func SchemaNotFound(id string) error {
	return &NotFoundError{Entity: ErrSchemaNotFound, ID: id}
}

func DataRecordNotFound(id string) error {
	return &NotFoundError{Entity: ErrDataRecordNotFound, ID: id}
}
