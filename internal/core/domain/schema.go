package domain

import (
	"regexp"
	"time"
)

// DefaultRecordName names a data record submitted without one.
const DefaultRecordName = "unnamed"

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9._:/-]+$`)

// ValidateKey checks owner ids and other caller-supplied identifiers.
func ValidateKey(key string) error {
	if key == "" || !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

// SchemaDraft is a structurally valid schema that has not been stored yet.
type SchemaDraft struct {
	Name   string
	Fields []FieldDefinition
}

// SchemaDefinition is a stored schema. It is never modified after creation.
type SchemaDefinition struct {
	ID        string
	OwnerID   string
	Name      string
	Fields    []FieldDefinition
	CreatedAt time.Time
}

// DataRecord is a payload accepted against the schema SchemaID.
type DataRecord struct {
	ID        string
	OwnerID   string
	SchemaID  string
	Name      string
	Payload   Value
	CreatedAt time.Time
}
