package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/dynaschema/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

type schemaModel struct {
	ID         string         `gorm:"column:id;primaryKey"`
	OwnerID    string         `gorm:"column:owner_id;not null"`
	Name       string         `gorm:"column:name;not null"`
	FieldsJSON string         `gorm:"column:fields_json;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at"`
}

func (schemaModel) TableName() string {
	return "schemas"
}

// schemaSnapshot is the audit and event form of a schema.
type schemaSnapshot struct {
	ID     string                   `json:"id"`
	Name   string                   `json:"name"`
	Fields []domain.FieldDefinition `json:"fields"`
}

type SchemaStore struct {
	db *gormsqlite.DB
}

func NewSchemaStore(db *gormsqlite.DB) *SchemaStore {
	return &SchemaStore{db: db}
}

func (s *SchemaStore) Create(ctx context.Context, schema domain.SchemaDefinition, meta domain.MutationMetadata) (domain.SchemaDefinition, error) {
	meta = meta.Normalize()

	fieldsJSON, err := domain.EncodeFields(schema.Fields)
	if err != nil {
		return domain.SchemaDefinition{}, err
	}
	if schema.CreatedAt.IsZero() {
		schema.CreatedAt = meta.OccurredAt
	}
	model := schemaModel{
		ID:         schema.ID,
		OwnerID:    schema.OwnerID,
		Name:       schema.Name,
		FieldsJSON: fieldsJSON,
		CreatedAt:  schema.CreatedAt.UTC(),
	}
	snapshot := mustJSON(schemaSnapshot{ID: schema.ID, Name: schema.Name, Fields: schema.Fields})

	err = s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert schema: %w", err)
		}
		return recordMutation(tx.DB, mutation{
			ownerID:       schema.OwnerID,
			aggregateType: domain.AggregateSchema,
			aggregateID:   schema.ID,
			eventType:     domain.EventSchemaCreated,
			after:         snapshot,
			payload:       json.RawMessage(snapshot),
		}, meta)
	})
	if err != nil {
		return domain.SchemaDefinition{}, err
	}
	return toSchemaDomain(model)
}

func (s *SchemaStore) FindByID(ctx context.Context, id string) (domain.SchemaDefinition, error) {
	var model schemaModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SchemaDefinition{}, domain.SchemaNotFound(id)
		}
		return domain.SchemaDefinition{}, fmt.Errorf("find schema: %w", err)
	}
	return toSchemaDomain(model)
}

func (s *SchemaStore) FindAllByOwner(ctx context.Context, ownerID string) ([]domain.SchemaDefinition, error) {
	var rows []schemaModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("owner_id = ?", ownerID).Order("created_at ASC, id ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}

	result := make([]domain.SchemaDefinition, 0, len(rows))
	for _, row := range rows {
		schema, err := toSchemaDomain(row)
		if err != nil {
			return nil, err
		}
		result = append(result, schema)
	}
	return result, nil
}

// Delete soft-deletes the schema. The row stays so stored records keep their
// schema reference.
func (s *SchemaStore) Delete(ctx context.Context, id, ownerID string, meta domain.MutationMetadata) error {
	meta = meta.Normalize()

	return s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var before schemaModel
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.SchemaNotFound(id)
			}
			return fmt.Errorf("load schema before delete: %w", err)
		}
		if err := tx.Delete(&before).Error; err != nil {
			return fmt.Errorf("delete schema: %w", err)
		}

		fields, err := domain.DecodeFields(before.FieldsJSON)
		if err != nil {
			return err
		}
		return recordMutation(tx.DB, mutation{
			ownerID:       ownerID,
			aggregateType: domain.AggregateSchema,
			aggregateID:   id,
			eventType:     domain.EventSchemaDeleted,
			before:        mustJSON(schemaSnapshot{ID: id, Name: before.Name, Fields: fields}),
			payload:       map[string]string{"id": id},
		}, meta)
	})
}

func toSchemaDomain(m schemaModel) (domain.SchemaDefinition, error) {
	fields, err := domain.DecodeFields(m.FieldsJSON)
	if err != nil {
		return domain.SchemaDefinition{}, fmt.Errorf("schema %s: %w", m.ID, err)
	}
	return domain.SchemaDefinition{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		Fields:    fields,
		CreatedAt: m.CreatedAt,
	}, nil
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
