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

type dataRecordModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	OwnerID     string    `gorm:"column:owner_id;not null"`
	SchemaID    string    `gorm:"column:schema_id;not null"`
	Name        string    `gorm:"column:name;not null"`
	PayloadJSON string    `gorm:"column:payload_json;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (dataRecordModel) TableName() string {
	return "data_records"
}

type DataStore struct {
	db *gormsqlite.DB
}

func NewDataStore(db *gormsqlite.DB) *DataStore {
	return &DataStore{db: db}
}

func (s *DataStore) Create(ctx context.Context, rec domain.DataRecord, meta domain.MutationMetadata) (domain.DataRecord, error) {
	out, err := s.CreateMany(ctx, []domain.DataRecord{rec}, meta)
	if err != nil {
		return domain.DataRecord{}, err
	}
	return out[0], nil
}

// CreateMany stores recs and their events in one transaction. Either every
// record is stored or none is.
func (s *DataStore) CreateMany(ctx context.Context, recs []domain.DataRecord, meta domain.MutationMetadata) ([]domain.DataRecord, error) {
	meta = meta.Normalize()

	models := make([]dataRecordModel, 0, len(recs))
	for _, rec := range recs {
		payload, err := rec.Payload.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode payload of %s: %w", rec.ID, err)
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = meta.OccurredAt
		}
		models = append(models, dataRecordModel{
			ID:          rec.ID,
			OwnerID:     rec.OwnerID,
			SchemaID:    rec.SchemaID,
			Name:        rec.Name,
			PayloadJSON: string(payload),
			CreatedAt:   rec.CreatedAt.UTC(),
		})
	}

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		for _, model := range models {
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("insert data record: %w", err)
			}
			after := json.RawMessage(model.PayloadJSON)
			if err := recordMutation(tx.DB, mutation{
				ownerID:       model.OwnerID,
				aggregateType: domain.AggregateData,
				aggregateID:   model.ID,
				eventType:     domain.EventDataCreated,
				after:         after,
				payload: map[string]any{
					"id":        model.ID,
					"schema_id": model.SchemaID,
					"name":      model.Name,
					"data":      after,
				},
			}, meta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.DataRecord, 0, len(models))
	for _, model := range models {
		rec, err := toDataDomain(model)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *DataStore) FindByID(ctx context.Context, id, ownerID string) (domain.DataRecord, error) {
	var model dataRecordModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DataRecord{}, domain.DataRecordNotFound(id)
		}
		return domain.DataRecord{}, fmt.Errorf("find data record: %w", err)
	}
	return toDataDomain(model)
}

func (s *DataStore) FindAllBySchema(ctx context.Context, schemaID, ownerID string) ([]domain.DataRecord, error) {
	var rows []dataRecordModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("schema_id = ? AND owner_id = ?", schemaID, ownerID).
			Order("created_at ASC, id ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list data records: %w", err)
	}

	result := make([]domain.DataRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toDataDomain(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func toDataDomain(m dataRecordModel) (domain.DataRecord, error) {
	payload, err := domain.ParseJSON([]byte(m.PayloadJSON))
	if err != nil {
		return domain.DataRecord{}, fmt.Errorf("decode payload of %s: %w", m.ID, err)
	}
	return domain.DataRecord{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		SchemaID:  m.SchemaID,
		Name:      m.Name,
		Payload:   payload,
		CreatedAt: m.CreatedAt,
	}, nil
}
