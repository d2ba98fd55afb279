package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/ports"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/validation"
)

// DataInput is one submitted document. An empty Name is stored as
// domain.DefaultRecordName.
type DataInput struct {
	Name    string
	Payload domain.Value
}

// DataService accepts payloads that conform to a stored schema.
type DataService struct {
	schemas *SchemaService
	store   ports.DataStore
	now     func() time.Time
}

func NewDataService(schemas *SchemaService, store ports.DataStore) *DataService {
	return &DataService{schemas: schemas, store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DataService) Create(ctx context.Context, ownerID, schemaID string, in DataInput, meta domain.MutationMetadata) (domain.DataRecord, error) {
	schema, err := s.schemas.Get(ctx, ownerID, schemaID)
	if err != nil {
		return domain.DataRecord{}, err
	}

	rec, err := s.accept(schema, in, meta)
	if err != nil {
		return domain.DataRecord{}, err
	}
	return s.store.Create(ctx, rec, meta)
}

// CreateBatch validates every input before storing any of them. The batch is
// stored in one transaction.
func (s *DataService) CreateBatch(ctx context.Context, ownerID, schemaID string, inputs []DataInput, meta domain.MutationMetadata) ([]domain.DataRecord, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", domain.ErrDataRequired)
	}
	schema, err := s.schemas.Get(ctx, ownerID, schemaID)
	if err != nil {
		return nil, err
	}

	recs := make([]domain.DataRecord, 0, len(inputs))
	for i, in := range inputs {
		rec, err := s.accept(schema, in, meta)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return s.store.CreateMany(ctx, recs, meta)
}

// Check runs the conformance check without storing anything and reports the
// object fields that would be filled in.
func (s *DataService) Check(ctx context.Context, ownerID, schemaID string, payload domain.Value) ([]string, error) {
	schema, err := s.schemas.Get(ctx, ownerID, schemaID)
	if err != nil {
		return nil, err
	}
	if err := validation.CheckData(payload, schema.Fields); err != nil {
		return nil, err
	}
	return validation.FillDefaults(payload, schema.Fields), nil
}

func (s *DataService) Get(ctx context.Context, ownerID, id string) (domain.DataRecord, error) {
	if err := domain.ValidateKey(ownerID); err != nil {
		return domain.DataRecord{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.DataRecord{}, domain.DataRecordNotFound(id)
	}
	return s.store.FindByID(ctx, id, ownerID)
}

func (s *DataService) ListBySchema(ctx context.Context, ownerID, schemaID string) ([]domain.DataRecord, error) {
	if _, err := s.schemas.Get(ctx, ownerID, schemaID); err != nil {
		return nil, err
	}
	return s.store.FindAllBySchema(ctx, schemaID, ownerID)
}

func (s *DataService) accept(schema domain.SchemaDefinition, in DataInput, meta domain.MutationMetadata) (domain.DataRecord, error) {
	if err := validation.ValidateData(in.Payload, schema); err != nil {
		log.Printf("data rejected owner=%s schema=%s request=%s: %v", schema.OwnerID, schema.ID, meta.RequestID, err)
		return domain.DataRecord{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = domain.DefaultRecordName
	}
	return domain.DataRecord{
		ID:        uuid.NewString(),
		OwnerID:   schema.OwnerID,
		SchemaID:  schema.ID,
		Name:      name,
		Payload:   in.Payload,
		CreatedAt: s.now(),
	}, nil
}
