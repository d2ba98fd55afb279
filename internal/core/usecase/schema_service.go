package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/ports"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/validation"
)

// SchemaService creates and serves per-owner schema definitions.
type SchemaService struct {
	store ports.SchemaStore
	cache sync.Map // schema id -> json.RawMessage (compiled JSON Schema export)
	now   func() time.Time
}

func NewSchemaService(store ports.SchemaStore) *SchemaService {
	return &SchemaService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates candidate and stores it as a new schema owned by ownerID.
// Nothing is stored when validation fails.
func (s *SchemaService) Create(ctx context.Context, ownerID string, candidate domain.Value, meta domain.MutationMetadata) (domain.SchemaDefinition, error) {
	if err := domain.ValidateKey(ownerID); err != nil {
		return domain.SchemaDefinition{}, err
	}

	draft, err := validation.ParseSchemaDefinition(candidate)
	if err != nil {
		log.Printf("schema rejected owner=%s request=%s: %v", ownerID, meta.RequestID, err)
		return domain.SchemaDefinition{}, err
	}

	return s.store.Create(ctx, domain.SchemaDefinition{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      draft.Name,
		Fields:    draft.Fields,
		CreatedAt: s.now(),
	}, meta)
}

// Get returns the schema id when it belongs to ownerID. Schemas of other
// owners are reported as not found.
func (s *SchemaService) Get(ctx context.Context, ownerID, id string) (domain.SchemaDefinition, error) {
	if err := domain.ValidateKey(ownerID); err != nil {
		return domain.SchemaDefinition{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.SchemaDefinition{}, domain.SchemaNotFound(id)
	}

	schema, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.SchemaDefinition{}, err
	}
	if schema.OwnerID != ownerID {
		return domain.SchemaDefinition{}, domain.SchemaNotFound(id)
	}
	return schema, nil
}

func (s *SchemaService) List(ctx context.Context, ownerID string) ([]domain.SchemaDefinition, error) {
	if err := domain.ValidateKey(ownerID); err != nil {
		return nil, err
	}
	return s.store.FindAllByOwner(ctx, ownerID)
}

// Delete soft-deletes the schema. Records stored against it are kept.
func (s *SchemaService) Delete(ctx context.Context, ownerID, id string, meta domain.MutationMetadata) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	s.cache.Delete(id)
	return s.store.Delete(ctx, id, ownerID, meta)
}

// ExportJSONSchema renders the schema as a JSON Schema draft-07 document.
// The document is compiled once to make sure it is valid and then cached.
func (s *SchemaService) ExportJSONSchema(ctx context.Context, ownerID, id string) (json.RawMessage, error) {
	schema, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Load(id); ok {
		return cached.(json.RawMessage), nil
	}

	doc, err := renderJSONSchema(schema).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("render json schema: %w", err)
	}
	if _, err := compileSchema(doc); err != nil {
		return nil, fmt.Errorf("compile json schema: %w", err)
	}
	s.cache.Store(id, json.RawMessage(doc))
	return doc, nil
}

// compileSchema builds a *santhosh.Schema from raw JSON.
func compileSchema(schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}
