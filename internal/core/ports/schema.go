package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

// SchemaStore persists schema definitions. Create and Delete record an audit
// and outbox event in the same transaction as the change.
type SchemaStore interface {
	Create(ctx context.Context, schema domain.SchemaDefinition, meta domain.MutationMetadata) (domain.SchemaDefinition, error)
	FindByID(ctx context.Context, id string) (domain.SchemaDefinition, error)
	FindAllByOwner(ctx context.Context, ownerID string) ([]domain.SchemaDefinition, error)
	Delete(ctx context.Context, id, ownerID string, meta domain.MutationMetadata) error
}

type DataStore interface {
	Create(ctx context.Context, rec domain.DataRecord, meta domain.MutationMetadata) (domain.DataRecord, error)
	CreateMany(ctx context.Context, recs []domain.DataRecord, meta domain.MutationMetadata) ([]domain.DataRecord, error)
	FindByID(ctx context.Context, id, ownerID string) (domain.DataRecord, error)
	FindAllBySchema(ctx context.Context, schemaID, ownerID string) ([]domain.DataRecord, error)
}
