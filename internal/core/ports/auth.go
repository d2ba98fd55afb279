package ports

import (
	"context"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
)

type APIKeyRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error)
	Upsert(ctx context.Context, key domain.APIKey) error
	Deactivate(ctx context.Context, tokenHash string) error
}
