package usecase

import (
	"context"
	"fmt"

	"github.com/atvirokodosprendimai/dynaschema/internal/core/domain"
	"github.com/atvirokodosprendimai/dynaschema/internal/core/ports"
)

type AuditService struct {
	repo ports.AuditTrailRepository
}

func NewAuditService(repo ports.AuditTrailRepository) *AuditService {
	return &AuditService{repo: repo}
}

// List returns the owner's audit events in ascending id order, starting after
// filter.AfterID.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	if err := domain.ValidateKey(filter.OwnerID); err != nil {
		return nil, err
	}
	switch filter.AggregateType {
	case "", domain.AggregateSchema, domain.AggregateData:
	default:
		return nil, fmt.Errorf("%w: unknown aggregate type %q", domain.ErrInvalidKey, filter.AggregateType)
	}
	if filter.AggregateID != "" {
		if err := domain.ValidateKey(filter.AggregateID); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}
