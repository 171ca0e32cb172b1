package usecase

import (
	"context"
	"fmt"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
	"github.com/atvirokodosprendimai/recordvault/internal/core/ports"
)

// AuditService is the pure read surface over the append-only trail.
type AuditService struct {
	repo ports.AuditRepository
}

func NewAuditService(repo ports.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if filter.LogicalTable != "" {
		if err := domain.ValidateLogicalTable(filter.LogicalTable); err != nil {
			return nil, err
		}
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, filter.Action)
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	return s.repo.List(ctx, filter)
}
