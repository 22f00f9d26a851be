package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/pkg/logger"
)

type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Log records an audit entry. Audit failures never fail the caller's
// request, so errors are only logged.
func (s *Service) Log(ctx context.Context, actor *model.Principal, action, entityType string, entityID *uuid.UUID, changes interface{}) {
	entry := &model.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if actor != nil {
		userID := actor.UserID
		entry.UserID = &userID
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
	}

	if changes != nil {
		b, err := json.Marshal(changes)
		if err != nil {
			s.logger.WithContext(ctx).Error(err, "Failed to encode audit changes", "action", action, "entity_type", entityType)
		} else {
			entry.Changes = b
		}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to write audit log", "action", action, "entity_type", entityType)
	}
}

// List returns audit entries, newest first.
func (s *Service) List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error) {
	if !filter.Normalize() {
		return nil, 0, model.ErrInvalidPagination
	}
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}
