package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/email"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/security"
)

type Service struct {
	repo     repository.UserRepository
	hasher   security.PasswordHasher
	emailSvc email.Service
	auditor  *audit.Service
	logger   *logger.Logger
}

func NewService(repo repository.UserRepository, hasher security.PasswordHasher, emailSvc email.Service, auditor *audit.Service, logger *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		hasher:   hasher,
		emailSvc: emailSvc,
		auditor:  auditor,
		logger:   logger,
	}
}

// CreateUser adds a staff account and sends a welcome mail. Mail failures
// are logged and do not undo the account.
func (s *Service) CreateUser(ctx context.Context, actor *model.Principal, req *model.CreateUserRequest) (*model.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) || errors.Is(err, security.ErrPasswordTooLong) {
			return nil, apperrors.Invalid(apperrors.FieldError{Field: "password", Message: "must be between 8 and 72 characters"})
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("a user with this email already exists", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditor.Log(ctx, actor, model.AuditActionCreate, model.AuditEntityUser, &user.ID,
		map[string]interface{}{"email": user.Email, "role": user.Role})

	if err := s.emailSvc.SendWelcome(ctx, user.Email, user.Name); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to send welcome email", "user_id", user.ID.String())
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, filter *model.UserFilter) ([]*model.User, int, error) {
	if !filter.Normalize() {
		return nil, 0, model.ErrInvalidPagination
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// UpdateStatus activates or deactivates a user. Activating also clears a lockout.
func (s *Service) UpdateStatus(ctx context.Context, actor *model.Principal, id uuid.UUID, req *model.UpdateUserStatusRequest) (*model.User, error) {
	if id == actor.UserID && req.Status != model.UserStatusActive {
		return nil, apperrors.BadRequest("you cannot deactivate your own account", nil)
	}

	before, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}

	s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityUser, &id,
		map[string]interface{}{"status": audit.Change{Old: before.Status, New: req.Status}})

	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return user, nil
}
