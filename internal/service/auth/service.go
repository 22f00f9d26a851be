package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	"github.com/jwalitptl/patient-records/pkg/auth"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/metrics"
	"github.com/jwalitptl/patient-records/pkg/security"
	"github.com/jwalitptl/patient-records/pkg/tokenstore"
)

const tokenTypeBearer = "Bearer"

var (
	errInvalidCredentials = apperrors.Unauthorized("invalid credentials", nil)
	errAccountLocked      = apperrors.Unauthorized("account is locked, please try again later", nil)
	errAccountInactive    = apperrors.Unauthorized("account is inactive", nil)
	errSessionExpired     = apperrors.Unauthorized("session expired, please sign in again", nil)
)

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   auth.JWTService
	tokens   tokenstore.Store
	hasher   security.PasswordHasher
	auditor  *audit.Service
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	userRepo repository.UserRepository,
	jwtSvc auth.JWTService,
	tokens tokenstore.Store,
	hasher security.PasswordHasher,
	auditor *audit.Service,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		tokens:   tokens,
		hasher:   hasher,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login checks credentials and issues a token pair. Five consecutive
// failures lock the account for fifteen minutes.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest, ipAddress, userAgent string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.loginOutcome("unknown_user")
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	if user.Status == model.UserStatusInactive {
		s.loginOutcome("inactive")
		return nil, errAccountInactive
	}
	if user.IsLocked(now) {
		s.loginOutcome("locked")
		return nil, errAccountLocked
	}
	if user.LockedUntil != nil {
		// The lock has expired; start counting failures afresh.
		if err := s.userRepo.UpdateStatus(ctx, user.ID, model.UserStatusActive); err != nil {
			return nil, fmt.Errorf("failed to clear expired lock: %w", err)
		}
	}

	actor := &model.Principal{UserID: user.ID, Email: user.Email, Role: user.Role, IPAddress: ipAddress, UserAgent: userAgent}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		attempts, recErr := s.userRepo.RecordFailedLogin(ctx, user.ID, model.MaxFailedLogins, now.Add(model.LockoutDuration))
		if recErr != nil {
			return nil, fmt.Errorf("failed to update login attempts: %w", recErr)
		}
		s.auditor.Log(ctx, actor, model.AuditActionLogin, model.AuditEntityUser, &user.ID,
			map[string]interface{}{"success": false, "attempts": attempts})

		if attempts >= model.MaxFailedLogins {
			s.loginOutcome("locked")
			s.logger.WithContext(ctx).Warn("Account locked after failed logins", "user_id", user.ID.String())
			return nil, errAccountLocked
		}
		s.loginOutcome("bad_password")
		return nil, errInvalidCredentials
	}

	if err := s.userRepo.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update login timestamp: %w", err)
	}

	tokens, err := s.generateTokens(user)
	if err != nil {
		return nil, err
	}

	s.loginOutcome("success")
	s.auditor.Log(ctx, actor, model.AuditActionLogin, model.AuditEntityUser, &user.ID,
		map[string]interface{}{"success": true})
	return tokens, nil
}

// Refresh rotates a refresh token. The presented token is revoked before
// anything is issued, so concurrent callers with the same token get at most
// one new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid refresh token", err)
	}

	won, err := s.tokens.RevokeOnce(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !won {
		return nil, errSessionExpired
	}

	user, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errSessionExpired
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.Status == model.UserStatusInactive {
		return nil, errAccountInactive
	}
	if user.IsLocked(s.now()) {
		return nil, errAccountLocked
	}
	return s.generateTokens(user)
}

// Authenticate validates an access token and returns its caller.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	claims, err := s.jwtSvc.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, apperrors.Unauthorized("token expired", err)
		}
		return nil, apperrors.Unauthorized("invalid token", err)
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, apperrors.Unauthorized("token revoked", nil)
	}

	// Deactivation and role changes apply to tokens already issued.
	user, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errSessionExpired
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.Status == model.UserStatusInactive {
		return nil, errAccountInactive
	}

	return &model.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the caller's access token and, when given, its refresh token.
func (s *Service) Logout(ctx context.Context, actor *model.Principal, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, actor.TokenID, actor.ExpiresAt); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}

	if refreshToken != "" {
		claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
		if err == nil && claims.UserID == actor.UserID {
			if err := s.tokens.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				return fmt.Errorf("failed to revoke refresh token: %w", err)
			}
		}
	}

	s.auditor.Log(ctx, actor, model.AuditActionLogout, model.AuditEntityUser, &actor.UserID, nil)
	return nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, actor *model.Principal, req *model.ChangePasswordRequest) error {
	user, err := s.Me(ctx, actor.UserID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, req.CurrentPassword); err != nil {
		return apperrors.Invalid(apperrors.FieldError{Field: "current_password", Message: "is incorrect"})
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) || errors.Is(err, security.ErrPasswordTooLong) {
			return apperrors.Invalid(apperrors.FieldError{Field: "new_password", Message: "must be between 8 and 72 characters"})
		}
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityUser, &user.ID,
		map[string]interface{}{"fields": []string{"password"}})
	return nil
}

// EnsureAdmin creates the first administrator when the users table is empty.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, nil
	}

	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash bootstrap password: %w", err)
	}
	if name == "" {
		name = "Administrator"
	}

	user := &model.User{Email: email, Name: name, PasswordHash: hash, Role: model.RoleAdmin}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return false, fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.logger.Info("Created bootstrap administrator", "user_id", user.ID.String())
	s.auditor.Log(ctx, nil, model.AuditActionCreate, model.AuditEntityUser, &user.ID,
		map[string]interface{}{"bootstrap": true, "role": model.RoleAdmin})
	return true, nil
}

func (s *Service) generateTokens(user *model.User) (*model.TokenResponse, error) {
	sub := auth.Subject{UserID: user.ID, Email: user.Email, Role: user.Role}

	access, claims, err := s.jwtSvc.GenerateAccessToken(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, _, err := s.jwtSvc.GenerateRefreshToken(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &model.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time).Seconds()),
	}, nil
}

func (s *Service) loginOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}
