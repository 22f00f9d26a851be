package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

const userColumns = `id, email, name, password_hash, role, status, failed_login_attempts,
	locked_until, last_login_at, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, email, name, password_hash, role, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = r.now()
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Status,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translateError(err))
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, strings.TrimSpace(email)); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", translateError(err))
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter *model.UserFilter) ([]*model.User, int, error) {
	where := " WHERE 1=1"
	var args []interface{}

	if filter.Role != "" {
		args = append(args, filter.Role)
		where += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	users := []*model.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// UpdateStatus also clears any lockout so that reactivating a user unlocks it.
func (r *userRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE users
		SET status = $1, failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $3
	`
	res, err := r.db.ExecContext(ctx, query, status, r.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return expectOne(res)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, hash, r.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOne(res)
}

func (r *userRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $1 THEN $2 ELSE locked_until END,
			status = CASE WHEN failed_login_attempts + 1 >= $1 THEN 'locked' ELSE status END,
			updated_at = $3
		WHERE id = $4
		RETURNING failed_login_attempts
	`
	var attempts int
	if err := r.db.GetContext(ctx, &attempts, query, maxAttempts, lockUntil, r.now(), id); err != nil {
		return 0, fmt.Errorf("failed to record failed login: %w", translateError(err))
	}
	return attempts, nil
}

// RecordLogin resets the failure counter. An expired lock returns the user to active.
func (r *userRepository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
			locked_until = NULL,
			status = CASE WHEN status = 'locked' THEN 'active' ELSE status END,
			last_login_at = $1,
			updated_at = $1
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return expectOne(res)
}
