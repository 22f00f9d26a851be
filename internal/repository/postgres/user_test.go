package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

func TestUserRepository_Create(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewUserRepository(base)

	user := &model.User{Email: " Nurse@Clinic.local ", Name: "Nurse", PasswordHash: "hash", Role: model.RoleStaff}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "nurse@clinic.local", "Nurse", "hash", "staff", "active", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, model.UserStatusActive, user.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmailNotFound(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewUserRepository(base)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE lower(email) = lower($1)")).
		WithArgs("ghost@clinic.local").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@clinic.local")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_RecordFailedLogin(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewUserRepository(base)

	id := uuid.New()
	lockUntil := fixedNow.Add(15 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("SET failed_login_attempts = failed_login_attempts + 1")).
		WithArgs(5, lockUntil, fixedNow, id).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts"}).AddRow(5))

	attempts, err := repo.RecordFailedLogin(context.Background(), id, 5, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 5, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateStatusMissingUser(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewUserRepository(base)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), uuid.New(), model.UserStatusInactive)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_List(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewUserRepository(base)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY name ASC LIMIT $2 OFFSET $3")).
		WithArgs("admin", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "status",
			"failed_login_attempts", "locked_until", "last_login_at", "created_at", "updated_at"}).
			AddRow(uuid.New(), "admin@clinic.local", "Admin", "hash", "admin", "active", 0, nil, nil, fixedNow, fixedNow))

	filter := &model.UserFilter{Role: "admin", Pagination: model.Pagination{Page: 1, PageSize: 20}}
	users, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "admin@clinic.local", users[0].Email)
}
