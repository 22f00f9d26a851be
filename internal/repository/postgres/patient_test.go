package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

var patientDetailRow = []string{"id", "clinic_number", "name", "date_of_birth", "sex", "phone", "address",
	"occupation", "referred_by", "primary_diagnosis", "history", "notes", "created_by",
	"created_at", "updated_at", "report_count", "last_report_date"}

func TestPatientRepository_CreateWritesOutboxInSameTx(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)

	patient := &model.Patient{ClinicNumber: "RH-001", Name: "Asha Patel", CreatedBy: uuid.New()}
	evt, err := model.NewOutboxEvent(model.EventPatientCreated, model.AuditEntityPatient, patient.ID, map[string]string{"clinic_number": "RH-001"})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO patients")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WithArgs(evt.ID, model.EventPatientCreated, model.AuditEntityPatient, sqlmock.AnyArg(), sqlmock.AnyArg(), "PENDING", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), patient, evt))
	assert.NotEqual(t, uuid.Nil, patient.ID)
	assert.Equal(t, fixedNow, patient.CreatedAt)
	assert.Equal(t, model.OutboxStatusPending, evt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_CreateDuplicateRollsBack(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO patients")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "patients_clinic_number_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.Patient{ClinicNumber: "RH-001", Name: "Dup"})
	assert.True(t, errors.Is(err, repository.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_GetNotFound(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)

	mock.ExpectQuery(regexp.QuoteMeta("FROM patients p WHERE p.id = $1 AND p.deleted_at IS NULL")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPatientRepository_DeleteCascadesToReports(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE patients SET deleted_at = $1")).
		WithArgs(fixedNow, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_reports SET deleted_at = $1")).
		WithArgs(fixedNow, id).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_DeleteMissing(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE patients SET deleted_at = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientRepository_ListSearchAndSort(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPatientRepository(base)

	filter := &model.PatientFilter{
		Pagination: model.Pagination{Page: 2, PageSize: 10},
		Query:      "50%",
		Sex:        "Female",
		Sort:       "-name",
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM patients p WHERE p.deleted_at IS NULL AND (p.clinic_number ILIKE $1")).
		WithArgs(`%50\%%`, "female").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY lower(p.name) DESC, p.id LIMIT $3 OFFSET $4")).
		WithArgs(`%50\%%`, "female", 10, 10).
		WillReturnRows(sqlmock.NewRows(patientDetailRow).
			AddRow(uuid.New(), "RH-050", "Zara", "1980-02-01", "female", "", "", "", "", "", "", "",
				uuid.New(), fixedNow, fixedNow, 2, "2024-04-01"))

	patients, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, patients, 1)
	assert.Equal(t, "RH-050", patients[0].ClinicNumber)
	assert.Equal(t, 2, patients[0].ReportCount)
	require.NotNil(t, patients[0].LastReportDate)
	assert.Equal(t, "2024-04-01", patients[0].LastReportDate.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\`, escapeLike(`a%b_c\`))
}
