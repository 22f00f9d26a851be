package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

const patientDetailColumns = `p.id, p.clinic_number, p.name, p.date_of_birth, p.sex, p.phone, p.address,
	p.occupation, p.referred_by, p.primary_diagnosis, p.history, p.notes, p.created_by,
	p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM test_reports r WHERE r.patient_id = p.id AND r.deleted_at IS NULL) AS report_count,
	(SELECT MAX(r.report_date) FROM test_reports r WHERE r.patient_id = p.id AND r.deleted_at IS NULL) AS last_report_date`

var patientSortColumns = map[string]string{
	model.PatientSortCreatedAt:    "p.created_at",
	model.PatientSortName:         "lower(p.name)",
	model.PatientSortClinicNumber: "p.clinic_number",
}

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO patients (
			id, clinic_number, name, date_of_birth, sex, phone, address, occupation,
			referred_by, primary_diagnosis, history, notes, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`

	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	patient.CreatedAt = r.now()
	patient.UpdatedAt = patient.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			patient.ID,
			patient.ClinicNumber,
			patient.Name,
			patient.DateOfBirth,
			patient.Sex,
			patient.Phone,
			patient.Address,
			patient.Occupation,
			patient.ReferredBy,
			patient.PrimaryDiagnosis,
			patient.History,
			patient.Notes,
			patient.CreatedBy,
			patient.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create patient: %w", translateError(err))
		}
		return r.insertOutboxEvents(ctx, tx, events)
	})
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientDetail, error) {
	query := `SELECT ` + patientDetailColumns + ` FROM patients p WHERE p.id = $1 AND p.deleted_at IS NULL`

	var patient model.PatientDetail
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", translateError(err))
	}
	return &patient, nil
}

func (r *patientRepository) GetByClinicNumber(ctx context.Context, clinicNumber string) (*model.PatientDetail, error) {
	query := `SELECT ` + patientDetailColumns + ` FROM patients p WHERE p.clinic_number = $1 AND p.deleted_at IS NULL`

	var patient model.PatientDetail
	if err := r.db.GetContext(ctx, &patient, query, clinicNumber); err != nil {
		return nil, fmt.Errorf("failed to get patient by clinic number: %w", translateError(err))
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient, events ...*model.OutboxEvent) error {
	query := `
		UPDATE patients SET
			clinic_number = $1, name = $2, date_of_birth = $3, sex = $4, phone = $5,
			address = $6, occupation = $7, referred_by = $8, primary_diagnosis = $9,
			history = $10, notes = $11, updated_at = $12
		WHERE id = $13 AND deleted_at IS NULL
	`
	patient.UpdatedAt = r.now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			patient.ClinicNumber,
			patient.Name,
			patient.DateOfBirth,
			patient.Sex,
			patient.Phone,
			patient.Address,
			patient.Occupation,
			patient.ReferredBy,
			patient.PrimaryDiagnosis,
			patient.History,
			patient.Notes,
			patient.UpdatedAt,
			patient.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update patient: %w", translateError(err))
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return r.insertOutboxEvents(ctx, tx, events)
	})
}

func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID, events ...*model.OutboxEvent) error {
	now := r.now()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE patients SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
			now, id)
		if err != nil {
			return fmt.Errorf("failed to delete patient: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE test_reports SET deleted_at = $1, updated_at = $1 WHERE patient_id = $2 AND deleted_at IS NULL`,
			now, id)
		if err != nil {
			return fmt.Errorf("failed to delete patient reports: %w", err)
		}
		return r.insertOutboxEvents(ctx, tx, events)
	})
}

func (r *patientRepository) List(ctx context.Context, filter *model.PatientFilter) ([]*model.PatientDetail, int, error) {
	where := " WHERE p.deleted_at IS NULL"
	var args []interface{}

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		where += fmt.Sprintf(
			" AND (p.clinic_number ILIKE $%d OR p.name ILIKE $%d OR p.phone ILIKE $%d OR p.primary_diagnosis ILIKE $%d)",
			n, n, n, n)
	}
	if filter.Sex != "" {
		args = append(args, strings.ToLower(filter.Sex))
		where += fmt.Sprintf(" AND p.sex = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients p`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	column, desc := filter.SortColumn()
	orderBy, ok := patientSortColumns[column]
	if !ok {
		orderBy = patientSortColumns[model.PatientSortCreatedAt]
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	query := `SELECT ` + patientDetailColumns + ` FROM patients p` + where +
		fmt.Sprintf(" ORDER BY %s %s, p.id LIMIT $%d OFFSET $%d", orderBy, dir, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	patients := []*model.PatientDetail{}
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}
