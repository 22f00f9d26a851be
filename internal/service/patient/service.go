package patient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

// Event is the outbox payload of patient events. It carries identifiers and
// the names of changed fields, never clinical content.
type Event struct {
	PatientID    uuid.UUID `json:"patient_id"`
	ClinicNumber string    `json:"clinic_number"`
	Fields       []string  `json:"fields,omitempty"`
}

type Service struct {
	repo    repository.PatientRepository
	auditor *audit.Service
	metrics *metrics.Metrics
}

func NewService(repo repository.PatientRepository, auditor *audit.Service, metrics *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		metrics: metrics,
	}
}

func (s *Service) CreatePatient(ctx context.Context, actor *model.Principal, req *model.CreatePatientRequest) (*model.PatientDetail, error) {
	patient := &model.Patient{
		ID:               uuid.New(),
		ClinicNumber:     model.NormalizeClinicNumber(req.ClinicNumber),
		Name:             strings.TrimSpace(req.Name),
		Sex:              strings.ToLower(req.Sex),
		Phone:            strings.TrimSpace(req.Phone),
		Address:          req.Address,
		Occupation:       req.Occupation,
		ReferredBy:       req.ReferredBy,
		PrimaryDiagnosis: req.PrimaryDiagnosis,
		History:          req.History,
		Notes:            req.Notes,
		CreatedBy:        actor.UserID,
	}
	if err := validateName(patient.Name); err != nil {
		return nil, err
	}
	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	patient.DateOfBirth = dob

	evt, err := model.NewOutboxEvent(model.EventPatientCreated, model.AuditEntityPatient, patient.ID,
		Event{PatientID: patient.ID, ClinicNumber: patient.ClinicNumber})
	if err != nil {
		return nil, fmt.Errorf("failed to build patient event: %w", err)
	}

	if err := s.repo.Create(ctx, patient, evt); err != nil {
		return nil, translateWriteError(err, "failed to create patient")
	}

	s.metrics.RecordsWritten.WithLabelValues(model.AuditEntityPatient, model.AuditActionCreate).Inc()
	s.auditor.Log(ctx, actor, model.AuditActionCreate, model.AuditEntityPatient, &patient.ID,
		map[string]string{"clinic_number": patient.ClinicNumber})

	return &model.PatientDetail{Patient: *patient}, nil
}

func (s *Service) GetPatient(ctx context.Context, actor *model.Principal, id uuid.UUID) (*model.PatientDetail, error) {
	patient, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actor, model.AuditActionRead, model.AuditEntityPatient, &patient.ID, nil)
	return patient, nil
}

func (s *Service) GetPatientByClinicNumber(ctx context.Context, actor *model.Principal, clinicNumber string) (*model.PatientDetail, error) {
	patient, err := s.repo.GetByClinicNumber(ctx, model.NormalizeClinicNumber(clinicNumber))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	s.auditor.Log(ctx, actor, model.AuditActionRead, model.AuditEntityPatient, &patient.ID, nil)
	return patient, nil
}

// UpdatePatient applies the fields present in req. A request that changes
// nothing returns the stored patient without writing.
func (s *Service) UpdatePatient(ctx context.Context, actor *model.Principal, id uuid.UUID, req *model.UpdatePatientRequest) (*model.PatientDetail, error) {
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := current.Patient
	if err := applyUpdate(&updated, req); err != nil {
		return nil, err
	}

	changes := audit.Diff(&current.Patient, &updated)
	if len(changes) == 0 {
		return current, nil
	}
	fields := audit.ChangedFields(changes)
	sort.Strings(fields)

	evt, err := model.NewOutboxEvent(model.EventPatientUpdated, model.AuditEntityPatient, id,
		Event{PatientID: id, ClinicNumber: updated.ClinicNumber, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to build patient event: %w", err)
	}

	if err := s.repo.Update(ctx, &updated, evt); err != nil {
		return nil, translateWriteError(err, "failed to update patient")
	}

	s.metrics.RecordsWritten.WithLabelValues(model.AuditEntityPatient, model.AuditActionUpdate).Inc()
	s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityPatient, &id, changes)

	current.Patient = updated
	return current, nil
}

// DeletePatient soft-deletes the patient together with its reports.
func (s *Service) DeletePatient(ctx context.Context, actor *model.Principal, id uuid.UUID) error {
	patient, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	evt, err := model.NewOutboxEvent(model.EventPatientDeleted, model.AuditEntityPatient, id,
		Event{PatientID: id, ClinicNumber: patient.ClinicNumber})
	if err != nil {
		return fmt.Errorf("failed to build patient event: %w", err)
	}

	if err := s.repo.Delete(ctx, id, evt); err != nil {
		return translateWriteError(err, "failed to delete patient")
	}

	s.metrics.RecordsWritten.WithLabelValues(model.AuditEntityPatient, model.AuditActionDelete).Inc()
	s.auditor.Log(ctx, actor, model.AuditActionDelete, model.AuditEntityPatient, &id,
		map[string]interface{}{"clinic_number": patient.ClinicNumber, "report_count": patient.ReportCount})
	return nil
}

func (s *Service) ListPatients(ctx context.Context, filter *model.PatientFilter) ([]*model.PatientDetail, int, error) {
	if !filter.Normalize() {
		return nil, 0, model.ErrInvalidPagination
	}
	patients, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*model.PatientDetail, error) {
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return patient, nil
}

func applyUpdate(p *model.Patient, req *model.UpdatePatientRequest) error {
	if req.ClinicNumber != nil {
		number := model.NormalizeClinicNumber(*req.ClinicNumber)
		if number == "" {
			return apperrors.Invalid(apperrors.FieldError{Field: "clinic_number", Message: "is required"})
		}
		p.ClinicNumber = number
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validateName(name); err != nil {
			return err
		}
		p.Name = name
	}
	if req.DateOfBirth != nil {
		dob, err := parseDateOfBirth(*req.DateOfBirth)
		if err != nil {
			return err
		}
		p.DateOfBirth = dob
	}
	if req.Sex != nil {
		p.Sex = strings.ToLower(*req.Sex)
	}
	if req.Phone != nil {
		p.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.Occupation != nil {
		p.Occupation = *req.Occupation
	}
	if req.ReferredBy != nil {
		p.ReferredBy = *req.ReferredBy
	}
	if req.PrimaryDiagnosis != nil {
		p.PrimaryDiagnosis = *req.PrimaryDiagnosis
	}
	if req.History != nil {
		p.History = *req.History
	}
	if req.Notes != nil {
		p.Notes = *req.Notes
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return apperrors.Invalid(apperrors.FieldError{Field: "name", Message: "is required"})
	}
	return nil
}

// parseDateOfBirth accepts an empty string as "unknown".
func parseDateOfBirth(s string) (*model.Date, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, apperrors.Invalid(apperrors.FieldError{Field: "date_of_birth", Message: "must be a date in YYYY-MM-DD format"})
	}
	return &d, nil
}

func translateWriteError(err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.Conflict("a patient with this clinic number already exists", err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("patient", err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
