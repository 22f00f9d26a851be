package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file. Write methods take the outbox
// events that must commit together with the change.
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		List(ctx context.Context, filter *model.UserFilter) ([]*model.User, int, error)
		Count(ctx context.Context) (int, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
		UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
		// RecordFailedLogin increments the failure counter and locks the
		// account once it reaches maxAttempts. It returns the new count.
		RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (int, error)
		RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient, events ...*model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.PatientDetail, error)
		GetByClinicNumber(ctx context.Context, clinicNumber string) (*model.PatientDetail, error)
		Update(ctx context.Context, patient *model.Patient, events ...*model.OutboxEvent) error
		// Delete soft-deletes the patient and its reports.
		Delete(ctx context.Context, id uuid.UUID, events ...*model.OutboxEvent) error
		List(ctx context.Context, filter *model.PatientFilter) ([]*model.PatientDetail, int, error)
	}

	ReportRepository interface {
		Create(ctx context.Context, report *model.TestReport, events ...*model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.TestReport, error)
		Update(ctx context.Context, report *model.TestReport, events ...*model.OutboxEvent) error
		Delete(ctx context.Context, id uuid.UUID, events ...*model.OutboxEvent) error
		Search(ctx context.Context, filter *model.ReportFilter) ([]*model.ReportSummary, int, error)
		FieldHistory(ctx context.Context, patientID uuid.UUID, domain model.Domain, field string) ([]*model.FieldPoint, error)
		LatestFieldValue(ctx context.Context, patientID uuid.UUID, domain model.Domain, field string) (*model.FieldPoint, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	OutboxRepository interface {
		// ProcessPending locks up to limit due events with FOR UPDATE SKIP
		// LOCKED, passes each to handle and stores the returned outcome in
		// the same transaction. It returns the number of events handled.
		ProcessPending(ctx context.Context, limit int, handle OutboxHandler) (int, error)
		// CountPending returns how many events still await publishing.
		CountPending(ctx context.Context) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// OutboxHandler publishes one event and decides its next state.
type OutboxHandler func(ctx context.Context, event *model.OutboxEvent) OutboxOutcome

// OutboxOutcome is the state an event moves to after a publish attempt.
type OutboxOutcome struct {
	Status       model.OutboxStatus
	ErrorMessage *string
	RetryAt      *time.Time
}
