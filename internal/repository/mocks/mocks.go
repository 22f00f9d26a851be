// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
)

type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *UserRepository) List(ctx context.Context, filter *model.UserFilter) ([]*model.User, int, error) {
	args := m.Called(ctx, filter)
	users, _ := args.Get(0).([]*model.User)
	return users, args.Int(1), args.Error(2)
}

func (m *UserRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *UserRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *UserRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (int, error) {
	args := m.Called(ctx, id, maxAttempts, lockUntil)
	return args.Int(0), args.Error(1)
}

func (m *UserRepository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type PatientRepository struct {
	mock.Mock
}

func (m *PatientRepository) Create(ctx context.Context, patient *model.Patient, events ...*model.OutboxEvent) error {
	return m.Called(ctx, patient, events).Error(0)
}

func (m *PatientRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientDetail, error) {
	args := m.Called(ctx, id)
	patient, _ := args.Get(0).(*model.PatientDetail)
	return patient, args.Error(1)
}

func (m *PatientRepository) GetByClinicNumber(ctx context.Context, clinicNumber string) (*model.PatientDetail, error) {
	args := m.Called(ctx, clinicNumber)
	patient, _ := args.Get(0).(*model.PatientDetail)
	return patient, args.Error(1)
}

func (m *PatientRepository) Update(ctx context.Context, patient *model.Patient, events ...*model.OutboxEvent) error {
	return m.Called(ctx, patient, events).Error(0)
}

func (m *PatientRepository) Delete(ctx context.Context, id uuid.UUID, events ...*model.OutboxEvent) error {
	return m.Called(ctx, id, events).Error(0)
}

func (m *PatientRepository) List(ctx context.Context, filter *model.PatientFilter) ([]*model.PatientDetail, int, error) {
	args := m.Called(ctx, filter)
	patients, _ := args.Get(0).([]*model.PatientDetail)
	return patients, args.Int(1), args.Error(2)
}

type ReportRepository struct {
	mock.Mock
}

func (m *ReportRepository) Create(ctx context.Context, report *model.TestReport, events ...*model.OutboxEvent) error {
	return m.Called(ctx, report, events).Error(0)
}

func (m *ReportRepository) Get(ctx context.Context, id uuid.UUID) (*model.TestReport, error) {
	args := m.Called(ctx, id)
	report, _ := args.Get(0).(*model.TestReport)
	return report, args.Error(1)
}

func (m *ReportRepository) Update(ctx context.Context, report *model.TestReport, events ...*model.OutboxEvent) error {
	return m.Called(ctx, report, events).Error(0)
}

func (m *ReportRepository) Delete(ctx context.Context, id uuid.UUID, events ...*model.OutboxEvent) error {
	return m.Called(ctx, id, events).Error(0)
}

func (m *ReportRepository) Search(ctx context.Context, filter *model.ReportFilter) ([]*model.ReportSummary, int, error) {
	args := m.Called(ctx, filter)
	reports, _ := args.Get(0).([]*model.ReportSummary)
	return reports, args.Int(1), args.Error(2)
}

func (m *ReportRepository) FieldHistory(ctx context.Context, patientID uuid.UUID, domain model.Domain, field string) ([]*model.FieldPoint, error) {
	args := m.Called(ctx, patientID, domain, field)
	points, _ := args.Get(0).([]*model.FieldPoint)
	return points, args.Error(1)
}

func (m *ReportRepository) LatestFieldValue(ctx context.Context, patientID uuid.UUID, domain model.Domain, field string) (*model.FieldPoint, error) {
	args := m.Called(ctx, patientID, domain, field)
	point, _ := args.Get(0).(*model.FieldPoint)
	return point, args.Error(1)
}

type AuditRepository struct {
	mock.Mock
}

func (m *AuditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *AuditRepository) List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]*model.AuditLog)
	return logs, args.Int(1), args.Error(2)
}

func (m *AuditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type OutboxRepository struct {
	mock.Mock
	Outcomes []repository.OutboxOutcome
}

// ProcessPending hands the events given to Return to the handler and
// records the outcomes in Outcomes.
func (m *OutboxRepository) ProcessPending(ctx context.Context, limit int, handle repository.OutboxHandler) (int, error) {
	args := m.Called(ctx, limit)
	events, _ := args.Get(0).([]*model.OutboxEvent)
	for _, evt := range events {
		m.Outcomes = append(m.Outcomes, handle(ctx, evt))
	}
	return len(events), args.Error(1)
}

func (m *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *OutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

var (
	_ repository.UserRepository    = (*UserRepository)(nil)
	_ repository.PatientRepository = (*PatientRepository)(nil)
	_ repository.ReportRepository  = (*ReportRepository)(nil)
	_ repository.AuditRepository   = (*AuditRepository)(nil)
	_ repository.OutboxRepository  = (*OutboxRepository)(nil)
)
