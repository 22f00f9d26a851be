package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/labs"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

// Event is the outbox payload of report events.
type Event struct {
	ReportID   uuid.UUID `json:"report_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	ReportDate string    `json:"report_date"`
	Domains    []string  `json:"domains,omitempty"`
}

// FieldHistory is the time series of one field for one patient.
type FieldHistory struct {
	Field  labs.Field          `json:"field"`
	Points []*model.FieldPoint `json:"points"`
}

type Service struct {
	repo     repository.ReportRepository
	patients repository.PatientRepository
	auditor  *audit.Service
	metrics  *metrics.Metrics
	loc      *time.Location
	now      func() time.Time
}

// NewService builds the report service. loc is the clinic timezone used to
// decide whether a report date lies in the future; nil means UTC.
func NewService(repo repository.ReportRepository, patients repository.PatientRepository, auditor *audit.Service, metrics *metrics.Metrics, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		patients: patients,
		auditor:  auditor,
		metrics:  metrics,
		loc:      loc,
		now:      time.Now,
	}
}

// CreateReport normalizes the payloads to canonical units, fills derived
// fields and stores the report.
func (s *Service) CreateReport(ctx context.Context, actor *model.Principal, patientID uuid.UUID, payload *model.ReportPayload) (*model.TestReport, error) {
	patient, err := s.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	report := &model.TestReport{
		ID:        uuid.New(),
		PatientID: patient.ID,
		CreatedBy: actor.UserID,
	}
	if err := s.fill(report, &patient.Patient, payload); err != nil {
		return nil, err
	}

	evt, err := newEvent(model.EventReportCreated, report)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, report, evt); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.metrics.RecordsWritten.WithLabelValues(model.AuditEntityReport, model.AuditActionCreate).Inc()
	s.auditor.Log(ctx, actor, model.AuditActionCreate, model.AuditEntityReport, &report.ID,
		map[string]interface{}{"patient_id": patient.ID, "report_date": report.ReportDate.String(), "domains": domainsOf(report)})

	labs.ApplyFlags(report, patient.Sex)
	return report, nil
}

// QuickEntry creates a report from flat "<domain>.<field>" values.
func (s *Service) QuickEntry(ctx context.Context, actor *model.Principal, patientID uuid.UUID, req *model.QuickEntryRequest) (*model.TestReport, error) {
	payload, err := labs.SplitValues(req.Values)
	if err != nil {
		return nil, err
	}
	payload.ReportDate = req.ReportDate
	payload.Title = req.Title
	return s.CreateReport(ctx, actor, patientID, &payload)
}

// GetReport returns a report with reference range flags for the patient's sex.
func (s *Service) GetReport(ctx context.Context, actor *model.Principal, id uuid.UUID) (*model.TestReport, error) {
	report, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	patient, err := s.Patient(ctx, report.PatientID)
	if err != nil {
		return nil, err
	}

	labs.ApplyFlags(report, patient.Sex)
	s.auditor.Log(ctx, actor, model.AuditActionRead, model.AuditEntityReport, &report.ID, nil)
	return report, nil
}

// UpdateReport replaces the date, title and every payload of a report.
func (s *Service) UpdateReport(ctx context.Context, actor *model.Principal, id uuid.UUID, payload *model.ReportPayload) (*model.TestReport, error) {
	report, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	patient, err := s.Patient(ctx, report.PatientID)
	if err != nil {
		return nil, err
	}

	before := domainsOf(report)
	beforeDate := report.ReportDate.String()
	for _, d := range model.Domains {
		report.SetPanel(d, nil)
	}
	if err := s.fill(report, &patient.Patient, payload); err != nil {
		return nil, err
	}

	evt, err := newEvent(model.EventReportUpdated, report)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, report, evt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("report", err)
		}
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	s.metrics.RecordsWritten.WithLabelValues(model.AuditEntityReport, model.AuditActionUpdate).Inc()
	s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityReport, &report.ID, map[string]interface{}{
		"report_date": audit.Change{Old: beforeDate, New: report.ReportDate.String()},
		"domains":     audit.Change{Old: before, New: domainsOf(report)},
	})

	labs.ApplyFlags(report, patient.Sex)
	return report, nil
}

func (s *Service) DeleteReport(ctx context.Context, actor *model.Principal, id uuid.UUID) error {
	report, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	evt, err := newEvent(model.EventReportDeleted, report)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, evt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("report", err)
		}
		return fmt.Errorf("failed to delete report: %w", err)
	}

	s.metrics.RecordsWritten.WithLabelValues(model.AuditEntityReport, model.AuditActionDelete).Inc()
	s.auditor.Log(ctx, actor, model.AuditActionDelete, model.AuditEntityReport, &id,
		map[string]interface{}{"patient_id": report.PatientID})
	return nil
}

// SearchReports parses the textual filter values and runs the search.
func (s *Service) SearchReports(ctx context.Context, filter *model.ReportFilter) ([]*model.ReportSummary, int, error) {
	if err := s.parseFilter(filter); err != nil {
		return nil, 0, err
	}

	reports, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search reports: %w", err)
	}
	return reports, total, nil
}

// ListPatientReports lists one patient's reports, newest first.
func (s *Service) ListPatientReports(ctx context.Context, patientID uuid.UUID, filter *model.ReportFilter) ([]*model.ReportSummary, int, error) {
	if _, err := s.Patient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	filter.PatientID = patientID.String()
	return s.SearchReports(ctx, filter)
}

// History returns every recorded value of a field for a patient, oldest first.
func (s *Service) History(ctx context.Context, actor *model.Principal, patientID uuid.UUID, key string) (*FieldHistory, error) {
	field, ok := labs.Lookup(key)
	if !ok {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown field %q", key), nil)
	}
	patient, err := s.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	points, err := s.repo.FieldHistory(ctx, patientID, field.Domain, field.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load field history: %w", err)
	}
	for _, p := range points {
		if p.Value.Value != nil {
			p.Value.Flag = labs.Flag(field.Key, *p.Value.Value, patient.Sex)
		}
	}

	s.auditor.Log(ctx, actor, model.AuditActionRead, model.AuditEntityPatient, &patientID,
		map[string]string{"field_history": field.Key})
	return &FieldHistory{Field: field, Points: points}, nil
}

// LatestValue returns the most recent value of a field, or nil when the
// patient has never had it recorded.
func (s *Service) LatestValue(ctx context.Context, patientID uuid.UUID, field labs.Field, sex string) (*model.FieldPoint, error) {
	point, err := s.repo.LatestFieldValue(ctx, patientID, field.Domain, field.Name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest %s: %w", field.Key, err)
	}
	if point.Value.Value != nil {
		point.Value.Flag = labs.Flag(field.Key, *point.Value.Value, sex)
	}
	return point, nil
}

func (s *Service) fill(report *model.TestReport, patient *model.Patient, payload *model.ReportPayload) error {
	date, err := model.ParseDate(payload.ReportDate)
	if err != nil {
		return apperrors.Invalid(apperrors.FieldError{Field: "report_date", Message: "must be a date in YYYY-MM-DD format"})
	}
	if date.After(model.NewDate(s.now().In(s.loc)).Time) {
		return apperrors.Invalid(apperrors.FieldError{Field: "report_date", Message: "must not be in the future"})
	}

	panels, err := labs.NormalizeReport(*payload)
	if err != nil {
		return err
	}

	report.ReportDate = date
	report.Title = strings.TrimSpace(payload.Title)
	for d, panel := range panels {
		report.SetPanel(d, panel)
	}
	labs.Derive(report, patient)
	return nil
}

func (s *Service) parseFilter(filter *model.ReportFilter) error {
	if !filter.Normalize() {
		return model.ErrInvalidPagination
	}

	var fields []apperrors.FieldError
	if filter.Domain != "" {
		if _, ok := model.ParseDomain(filter.Domain); !ok {
			fields = append(fields, apperrors.FieldError{Field: "domain", Message: "must be one of " + domainList()})
		}
	}
	if filter.From != "" {
		d, err := model.ParseDate(filter.From)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: "from", Message: "must be a date in YYYY-MM-DD format"})
		} else {
			filter.FromDate = &d
		}
	}
	if filter.To != "" {
		d, err := model.ParseDate(filter.To)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: "to", Message: "must be a date in YYYY-MM-DD format"})
		} else {
			filter.ToDate = &d
		}
	}
	if filter.FromDate != nil && filter.ToDate != nil && filter.FromDate.After(filter.ToDate.Time) {
		fields = append(fields, apperrors.FieldError{Field: "from", Message: "must not be after to"})
	}
	if filter.PatientID != "" {
		id, err := uuid.Parse(filter.PatientID)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: "patient_id", Message: "must be a valid UUID"})
		} else {
			filter.Patient = &id
		}
	}

	if len(fields) > 0 {
		return apperrors.Invalid(fields...)
	}
	return nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*model.TestReport, error) {
	report, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("report", err)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// Patient loads a patient or returns a not found AppError.
func (s *Service) Patient(ctx context.Context, id uuid.UUID) (*model.PatientDetail, error) {
	patient, err := s.patients.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return patient, nil
}

func newEvent(eventType string, report *model.TestReport) (*model.OutboxEvent, error) {
	evt, err := model.NewOutboxEvent(eventType, model.AuditEntityReport, report.ID, Event{
		ReportID:   report.ID,
		PatientID:  report.PatientID,
		ReportDate: report.ReportDate.String(),
		Domains:    domainsOf(report),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build report event: %w", err)
	}
	return evt, nil
}

func domainsOf(report *model.TestReport) []string {
	var out []string
	for _, d := range model.Domains {
		if len(report.Panel(d)) > 0 {
			out = append(out, string(d))
		}
	}
	return out
}

func domainList() string {
	names := make([]string, len(model.Domains))
	for i, d := range model.Domains {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
