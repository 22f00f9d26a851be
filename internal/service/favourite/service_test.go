package favourite

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/labs"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/repository/mocks"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	"github.com/jwalitptl/patient-records/internal/service/report"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/metrics"
	"github.com/jwalitptl/patient-records/pkg/security"
)

type fixture struct {
	svc      *Service
	reports  *mocks.ReportRepository
	patients *mocks.PatientRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	enc, err := security.NewAESEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	f := &fixture{reports: &mocks.ReportRepository{}, patients: &mocks.PatientRepository{}}
	log := logger.NewLogger(&logger.Config{Output: io.Discard})
	reports := report.NewService(f.reports, f.patients,
		audit.NewService(&mocks.AuditRepository{}, log),
		metrics.NewMetrics(prometheus.NewRegistry(), "test"), nil)
	f.svc = NewService(enc, reports)
	return f
}

func TestEncodeDecode(t *testing.T) {
	f := newFixture(t)

	cookie, err := f.svc.Encode([]string{"rft.creatinine", "autoimmune.crp"})
	require.NoError(t, err)
	assert.NotContains(t, cookie, "creatinine")

	assert.Equal(t, []string{"rft.creatinine", "autoimmune.crp"}, f.svc.Decode(cookie))
}

func TestDecode_GarbledCookie(t *testing.T) {
	f := newFixture(t)

	assert.Empty(t, f.svc.Decode(""))
	assert.Empty(t, f.svc.Decode("not-a-cookie"))

	cookie, err := f.svc.Encode([]string{"rft.creatinine"})
	require.NoError(t, err)
	tampered := []byte(cookie)
	if tampered[10] == 'A' {
		tampered[10] = 'B'
	} else {
		tampered[10] = 'A'
	}
	assert.Empty(t, f.svc.Decode(string(tampered)))
}

func TestDecode_DropsUnknownAndDuplicateKeys(t *testing.T) {
	f := newFixture(t)

	cookie, err := f.svc.Encode([]string{"rft.urea", "rft.gone", "rft.urea", "lft.alt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rft.urea", "lft.alt"}, f.svc.Decode(cookie))
}

func TestAdd(t *testing.T) {
	f := newFixture(t)

	list, err := f.svc.Add([]string{"rft.urea"}, "lft.alt")
	require.NoError(t, err)
	assert.Equal(t, []string{"rft.urea", "lft.alt"}, list)

	list, err = f.svc.Add(list, "rft.urea")
	require.NoError(t, err)
	assert.Equal(t, []string{"rft.urea", "lft.alt"}, list)

	_, err = f.svc.Add(list, "rft.unknown")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestAdd_Limit(t *testing.T) {
	f := newFixture(t)

	var full []string
	for _, field := range labs.Catalogue() {
		if len(full) == model.MaxFavourites {
			break
		}
		full = append(full, field.Key)
	}
	require.Len(t, full, model.MaxFavourites, "catalogue must have at least %d fields", model.MaxFavourites)

	var extra string
	for _, field := range labs.Catalogue()[model.MaxFavourites:] {
		extra = field.Key
		break
	}
	require.NotEmpty(t, extra)

	_, err := f.svc.Add(full, extra)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{"lft.alt"}, f.svc.Remove([]string{"rft.urea", "lft.alt"}, "rft.urea"))
	assert.Equal(t, []string{"lft.alt"}, f.svc.Remove([]string{"lft.alt"}, "rft.urea"))
}

func TestReplace(t *testing.T) {
	f := newFixture(t)

	list, err := f.svc.Replace([]string{"lft.alt", "rft.urea", "lft.alt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lft.alt", "rft.urea"}, list)

	_, err = f.svc.Replace([]string{"lft.alt", "nope"})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "fields[1]", appErr.Fields[0].Field)
}

func TestFields(t *testing.T) {
	f := newFixture(t)

	fields := f.svc.Fields([]string{"rft.creatinine", "nope"})
	require.Len(t, fields, 1)
	assert.Equal(t, "Creatinine", fields[0].Label)
}

func TestQuickEntry(t *testing.T) {
	f := newFixture(t)
	patient := &model.PatientDetail{Patient: model.Patient{ID: uuid.New(), Sex: model.SexMale}}
	f.patients.On("Get", mock.Anything, patient.ID).Return(patient, nil)

	point := &model.FieldPoint{
		ReportID:   uuid.New(),
		ReportDate: model.NewDate(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
		Value:      model.FieldValue{Value: model.Float(1.5), Unit: "mg/dL"},
	}
	f.reports.On("LatestFieldValue", mock.Anything, patient.ID, model.DomainRFT, "creatinine").Return(point, nil)
	f.reports.On("LatestFieldValue", mock.Anything, patient.ID, model.DomainLFT, "alt").Return(nil, repository.ErrNotFound)

	view, err := f.svc.QuickEntry(context.Background(), patient.ID, []string{"rft.creatinine", "lft.alt"})
	require.NoError(t, err)

	require.Len(t, view.Fields, 2)
	assert.Equal(t, labs.FlagHigh, view.Fields[0].Latest.Value.Flag)
	assert.Nil(t, view.Fields[1].Latest)
	assert.Equal(t, patient, view.Patient)
}

func TestQuickEntry_UnknownPatient(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.patients.On("Get", mock.Anything, id).Return(nil, fmt.Errorf("wrapped: %w", repository.ErrNotFound))

	_, err := f.svc.QuickEntry(context.Background(), id, []string{"rft.urea"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
