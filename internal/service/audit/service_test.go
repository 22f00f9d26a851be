package audit

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository/mocks"
	"github.com/jwalitptl/patient-records/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Output: io.Discard})
}

func TestLog_FillsActorAndChanges(t *testing.T) {
	repo := &mocks.AuditRepository{}
	svc := NewService(repo, quietLogger())

	actor := &model.Principal{UserID: uuid.New(), IPAddress: "10.1.1.1", UserAgent: "firefox"}
	entityID := uuid.New()

	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *model.AuditLog) bool {
		return *l.UserID == actor.UserID &&
			l.Action == model.AuditActionUpdate &&
			l.EntityType == model.AuditEntityPatient &&
			*l.EntityID == entityID &&
			l.IPAddress == "10.1.1.1" &&
			string(l.Changes) == `{"fields":["name"]}`
	})).Return(nil)

	svc.Log(context.Background(), actor, model.AuditActionUpdate, model.AuditEntityPatient, &entityID,
		map[string][]string{"fields": {"name"}})
	repo.AssertExpectations(t)
}

func TestLog_SwallowsRepositoryErrors(t *testing.T) {
	repo := &mocks.AuditRepository{}
	svc := NewService(repo, quietLogger())
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	assert.NotPanics(t, func() {
		svc.Log(context.Background(), nil, model.AuditActionLogin, model.AuditEntityUser, nil, nil)
	})
}

func TestList_NormalizesPagination(t *testing.T) {
	repo := &mocks.AuditRepository{}
	svc := NewService(repo, quietLogger())

	repo.On("List", mock.Anything, mock.MatchedBy(func(f *model.AuditFilter) bool {
		return f.Page == 1 && f.PageSize == model.DefaultPageSize
	})).Return([]*model.AuditLog{{Action: "read"}}, 1, nil)

	logs, total, err := svc.List(context.Background(), &model.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, logs, 1)
}

func TestDiff(t *testing.T) {
	dob, _ := model.ParseDate("1980-01-02")
	before := model.Patient{Name: "Asha", Phone: "123", DateOfBirth: &dob}
	after := before
	after.Name = "Asha Patel"
	after.DateOfBirth = nil

	changes := Diff(&before, &after)
	assert.Len(t, changes, 2)
	assert.Equal(t, Change{Old: "Asha", New: "Asha Patel"}, changes["name"])
	assert.Contains(t, changes, "date_of_birth")
	assert.NotContains(t, changes, "phone")
	assert.NotContains(t, changes, "deleted_at")
}

func TestDiff_FlattensEmbedded(t *testing.T) {
	before := model.PatientDetail{Patient: model.Patient{Sex: "male"}, ReportCount: 1}
	after := model.PatientDetail{Patient: model.Patient{Sex: "female"}, ReportCount: 1}

	changes := Diff(before, after)
	assert.Equal(t, []string{"sex"}, ChangedFields(changes))
}
