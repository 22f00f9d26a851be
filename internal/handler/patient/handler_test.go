package patient

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/labs"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/repository/mocks"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	"github.com/jwalitptl/patient-records/internal/service/patient"
	"github.com/jwalitptl/patient-records/pkg/httputil"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/metrics"
	"github.com/jwalitptl/patient-records/pkg/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := validator.Setup(labs.IsFieldKey, nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newRouter(repo *mocks.PatientRepository, role string) *gin.Engine {
	audits := &mocks.AuditRepository{}
	audits.On("Create", mock.Anything, mock.Anything).Return(nil)
	log := logger.NewLogger(&logger.Config{Output: io.Discard})
	svc := patient.NewService(repo, audit.NewService(audits, log), metrics.NewMetrics(prometheus.NewRegistry(), "test"))

	r := gin.New()
	api := r.Group("/api/v1", func(c *gin.Context) {
		c.Set(middleware.ContextPrincipal, &model.Principal{UserID: uuid.New(), Role: role})
	})
	NewHandler(svc).RegisterRoutes(api)
	return r
}

func do(r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, httputil.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp httputil.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestCreatePatient(t *testing.T) {
	repo := &mocks.PatientRepository{}
	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	r := newRouter(repo, model.RoleStaff)

	w, resp := do(r, http.MethodPost, "/api/v1/patients", `{"clinic_number":"rh-7","name":"Meera Iyer","sex":"female"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, httputil.StatusSuccess, resp.Status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "RH-7", data["clinic_number"])
}

func TestCreatePatient_ValidationErrors(t *testing.T) {
	r := newRouter(&mocks.PatientRepository{}, model.RoleStaff)

	w, resp := do(r, http.MethodPost, "/api/v1/patients", `{"clinic_number":"bad number!","date_of_birth":"2999-01-01"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := make(map[string]string)
	for _, fe := range resp.Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Contains(t, fields, "clinic_number")
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must not be in the future", fields["date_of_birth"])
}

func TestCreatePatient_Duplicate(t *testing.T) {
	repo := &mocks.PatientRepository{}
	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(repository.ErrDuplicate)
	r := newRouter(repo, model.RoleStaff)

	w, _ := do(r, http.MethodPost, "/api/v1/patients", `{"clinic_number":"RH-7","name":"Meera Iyer"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetPatient(t *testing.T) {
	repo := &mocks.PatientRepository{}
	missing := uuid.New()
	repo.On("Get", mock.Anything, missing).Return(nil, repository.ErrNotFound)
	r := newRouter(repo, model.RoleStaff)

	w, _ := do(r, http.MethodGet, "/api/v1/patients/"+missing.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(r, http.MethodGet, "/api/v1/patients/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPatientByNumber(t *testing.T) {
	repo := &mocks.PatientRepository{}
	p := &model.PatientDetail{Patient: model.Patient{ID: uuid.New(), ClinicNumber: "RH-9"}}
	repo.On("GetByClinicNumber", mock.Anything, "RH-9").Return(p, nil)
	r := newRouter(repo, model.RoleStaff)

	w, resp := do(r, http.MethodGet, "/api/v1/patients/by-number/rh-9", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, p.ID.String(), resp.Data.(map[string]interface{})["id"])
}

func TestDeletePatient_RequiresAdmin(t *testing.T) {
	id := uuid.New()
	w, _ := do(newRouter(&mocks.PatientRepository{}, model.RoleStaff), http.MethodDelete, "/api/v1/patients/"+id.String(), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	repo := &mocks.PatientRepository{}
	repo.On("Get", mock.Anything, id).Return(&model.PatientDetail{Patient: model.Patient{ID: id, ClinicNumber: "RH-1"}}, nil)
	repo.On("Delete", mock.Anything, id, mock.Anything).Return(nil)
	w, _ = do(newRouter(repo, model.RoleAdmin), http.MethodDelete, "/api/v1/patients/"+id.String(), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListPatients(t *testing.T) {
	repo := &mocks.PatientRepository{}
	repo.On("List", mock.Anything, mock.MatchedBy(func(f *model.PatientFilter) bool {
		return f.Query == "asha" && f.Page == 2 && f.PageSize == 10
	})).Return([]*model.PatientDetail{{}}, 11, nil)
	r := newRouter(repo, model.RoleStaff)

	w, resp := do(r, http.MethodGet, "/api/v1/patients?q=asha&page=2&page_size=10", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 11, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.TotalPages)

	w, _ = do(r, http.MethodGet, "/api/v1/patients?sort=age", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(r, http.MethodGet, "/api/v1/patients?page_size=500", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
