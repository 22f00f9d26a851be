package favourite

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/labs"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository/mocks"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	"github.com/jwalitptl/patient-records/internal/service/favourite"
	"github.com/jwalitptl/patient-records/internal/service/report"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/metrics"
	"github.com/jwalitptl/patient-records/pkg/security"
	"github.com/jwalitptl/patient-records/pkg/validator"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := validator.Setup(labs.IsFieldKey, nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fixture struct {
	router   *gin.Engine
	reports  *mocks.ReportRepository
	patients *mocks.PatientRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	enc, err := security.NewAESEncryptor([]byte("0123456789abcdef"))
	require.NoError(t, err)

	f := &fixture{reports: &mocks.ReportRepository{}, patients: &mocks.PatientRepository{}}
	audits := &mocks.AuditRepository{}
	audits.On("Create", mock.Anything, mock.Anything).Return(nil)
	log := logger.NewLogger(&logger.Config{Output: io.Discard})
	reports := report.NewService(f.reports, f.patients, audit.NewService(audits, log),
		metrics.NewMetrics(prometheus.NewRegistry(), "test"), nil)

	f.router = gin.New()
	api := f.router.Group("/api/v1", func(c *gin.Context) {
		c.Set(middleware.ContextPrincipal, &model.Principal{UserID: uuid.New(), Role: model.RoleStaff})
	})
	NewHandler(favourite.NewService(enc, reports), reports, CookieConfig{Secure: true}).RegisterRoutes(api)
	return f
}

// do sends a request carrying cookie (if any) and returns the response and
// the favourites cookie it set.
func (f *fixture) do(method, path, body string, cookie *http.Cookie) (*httptest.ResponseRecorder, *http.Cookie) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == model.FavouriteCookie {
			return w, c
		}
	}
	return w, cookie
}

func keysOf(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var resp struct {
		Data []labs.Field `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	keys := make([]string, len(resp.Data))
	for i, f := range resp.Data {
		keys[i] = f.Key
	}
	return keys
}

func TestFavouritesCookieFlow(t *testing.T) {
	f := newFixture(t)

	w, cookie := f.do(http.MethodGet, "/api/v1/favourites", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, keysOf(t, w))
	assert.Nil(t, cookie)

	w, cookie = f.do(http.MethodPut, "/api/v1/favourites/rft.creatinine", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.NotContains(t, cookie.Value, "creatinine")

	w, cookie = f.do(http.MethodPut, "/api/v1/favourites/autoimmune.crp", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"rft.creatinine", "autoimmune.crp"}, keysOf(t, w))

	w, cookie = f.do(http.MethodPut, "/api/v1/favourites", `{"fields":["autoimmune.crp","rft.creatinine"]}`, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"autoimmune.crp", "rft.creatinine"}, keysOf(t, w))

	w, cookie = f.do(http.MethodDelete, "/api/v1/favourites/autoimmune.crp", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(http.MethodGet, "/api/v1/favourites", "", cookie)
	assert.Equal(t, []string{"rft.creatinine"}, keysOf(t, w))
}

func TestAddFavourite_UnknownField(t *testing.T) {
	f := newFixture(t)

	w, cookie := f.do(http.MethodPut, "/api/v1/favourites/rft.nothing", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, cookie)
}

func TestListFavourites_GarbledCookie(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(http.MethodGet, "/api/v1/favourites", "", &http.Cookie{Name: model.FavouriteCookie, Value: "garbage"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, keysOf(t, w))
}

func TestQuickEntryView(t *testing.T) {
	f := newFixture(t)
	patient := &model.PatientDetail{Patient: model.Patient{ID: uuid.New(), Sex: model.SexFemale}}
	f.patients.On("Get", mock.Anything, patient.ID).Return(patient, nil)
	f.reports.On("LatestFieldValue", mock.Anything, patient.ID, model.DomainRFT, "creatinine").Return(&model.FieldPoint{
		ReportID:   uuid.New(),
		ReportDate: model.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Value:      model.FieldValue{Value: model.Float(0.8), Unit: "mg/dL"},
	}, nil)

	_, cookie := f.do(http.MethodPut, "/api/v1/favourites/rft.creatinine", "", nil)
	w, _ := f.do(http.MethodGet, "/api/v1/patients/"+patient.ID.String()+"/quick-entry", "", cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data favourite.QuickEntryView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Fields, 1)
	assert.Equal(t, "2024-03-01", resp.Data.Fields[0].Latest.ReportDate.String())
	assert.Equal(t, labs.FlagNormal, resp.Data.Fields[0].Latest.Value.Flag)
}

func TestQuickEntry(t *testing.T) {
	f := newFixture(t)
	patient := &model.PatientDetail{Patient: model.Patient{ID: uuid.New()}}
	f.patients.On("Get", mock.Anything, patient.ID).Return(patient, nil)

	var saved *model.TestReport
	f.reports.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*model.TestReport) }).
		Return(nil)

	body := `{"report_date":"2024-03-01","values":{"rft.creatinine":{"value":97,"unit":"umol/L"}}}`
	w, _ := f.do(http.MethodPost, "/api/v1/patients/"+patient.ID.String()+"/quick-entry", body, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.InDelta(t, 1.097, *saved.RFT["creatinine"].Value, 0.001)
	assert.Equal(t, "mg/dL", saved.RFT["creatinine"].Unit)

	w, _ = f.do(http.MethodPost, "/api/v1/patients/"+patient.ID.String()+"/quick-entry",
		`{"report_date":"2024-03-01","values":{"rft.nope":1}}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
