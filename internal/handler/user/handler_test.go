package user

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/repository/mocks"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	"github.com/jwalitptl/patient-records/internal/service/user"
	"github.com/jwalitptl/patient-records/pkg/httputil"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/security"
)

type nopMailer struct{}

func (nopMailer) SendWelcome(context.Context, string, string) error { return nil }

type fixture struct {
	router *gin.Engine
	users  *mocks.UserRepository
	actor  *model.Principal
}

func newFixture(role string) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		users: &mocks.UserRepository{},
		actor: &model.Principal{UserID: uuid.New(), Role: role},
	}

	log := logger.NewLogger(&logger.Config{Output: io.Discard})
	audits := &mocks.AuditRepository{}
	audits.On("Create", mock.Anything, mock.Anything).Return(nil)
	svc := user.NewService(f.users, security.NewBcryptHasher(bcrypt.MinCost), nopMailer{}, audit.NewService(audits, log), log)

	f.router = gin.New()
	api := f.router.Group("/api/v1", func(c *gin.Context) {
		c.Set(middleware.ContextPrincipal, f.actor)
	})
	NewHandler(svc).RegisterRoutes(api)
	return f
}

func (f *fixture) do(method, path, body string) (*httptest.ResponseRecorder, httputil.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp httputil.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestCreateUser(t *testing.T) {
	f := newFixture(model.RoleAdmin)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Email == "nurse@clinic.local" && u.Role == model.RoleStaff
	})).Return(nil)

	w, resp := f.do(http.MethodPost, "/api/v1/users",
		`{"email":"nurse@clinic.local","name":"Nurse Joy","password":"initial-pass","role":"staff"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Nurse Joy", data["name"])
	assert.NotContains(t, w.Body.String(), "password")
}

func TestCreateUser_Rejects(t *testing.T) {
	tests := []struct {
		name string
		role string
		body string
		code int
	}{
		{"staff caller", model.RoleStaff, `{"email":"a@clinic.local","name":"A","password":"initial-pass","role":"staff"}`, http.StatusForbidden},
		{"bad email", model.RoleAdmin, `{"email":"nope","name":"A","password":"initial-pass","role":"staff"}`, http.StatusBadRequest},
		{"short password", model.RoleAdmin, `{"email":"a@clinic.local","name":"A","password":"short","role":"staff"}`, http.StatusBadRequest},
		{"unknown role", model.RoleAdmin, `{"email":"a@clinic.local","name":"A","password":"initial-pass","role":"root"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.role)
			w, _ := f.do(http.MethodPost, "/api/v1/users", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestListUsers(t *testing.T) {
	f := newFixture(model.RoleAdmin)
	f.users.On("List", mock.Anything, mock.MatchedBy(func(filter *model.UserFilter) bool {
		return filter.Status == model.UserStatusActive && filter.Page == 1 && filter.PageSize == 20
	})).Return([]*model.User{{ID: uuid.New(), Email: "a@clinic.local"}}, 1, nil)

	w, resp := f.do(http.MethodGet, "/api/v1/users?status=active", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 1, resp.Pagination.Total)
	assert.Len(t, resp.Data.([]interface{}), 1)
}

func TestListUsers_BadFilter(t *testing.T) {
	f := newFixture(model.RoleAdmin)

	for _, q := range []string{"?status=deleted", "?role=owner", "?page_size=500"} {
		w, _ := f.do(http.MethodGet, "/api/v1/users"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(model.RoleAdmin)
	id := uuid.New()
	before := &model.User{ID: id, Status: model.UserStatusActive}
	after := &model.User{ID: id, Status: model.UserStatusInactive}
	f.users.On("Get", mock.Anything, id).Return(before, nil).Once()
	f.users.On("UpdateStatus", mock.Anything, id, model.UserStatusInactive).Return(nil)
	f.users.On("Get", mock.Anything, id).Return(after, nil).Once()

	w, resp := f.do(http.MethodPut, "/api/v1/users/"+id.String()+"/status", `{"status":"inactive"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.UserStatusInactive, resp.Data.(map[string]interface{})["status"])
}

func TestUpdateStatus_Self(t *testing.T) {
	f := newFixture(model.RoleAdmin)

	w, _ := f.do(http.MethodPut, "/api/v1/users/"+f.actor.UserID.String()+"/status", `{"status":"inactive"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.users.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}
