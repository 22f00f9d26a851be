package httputil

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)

	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestRespondWithError_AppError(t *testing.T) {
	w, resp := perform(func(c *gin.Context) {
		RespondWithError(c, fmt.Errorf("wrapped: %w", errors.NotFound("patient", nil)))
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "patient not found", resp.Message)
}

func TestRespondWithError_ValidationFields(t *testing.T) {
	w, resp := perform(func(c *gin.Context) {
		RespondWithError(c, errors.Invalid(errors.FieldError{Field: "name", Message: "is required"}))
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "name", resp.Errors[0].Field)
}

func TestRespondWithError_HidesInternalDetails(t *testing.T) {
	w, resp := perform(func(c *gin.Context) {
		RespondWithError(c, stderrors.New("pq: connection refused"))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", resp.Message)
}

func TestPaginated(t *testing.T) {
	w, resp := perform(func(c *gin.Context) {
		Paginated(c, []string{"a", "b"}, 2, 2, 5)
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 3, resp.Pagination.TotalPages)
	assert.Equal(t, 5, resp.Pagination.Total)
}
