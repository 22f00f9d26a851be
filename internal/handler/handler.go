// Package handler holds helpers shared by the HTTP handler packages.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/httputil"
	"github.com/jwalitptl/patient-records/pkg/validator"
)

// ParseID reads a UUID path parameter. On failure it writes a 400 and
// returns false.
func ParseID(c *gin.Context, param, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+resource+" ID", err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON binds and validates a JSON body, writing a 400 on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, validator.BindingError(err))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters, writing a 400 on failure.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		httputil.RespondWithError(c, validator.BindingError(err))
		return false
	}
	return true
}

// Principal returns the authenticated caller, writing a 401 when absent.
func Principal(c *gin.Context) (*model.Principal, bool) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("authentication required", nil))
		return nil, false
	}
	return p, true
}
