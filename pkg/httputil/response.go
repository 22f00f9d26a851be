package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patient-records/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses
type Response struct {
	Status     string              `json:"status"`
	Message    string              `json:"message,omitempty"`
	Data       interface{}         `json:"data,omitempty"`
	Errors     []errors.FieldError `json:"errors,omitempty"`
	Pagination *Pagination         `json:"pagination,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPagination(page, pageSize, total int) *Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return &Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// OK sends a 200 success response
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: StatusSuccess, Data: data})
}

// Created sends a 201 success response
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Status: StatusSuccess, Data: data})
}

// Message sends a 200 response with only a message
func Message(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{Status: StatusSuccess, Message: message})
}

// Paginated sends a list together with its pagination metadata
func Paginated(c *gin.Context, data interface{}, page, pageSize, total int) {
	c.JSON(http.StatusOK, Response{
		Status:     StatusSuccess,
		Data:       data,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// RespondWithError sends an error response, translating AppErrors to their status
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Status:  StatusError,
		Message: appErr.Message,
		Errors:  appErr.Fields,
	})
}

// Abort sends an error envelope with an explicit status
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Status: StatusError, Message: message})
}
