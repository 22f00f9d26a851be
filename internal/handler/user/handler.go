package user

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/handler"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/service/user"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

type Handler struct {
	svc *user.Service
}

func NewHandler(svc *user.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users", middleware.RequireRole(model.RoleAdmin))
	{
		users.POST("", h.CreateUser)
		users.GET("", h.ListUsers)
		users.PUT("/:id/status", h.UpdateStatus)
	}
}

func (h *Handler) CreateUser(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}

	var req model.CreateUserRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.svc.CreateUser(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Created(c, created)
}

func (h *Handler) ListUsers(c *gin.Context) {
	var filter model.UserFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	users, total, err := h.svc.ListUsers(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Paginated(c, users, filter.Page, filter.PageSize, total)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id", "user")
	if !ok {
		return
	}

	var req model.UpdateUserStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	updated, err := h.svc.UpdateStatus(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, updated)
}
