package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/handler"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/service/patient"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

type Handler struct {
	svc *patient.Service
}

func NewHandler(svc *patient.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/by-number/:clinicNumber", h.GetPatientByNumber)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), h.DeletePatient)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}

	var req model.CreatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.svc.CreatePatient(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Created(c, created)
}

func (h *Handler) GetPatient(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	p, err := h.svc.GetPatient(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, p)
}

func (h *Handler) GetPatientByNumber(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}

	p, err := h.svc.GetPatientByClinicNumber(c.Request.Context(), actor, c.Param("clinicNumber"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, p)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	updated, err := h.svc.UpdatePatient(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, updated)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	if err := h.svc.DeletePatient(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Message(c, "patient deleted")
}

func (h *Handler) ListPatients(c *gin.Context) {
	var filter model.PatientFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	patients, total, err := h.svc.ListPatients(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Paginated(c, patients, filter.Page, filter.PageSize, total)
}
