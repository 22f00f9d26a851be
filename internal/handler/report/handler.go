package report

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/handler"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/service/report"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

type Handler struct {
	svc *report.Service
}

func NewHandler(svc *report.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients/:id")
	{
		patients.POST("/reports", h.CreateReport)
		patients.GET("/reports", h.ListPatientReports)
		patients.GET("/fields/:field/history", h.FieldHistory)
	}

	reports := r.Group("/reports")
	{
		reports.GET("", h.SearchReports)
		reports.GET("/:id", h.GetReport)
		reports.PUT("/:id", h.UpdateReport)
		reports.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), h.DeleteReport)
	}
}

func (h *Handler) CreateReport(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	patientID, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	var req model.ReportPayload
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.svc.CreateReport(c.Request.Context(), actor, patientID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Created(c, created)
}

func (h *Handler) ListPatientReports(c *gin.Context) {
	patientID, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	var filter model.ReportFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	reports, total, err := h.svc.ListPatientReports(c.Request.Context(), patientID, &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Paginated(c, reports, filter.Page, filter.PageSize, total)
}

func (h *Handler) FieldHistory(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	patientID, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	history, err := h.svc.History(c.Request.Context(), actor, patientID, c.Param("field"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, history)
}

func (h *Handler) SearchReports(c *gin.Context) {
	var filter model.ReportFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	reports, total, err := h.svc.SearchReports(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Paginated(c, reports, filter.Page, filter.PageSize, total)
}

func (h *Handler) GetReport(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id", "report")
	if !ok {
		return
	}

	rep, err := h.svc.GetReport(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, rep)
}

func (h *Handler) UpdateReport(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id", "report")
	if !ok {
		return
	}

	var req model.ReportPayload
	if !handler.BindJSON(c, &req) {
		return
	}

	updated, err := h.svc.UpdateReport(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, updated)
}

func (h *Handler) DeleteReport(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id", "report")
	if !ok {
		return
	}

	if err := h.svc.DeleteReport(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Message(c, "report deleted")
}
