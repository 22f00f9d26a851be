package audit

import (
	"encoding/csv"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/handler"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/service/audit"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

// maxExportRows caps a single CSV export.
const maxExportRows = 10000

type Handler struct {
	svc *audit.Service
}

func NewHandler(svc *audit.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit", middleware.RequireRole(model.RoleAdmin))
	{
		audit.GET("", h.ListLogs)
		audit.GET("/export", h.ExportLogs)
	}
}

func (h *Handler) ListLogs(c *gin.Context) {
	var filter model.AuditFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	logs, total, err := h.svc.List(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Paginated(c, logs, filter.Page, filter.PageSize, total)
}

// ExportLogs streams every matching row as CSV, newest first.
func (h *Handler) ExportLogs(c *gin.Context) {
	var filter model.AuditFilter
	if !handler.BindQuery(c, &filter) {
		return
	}
	filter.Page = 1
	filter.PageSize = model.MaxPageSize

	// Load the first page before writing headers so errors still get a JSON envelope.
	logs, total, err := h.svc.List(c.Request.Context(), &filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-%s.csv"`, time.Now().UTC().Format("20060102")))

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "created_at", "user_id", "action", "entity_type", "entity_id", "ip_address", "user_agent", "changes"})

	written := 0
	for {
		for _, l := range logs {
			_ = w.Write(row(l))
		}
		written += len(logs)
		if len(logs) < filter.PageSize || written >= total || written >= maxExportRows {
			break
		}

		filter.Page++
		logs, _, err = h.svc.List(c.Request.Context(), &filter)
		if err != nil {
			c.Error(err)
			break
		}
	}
	w.Flush()
}

func row(l *model.AuditLog) []string {
	userID, entityID := "", ""
	if l.UserID != nil {
		userID = l.UserID.String()
	}
	if l.EntityID != nil {
		entityID = l.EntityID.String()
	}
	return []string{
		l.ID.String(),
		l.CreatedAt.UTC().Format(time.RFC3339),
		userID,
		l.Action,
		l.EntityType,
		entityID,
		l.IPAddress,
		l.UserAgent,
		string(l.Changes),
	}
}
