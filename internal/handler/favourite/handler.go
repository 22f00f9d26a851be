package favourite

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/handler"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/service/favourite"
	"github.com/jwalitptl/patient-records/internal/service/report"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

// cookieMaxAge keeps favourites for a year of inactivity.
const cookieMaxAge = 365 * 24 * 60 * 60

type CookieConfig struct {
	Secure bool
	Path   string
}

type Handler struct {
	svc     *favourite.Service
	reports *report.Service
	cookie  CookieConfig
}

func NewHandler(svc *favourite.Service, reports *report.Service, cookie CookieConfig) *Handler {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &Handler{svc: svc, reports: reports, cookie: cookie}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	favourites := r.Group("/favourites")
	{
		favourites.GET("", h.ListFavourites)
		favourites.PUT("", h.ReplaceFavourites)
		favourites.PUT("/:field", h.AddFavourite)
		favourites.DELETE("/:field", h.RemoveFavourite)
	}

	r.GET("/patients/:id/quick-entry", h.QuickEntryView)
	r.POST("/patients/:id/quick-entry", h.QuickEntry)
}

func (h *Handler) ListFavourites(c *gin.Context) {
	httputil.OK(c, h.svc.Fields(h.current(c)))
}

func (h *Handler) AddFavourite(c *gin.Context) {
	keys, err := h.svc.Add(h.current(c), c.Param("field"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.save(c, keys)
}

func (h *Handler) RemoveFavourite(c *gin.Context) {
	h.save(c, h.svc.Remove(h.current(c), c.Param("field")))
}

func (h *Handler) ReplaceFavourites(c *gin.Context) {
	var req model.ReplaceFavouritesRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	keys, err := h.svc.Replace(req.Fields)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.save(c, keys)
}

// QuickEntryView lists the caller's favourites with the patient's latest values.
func (h *Handler) QuickEntryView(c *gin.Context) {
	patientID, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	view, err := h.svc.QuickEntry(c.Request.Context(), patientID, h.current(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, view)
}

// QuickEntry records one report from flat field values.
func (h *Handler) QuickEntry(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}
	patientID, ok := handler.ParseID(c, "id", "patient")
	if !ok {
		return
	}

	var req model.QuickEntryRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.reports.QuickEntry(c.Request.Context(), actor, patientID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Created(c, created)
}

func (h *Handler) current(c *gin.Context) []string {
	value, err := c.Cookie(model.FavouriteCookie)
	if err != nil {
		return []string{}
	}
	return h.svc.Decode(value)
}

func (h *Handler) save(c *gin.Context, keys []string) {
	value, err := h.svc.Encode(keys)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(model.FavouriteCookie, value, cookieMaxAge, h.cookie.Path, "", h.cookie.Secure, true)
	httputil.OK(c, h.svc.Fields(keys))
}
