package labs

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/handler"
	"github.com/jwalitptl/patient-records/internal/labs"
	"github.com/jwalitptl/patient-records/internal/model"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

// Handler exposes the field catalogue and the clinical calculators.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	calc := r.Group("/labs")
	{
		calc.GET("/fields", h.ListFields)
		calc.GET("/convert", h.Convert)
		calc.POST("/basdai", h.BASDAI)
		calc.POST("/egfr", h.EGFR)
		calc.POST("/bmi", h.BMI)
	}
}

type convertQuery struct {
	Analyte string   `form:"analyte" binding:"required"`
	Value   *float64 `form:"value" binding:"required"`
	From    string   `form:"from" binding:"required"`
	To      string   `form:"to" binding:"required"`
}

type basdaiRequest struct {
	Answers []float64 `json:"answers" binding:"required,len=6,dive,gte=0,lte=10"`
}

type egfrRequest struct {
	Creatinine float64 `json:"creatinine" binding:"required,gt=0"`
	Unit       string  `json:"unit"`
	Age        int     `json:"age" binding:"required,gte=18,lte=130"`
	Sex        string  `json:"sex" binding:"required,oneof=male female"`
}

type bmiRequest struct {
	WeightKg float64 `json:"weight_kg" binding:"required,gt=0"`
	HeightCm float64 `json:"height_cm" binding:"required,gt=0"`
}

// ListFields returns the catalogue, optionally restricted to one domain.
func (h *Handler) ListFields(c *gin.Context) {
	d := c.Query("domain")
	if d == "" {
		httputil.OK(c, labs.Catalogue())
		return
	}

	domain, ok := model.ParseDomain(d)
	if !ok {
		httputil.RespondWithError(c, apperrors.BadRequest("unknown domain", nil))
		return
	}
	httputil.OK(c, labs.DomainFields(domain))
}

func (h *Handler) Convert(c *gin.Context) {
	var q convertQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	value, err := labs.Convert(q.Analyte, *q.Value, q.From, q.To)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	httputil.OK(c, gin.H{
		"analyte": q.Analyte,
		"value":   labs.Round(value, 3),
		"unit":    q.To,
		"input":   gin.H{"value": *q.Value, "unit": q.From},
	})
}

func (h *Handler) BASDAI(c *gin.Context) {
	var req basdaiRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	res, err := labs.BASDAI(req.Answers)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	httputil.OK(c, res)
}

func (h *Handler) EGFR(c *gin.Context) {
	var req egfrRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	creatinine := req.Creatinine
	if req.Unit != "" {
		v, _, err := labs.ToCanonical(labs.AnalyteCreatinine, creatinine, req.Unit)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
			return
		}
		creatinine = v
	}

	egfr, err := labs.EGFR(creatinine, req.Age, req.Sex)
	if err != nil {
		if errors.Is(err, labs.ErrEGFRInputs) {
			httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, gin.H{
		"egfr":       egfr,
		"unit":       "mL/min/1.73m²",
		"creatinine": labs.Round(creatinine, 3),
	})
}

func (h *Handler) BMI(c *gin.Context) {
	var req bmiRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	bmi, err := labs.BMI(req.WeightKg, req.HeightCm)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
		return
	}

	httputil.OK(c, gin.H{"bmi": bmi, "unit": "kg/m²"})
}
