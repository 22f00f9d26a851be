package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/handler"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/service/auth"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the routes reachable without a token.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/logout", h.Logout)
		auth.GET("/me", h.Me)
		auth.PUT("/password", h.ChangePassword)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), &req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, tokens)
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req model.RefreshTokenRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, tokens)
}

func (h *Handler) Logout(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}

	// The refresh token is optional; an empty or missing body only revokes
	// the access token.
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if c.Request.ContentLength > 0 {
		if !handler.BindJSON(c, &req) {
			return
		}
	}

	if err := h.svc.Logout(c.Request.Context(), actor, req.RefreshToken); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Message(c, "logged out")
}

func (h *Handler) Me(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}

	user, err := h.svc.Me(c.Request.Context(), actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.OK(c, user)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	actor, ok := handler.Principal(c)
	if !ok {
		return
	}

	var req model.ChangePasswordRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), actor, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.Message(c, "password changed")
}
