package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patient-records/internal/model"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/httputil"
)

const (
	ContextPrincipal = "principal"
	ContextUserID    = "user_id"
)

// Authenticator resolves a bearer token to its caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Authenticate verifies the bearer token and stores the caller in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("invalid authorization format", nil))
			return
		}

		principal, err := m.auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		principal.IPAddress = c.ClientIP()
		principal.UserAgent = c.Request.UserAgent()
		c.Set(ContextPrincipal, principal)
		c.Set(ContextUserID, principal.UserID.String())
		c.Next()
	}
}

// RequireRole lets only callers holding one of roles through
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized("authentication required", nil))
			return
		}
		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden("insufficient permissions"))
	}
}

// CurrentPrincipal returns the caller stored by Authenticate.
func CurrentPrincipal(c *gin.Context) (*model.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*model.Principal)
	return p, ok && p != nil
}
