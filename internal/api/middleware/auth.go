package middleware

import (
	"errors"
	"net/http"

	"expense-service/internal/auth"
	"expense-service/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

type AuthMiddleware struct {
	verifier auth.TokenVerifier
}

func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "authorization header is required",
			})
			return
		}

		identity, err := am.verifier.Verify(token)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, auth.ErrInvalidSubject) {
				message = "invalid user ID in token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: message,
			})
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextEmail, identity.Email)
		c.Set(ContextRole, identity.Role)
		c.Next()
	}
}

// RequireService admits only service-role tokens. It must run after
// RequireAuth.
func (am *AuthMiddleware) RequireService() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != auth.RoleService {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Code:    http.StatusForbidden,
				Message: "service credentials required",
			})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id set by RequireAuth, or "".
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
