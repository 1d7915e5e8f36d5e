package utilities

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"actpath-backend/internal/model"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// AuthMiddleware ensures each request is authenticated
func AuthMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header must be a bearer token"})
			return
		}

		claims, err := issuer.ValidateToken(tokenStr, false)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		// Store claims in context for later use
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// CurrentUser returns the identity stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (uint, model.Role, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return 0, "", false
	}
	userID, ok := id.(uint)
	if !ok {
		return 0, "", false
	}
	role, _ := c.Get(ContextRole)
	r, _ := role.(model.Role)
	return userID, r, true
}
