package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"expertresume/internal/auth"
	"expertresume/internal/database"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware validates the access token and puts userID into the
// request context.
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil || claims.TokenType != "access" {
			abortUnauthorized(c)
			return
		}

		c.Set("userID", claims.UserID)
		c.Next()
	}
}

// AdminMiddleware runs after AuthMiddleware and loads the user row to
// check the admin capability. A valid token without the capability
// gets 403, a missing user gets 401.
func AdminMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get("userID")
		if !ok {
			abortUnauthorized(c)
			return
		}
		userID, ok := value.(uint)
		if !ok {
			abortUnauthorized(c)
			return
		}

		var user database.User
		if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			abortUnauthorized(c)
			return
		}

		if !user.AgentAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Next()
	}
}
