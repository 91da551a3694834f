package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mkrajcovic/blog-backend/internal/localization"
	"github.com/mkrajcovic/blog-backend/internal/models"
	"github.com/mkrajcovic/blog-backend/utils"
)

const (
	ctxUserID = "userId"
	ctxRole   = "role"
)

// AuthMiddleware validates the Bearer token and stores the caller's id and
// role in the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		dict := localization.FromContext(c.Request.Context())

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
			c.Abort()
			return
		}

		claims, err := utils.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RoleMiddleware rejects callers whose role is not in the allowed set.
func RoleMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		dict := localization.FromContext(c.Request.Context())

		role, exists := c.Get(ctxRole)
		if !exists {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
			c.Abort()
			return
		}

		userRole := models.Role(role.(string))
		for _, r := range allowedRoles {
			if userRole == r {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
		c.Abort()
	}
}

// UserID returns the authenticated caller's id from the request context.
func UserID(c *gin.Context) (primitive.ObjectID, bool) {
	raw, exists := c.Get(ctxUserID)
	if !exists {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(raw.(string))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// Role returns the authenticated caller's role from the request context.
func Role(c *gin.Context) models.Role {
	raw, exists := c.Get(ctxRole)
	if !exists {
		return ""
	}
	return models.Role(raw.(string))
}
