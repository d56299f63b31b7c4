package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKey gates administrative routes on the X-Admin-Key header. With no
// key configured the gate is open, which keeps local development friction
// free; production deployments always set ADMIN_KEY.
func AdminKey(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-Admin-Key") != required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid admin key",
				},
			})
			return
		}
		c.Next()
	}
}
