package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bakery-system/internal/utils"
)

// JWTAuth guards staff routes. The VNPay callback and webhook stay public
// because the gateway cannot carry a bearer token.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authorization token required",
			})
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set("employee_id", claims.EmployeeId)
		c.Set("username", claims.Username)
		c.Next()
	}
}
