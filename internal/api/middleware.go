package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"swish-forms/internal/nonce"

	"github.com/gin-gonic/gin"
)

// AdminAction is the nonce action guarding admin requests.
const AdminAction = "swish_forms_admin"

// CORS mirrors the dashboard's permissive cross-origin policy.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, X-Swish-Nonce, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequireAdmin accepts requests carrying the admin bearer token. An empty
// token disables the admin surface.
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(bearer)), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"data":    gin.H{"message": "You do not have permission to do this."},
			})
			return
		}
		c.Next()
	}
}

// RequireAdminNonce checks the X-Swish-Nonce header.
func RequireAdminNonce(nonces *nonce.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !nonces.Verify(c.GetHeader("X-Swish-Nonce"), AdminAction) {
			c.Error(ErrInvalidNonce)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"data":    gin.H{"message": invalidNonceMessage},
			})
			return
		}
		c.Next()
	}
}
