package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

// CORS handles Cross-Origin Resource Sharing
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == origin {
				allowed = true
				break
			}
			if suffix, ok := strings.CutPrefix(o, "https://*"); ok && origin != "" && strings.HasSuffix(origin, suffix) {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// TenantMiddleware resolves the tenant from the auth proxy context, the
// X-Tenant-ID header, or the tenantId query parameter, in that order.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString("tenant_id")
		if tenantID == "" {
			tenantID = c.GetHeader("X-Tenant-ID")
		}
		if tenantID == "" {
			tenantID = c.Query("tenantId")
		}
		if tenantID != "" {
			c.Set("tenantId", tenantID)
		}
		c.Next()
	}
}

// RequireTenantID rejects requests without a tenant identity
func RequireTenantID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetTenantID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant ID is required"})
			return
		}
		c.Next()
	}
}

// CronAuth guards the batch trigger with a shared secret, accepted from the
// X-Cron-Secret header, a bearer token, or the secret query parameter. An
// empty configured secret rejects every call.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || !secretMatches(cronSecretFrom(c), secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func cronSecretFrom(c *gin.Context) string {
	if v := c.GetHeader("X-Cron-Secret"); v != "" {
		return v
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("secret")
}

func secretMatches(given, want string) bool {
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

// GetTenantID retrieves the tenant ID from the context
func GetTenantID(c *gin.Context) string {
	return c.GetString("tenantId")
}
