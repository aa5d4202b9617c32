package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	corsAllowHeaders = strings.Join([]string{
		"Authorization", "Content-Type", "Accept", "Origin", "Cache-Control", "X-Requested-With",
		"X-BFP", "X-SPA", "X-C-V", "X-C-T",
	}, ", ")
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
)

// CORSMiddleware allows the configured origin. "*" reflects the caller's
// Origin because browsers refuse a wildcard on credentialed requests.
// Preflight requests end here with 204.
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	reflect := allowedOrigin == "" || allowedOrigin == "*"
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := allowedOrigin
		if reflect {
			origin = "*"
			if o := c.GetHeader("Origin"); o != "" {
				origin = o
			}
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Expose-Headers", "X-C-T")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
