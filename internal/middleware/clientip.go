package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/services"
)

const ctxClientIPKey = "clientIP"

// ClientIP returns the visitor address resolved from forwarding headers,
// memoised on the request context.
func ClientIP(c *gin.Context) string {
	if cached, ok := c.Get(ctxClientIPKey); ok {
		if ip, ok := cached.(string); ok {
			return ip
		}
	}
	ip := services.ResolveClientIP(c.Request.Header, c.Request.RemoteAddr)
	c.Set(ctxClientIPKey, ip)
	return ip
}
