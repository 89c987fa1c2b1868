package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/notify"
)

// Locale carries the Accept-Language header into the request context so that
// notifications raised by the request are rendered in the caller's language.
func Locale() gin.HandlerFunc {
	return func(c *gin.Context) {
		if lang := c.GetHeader("Accept-Language"); lang != "" {
			c.Request = c.Request.WithContext(notify.WithLocale(c.Request.Context(), lang))
		}
		c.Next()
	}
}
