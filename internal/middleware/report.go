package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/logger"
)

// ReportErrors forwards errors attached by handlers to the logger, tagged with the
// request route and the caller when one was resolved.
func ReportErrors(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		args := []any{map[string]any{
			"method": c.Request.Method,
			"route":  c.FullPath(),
			"status": c.Writer.Status(),
		}}
		if caller, ok := GetCaller(c); ok {
			args = append(args, logger.Person{ID: caller.ID, Email: caller.Email})
		}
		for _, err := range c.Errors {
			log.Error(err.Error(), args...)
		}
	}
}
