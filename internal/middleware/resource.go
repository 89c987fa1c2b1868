package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/constants"
	apierrors "github.com/yukikurage/circuit/internal/errors"
)

// RequireProjectID parses the ":id" path parameter of project routes.
// Access to the project itself is decided by the project service.
func RequireProjectID() gin.HandlerFunc {
	return requireIDParam("id", constants.ContextKeyProject, "Invalid project ID")
}

// RequireTaskID parses the ":id" path parameter of task routes.
func RequireTaskID() gin.HandlerFunc {
	return requireIDParam("id", constants.ContextKeyTask, "Invalid task ID")
}

func requireIDParam(param, key, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param(param), 10, 64)
		if err != nil || id == 0 {
			apierrors.BadRequest(c, message)
			c.Abort()
			return
		}

		c.Set(key, id)
		c.Next()
	}
}

// GetProjectID returns the id stored by RequireProjectID.
func GetProjectID(c *gin.Context) (uint64, bool) {
	return contextID(c, constants.ContextKeyProject)
}

// GetTaskID returns the id stored by RequireTaskID.
func GetTaskID(c *gin.Context) (uint64, bool) {
	return contextID(c, constants.ContextKeyTask)
}

func contextID(c *gin.Context, key string) (uint64, bool) {
	value, exists := c.Get(key)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok
}
