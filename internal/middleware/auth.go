package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/constants"
	apierrors "github.com/yukikurage/circuit/internal/errors"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/services"
)

// CallerResolver turns a session user id or a bearer token into a Caller.
type CallerResolver interface {
	ParseToken(token string) (uint64, error)
	ResolveCaller(ctx context.Context, userID uint64) (services.Caller, error)
}

// RequireAuth resolves the caller from the session cookie or from an
// "Authorization: Bearer" header. A bearer header takes precedence.
func RequireAuth(resolver CallerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := bearerUserID(c, resolver)
		if !ok {
			if c.IsAborted() {
				return
			}
			userID, ok = sessionUserID(c)
		}
		if !ok {
			apierrors.AbortWithError(c, http.StatusUnauthorized, apierrors.NewAPIError(apierrors.ErrCodeUnauthorized, "Authentication required"))
			return
		}

		caller, err := resolver.ResolveCaller(c.Request.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAccountInactive):
				apierrors.AbortWithError(c, http.StatusForbidden, apierrors.NewAPIError(apierrors.ErrCodeForbidden, err.Error()))
			case errors.Is(err, services.ErrUserNotFound):
				apierrors.AbortWithError(c, http.StatusUnauthorized, apierrors.NewAPIError(apierrors.ErrCodeUnauthorized, "Authentication required"))
			default:
				apierrors.AbortWithError(c, http.StatusInternalServerError, apierrors.NewAPIError(apierrors.ErrCodeInternalError, "Failed to resolve caller"))
			}
			return
		}

		// Store user ID in context for easy access in handlers
		c.Set(constants.ContextKeyUserID, caller.ID)
		c.Set(constants.ContextKeyCaller, caller)
		c.Next()
	}
}

// RequireRole lets only callers holding one of roles through. Mount after RequireAuth.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			apierrors.AbortWithError(c, http.StatusUnauthorized, apierrors.NewAPIError(apierrors.ErrCodeUnauthorized, "Authentication required"))
			return
		}
		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}
		apierrors.AbortWithError(c, http.StatusForbidden, apierrors.NewAPIError(apierrors.ErrCodeForbidden, "Access denied"))
	}
}

// GetCaller retrieves the resolved caller from context
func GetCaller(c *gin.Context) (services.Caller, bool) {
	value, exists := c.Get(constants.ContextKeyCaller)
	if !exists {
		return services.Caller{}, false
	}
	caller, ok := value.(services.Caller)
	return caller, ok
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return toUserID(userID)
}

// bearerUserID aborts with 401 when a header is present but the token is bad.
func bearerUserID(c *gin.Context, resolver CallerResolver) (uint64, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return 0, false
	}
	if !strings.HasPrefix(header, constants.BearerPrefix) {
		apierrors.AbortWithError(c, http.StatusUnauthorized, apierrors.NewAPIError(apierrors.ErrCodeUnauthorized, "Unsupported authorization scheme"))
		return 0, false
	}

	userID, err := resolver.ParseToken(strings.TrimSpace(strings.TrimPrefix(header, constants.BearerPrefix)))
	if err != nil {
		apierrors.AbortWithError(c, http.StatusUnauthorized, apierrors.NewAPIError(apierrors.ErrCodeUnauthorized, "Invalid or expired token"))
		return 0, false
	}
	return userID, true
}

func sessionUserID(c *gin.Context) (uint64, bool) {
	if _, mounted := c.Get(sessions.DefaultKey); !mounted {
		return 0, false
	}
	session := sessions.Default(c)
	return toUserID(session.Get(constants.ContextKeyUserID))
}

// toUserID accepts the integer shapes a session codec may hand back.
func toUserID(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, v != 0
	case uint:
		return uint64(v), v != 0
	case int:
		if v <= 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v <= 0 {
			return 0, false
		}
		return uint64(v), true
	case float64:
		if v <= 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
