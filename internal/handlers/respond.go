package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/constants"
	apierrors "github.com/yukikurage/circuit/internal/errors"
	"github.com/yukikurage/circuit/internal/middleware"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/validation"
)

// respondError maps service errors to API errors. Anything unknown is attached
// to the gin context for the error reporter and answered with a bare 500.
func respondError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		apierrors.ValidationFailed(c, map[string]string{validationErr.Field: validationErr.Message})

	case errors.Is(err, services.ErrPasswordTooShort):
		apierrors.ValidationFailed(c, map[string]string{
			"password": fmt.Sprintf("password must be at least %d characters", constants.MinPasswordLength),
		})
	case errors.Is(err, services.ErrEmptyFile),
		errors.Is(err, services.ErrCannotDeleteSelf),
		errors.Is(err, services.ErrAINoTasksGenerated),
		errors.Is(err, services.ErrAINoValidTasks):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrFileTooLarge):
		apierrors.RespondWithError(c, http.StatusRequestEntityTooLarge, apierrors.NewAPIError(apierrors.ErrCodeInvalidInput, err.Error()))

	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken):
		apierrors.Unauthorized(c, err.Error())

	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrAccountInactive),
		errors.Is(err, services.ErrNotAssignee),
		errors.Is(err, services.ErrNotRecipient):
		apierrors.Forbidden(c, err.Error())

	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrParticipantNotFound),
		errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrChecklistItemNotFound),
		errors.Is(err, services.ErrTicketNotFound),
		errors.Is(err, services.ErrAttendanceNotFound),
		errors.Is(err, services.ErrFeedEntryNotFound),
		errors.Is(err, services.ErrPushTokenNotFound):
		apierrors.NotFound(c, err.Error())

	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrProjectNameTaken),
		errors.Is(err, services.ErrAlreadyParticipant),
		errors.Is(err, services.ErrAttendanceExists),
		errors.Is(err, services.ErrAttendanceDecided),
		errors.Is(err, services.ErrUserInUse):
		apierrors.Conflict(c, err.Error())

	case errors.Is(err, services.ErrStorageNotConfigured),
		errors.Is(err, services.ErrAIServiceNotConfigured):
		apierrors.ServiceUnavailable(c, err.Error())

	default:
		_ = c.Error(err)
		apierrors.InternalError(c, "")
	}
}

// bindJSON binds the body and answers 400 with translated field errors on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		apierrors.ValidationFailed(c, validation.Translate(err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		apierrors.ValidationFailed(c, validation.Translate(err))
		return false
	}
	return true
}

// currentCaller returns the caller resolved by RequireAuth, answering 401 when absent.
func currentCaller(c *gin.Context) (services.Caller, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
		return services.Caller{}, false
	}
	return caller, true
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		apierrors.BadRequest(c, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return id, true
}

// optional tells an absent field apart from an explicit null in a PATCH body.
type optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// ptr returns the value when set and not null.
func (o optional[T]) ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// cleared reports an explicit null.
func (o optional[T]) cleared() bool {
	return o.Set && o.Null
}
