package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/dto"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/utils"
)

// UserHandler serves the user directory and account administration.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// ListUsers returns a page of users, optionally filtered by role, state or a search term.
func (h *UserHandler) ListUsers(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type ListUsersQuery struct {
		Role   *models.UserRole     `form:"role" binding:"omitempty,oneof=member manager admin"`
		State  *models.ProfileState `form:"profile_state" binding:"omitempty,oneof=active inactive banned"`
		Search string               `form:"search"`
	}

	var query ListUsersQuery
	if !bindQuery(c, &query) {
		return
	}
	params := utils.GetPaginationParams(c)

	users, total, err := h.userService.List(c.Request.Context(), caller, services.ListUsersInput{
		Role:     query.Role,
		State:    query.State,
		Search:   query.Search,
		Page:     params.Page,
		PageSize: params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserListResponse(users, params.Page, params.Limit, total))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	user, err := h.userService.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// CreateUser adds an account with any role. Admin only.
func (h *UserHandler) CreateUser(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type CreateUserRequest struct {
		profileRequest
		Email    string          `json:"email" binding:"required,email"`
		Password string          `json:"password" binding:"omitempty,max=72"`
		Role     models.UserRole `json:"role" binding:"omitempty,oneof=member manager admin"`
	}

	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	user, temporary, err := h.userService.Create(c.Request.Context(), caller, services.CreateUserInput{
		Email:        req.Email,
		Password:     req.Password,
		Name:         name,
		Role:         req.Role,
		ProfileInput: req.input(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreatedUserResponse{
		User:              dto.ToUserDTO(*user),
		TemporaryPassword: temporary,
	})
}

// UpdateUser edits another account's role, state or profile.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	type UpdateUserRequest struct {
		profileRequest
		Role         *models.UserRole     `json:"role" binding:"omitempty,oneof=member manager admin"`
		ProfileState *models.ProfileState `json:"profile_state" binding:"omitempty,oneof=active inactive banned"`
	}

	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Update(c.Request.Context(), caller, id, services.UpdateUserInput{
		ProfileInput: req.input(),
		Role:         req.Role,
		ProfileState: req.ProfileState,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.userService.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
