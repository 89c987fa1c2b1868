package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/constants"
	"github.com/yukikurage/circuit/internal/dto"
	apierrors "github.com/yukikurage/circuit/internal/errors"
	"github.com/yukikurage/circuit/internal/services"
)

// AuthHandler coordinates authentication-related HTTP handlers.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// Signup registers a new member account.
func (h *AuthHandler) Signup(c *gin.Context) {
	type SignupRequest struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,max=72"`
		Name     string `json:"name" binding:"required,notblank,max=255"`
	}

	var req SignupRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Signup(c.Request.Context(), services.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToUserDTO(*user))
}

// Login authenticates a user, initializes the session and returns a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	type LoginRequest struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Login(c.Request.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	token, expiresAt, err := h.authService.IssueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(constants.ContextKeyUserID, user.ID)
	if err := session.Save(); err != nil {
		apierrors.InternalError(c, "Failed to save session")
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		User:      dto.ToUserDTO(*user),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Logout removes the authentication session. Bearer tokens simply expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		apierrors.InternalError(c, "Failed to logout")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

// GetCurrentUser returns the authenticated user.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), caller.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// UpdateProfile edits the caller's own profile fields.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), caller, req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type ChangePasswordRequest struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required,max=72"`
	}

	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), caller, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password updated",
	})
}

// profileRequest is shared by the self-service and the admin user endpoints.
type profileRequest struct {
	Name          *string    `json:"name" binding:"omitempty,max=255"`
	Gender        *string    `json:"gender" binding:"omitempty,max=20"`
	PhoneNumber   *string    `json:"phone_number" binding:"omitempty,max=40"`
	DateOfBirth   *time.Time `json:"date_of_birth"`
	ProfileImgURL *string    `json:"profile_img_url" binding:"omitempty,url"`
}

func (r profileRequest) input() services.ProfileInput {
	return services.ProfileInput{
		Name:          r.Name,
		Gender:        r.Gender,
		PhoneNumber:   r.PhoneNumber,
		DateOfBirth:   r.DateOfBirth,
		ProfileImgURL: r.ProfileImgURL,
	}
}
