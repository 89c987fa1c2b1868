package dto

import (
	"time"

	"github.com/yukikurage/circuit/internal/models"
)

// UserSummaryDTO is the short form of a user embedded in other resources
type UserSummaryDTO struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UserDTO represents a user in API responses
type UserDTO struct {
	ID            uint64              `json:"id"`
	Email         string              `json:"email"`
	Name          string              `json:"name"`
	Gender        string              `json:"gender,omitempty"`
	Role          models.UserRole     `json:"role"`
	PhoneNumber   string              `json:"phone_number,omitempty"`
	DateOfBirth   *time.Time          `json:"date_of_birth,omitempty"`
	ProfileState  models.ProfileState `json:"profile_state"`
	ProfileImgURL string              `json:"profile_img_url,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// LoginResponse carries the user plus a bearer token for clients that do not keep cookies
type LoginResponse struct {
	User      UserDTO `json:"user"`
	Token     string  `json:"token"`
	ExpiresAt int64   `json:"expires_at"`
}

// CreatedUserResponse returns a generated password exactly once
type CreatedUserResponse struct {
	User              UserDTO `json:"user"`
	TemporaryPassword string  `json:"temporary_password,omitempty"`
}

// UserListResponse represents a paginated list of users
type UserListResponse struct {
	Users      []UserDTO `json:"users"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalCount int64     `json:"total_count"`
	TotalPages int       `json:"total_pages"`
}

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Gender:        user.Gender,
		Role:          user.Role,
		PhoneNumber:   user.PhoneNumber,
		DateOfBirth:   user.DateOfBirth,
		ProfileState:  user.ProfileState,
		ProfileImgURL: user.ProfileImgURL,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

// ToUserSummaryDTO returns nil when the user was not preloaded.
func ToUserSummaryDTO(user models.User) *UserSummaryDTO {
	if user.ID == 0 {
		return nil
	}
	return &UserSummaryDTO{ID: user.ID, Email: user.Email, Name: user.Name}
}

func ToUserListResponse(users []models.User, page, pageSize int, totalCount int64) UserListResponse {
	items := make([]UserDTO, len(users))
	for i, user := range users {
		items[i] = ToUserDTO(user)
	}
	return UserListResponse{
		Users:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
	}
}

func totalPages(totalCount int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(totalCount) / pageSize
	if int(totalCount)%pageSize > 0 {
		pages++
	}
	return pages
}
