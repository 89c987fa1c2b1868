package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/circuit/internal/constants"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/repository"
	"github.com/yukikurage/circuit/internal/utils"
	"gorm.io/gorm"
)

var (
	ErrUserInUse           = errors.New("user is still on a project roster")
	ErrCannotDeleteSelf    = errors.New("cannot delete your own account")
	ErrPushTokenNotFound   = errors.New("push token not found")
	ErrFailedToGenPassword = errors.New("failed to generate temporary password")
)

// UserService covers profile edits and the admin user directory.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// ProfileInput holds the profile fields a user may edit about themselves.
type ProfileInput struct {
	Name          *string
	Gender        *string
	PhoneNumber   *string
	DateOfBirth   *time.Time
	ProfileImgURL *string
}

// UpdateUserInput is the staff edit of another account.
type UpdateUserInput struct {
	ProfileInput
	Role         *models.UserRole
	ProfileState *models.ProfileState
}

// CreateUserInput is used by admins. An empty password generates a temporary one.
type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Role     models.UserRole
	ProfileInput
}

// ListUsersInput represents filters for the user directory
type ListUsersInput struct {
	Role     *models.UserRole
	State    *models.ProfileState
	Search   string
	Page     int
	PageSize int
}

// Get returns a user. Members may only read themselves.
func (s *UserService) Get(ctx context.Context, caller Caller, id uint64) (*models.User, error) {
	if !caller.IsStaff() && caller.ID != id {
		return nil, ErrForbidden
	}
	return s.find(ctx, id)
}

// List returns the user directory to managers and admins.
func (s *UserService) List(ctx context.Context, caller Caller, input ListUsersInput) ([]models.User, int64, error) {
	if !caller.IsStaff() {
		return nil, 0, ErrForbidden
	}

	users, total, err := s.userRepo.List(ctx, repository.UserFilter{
		Role:     input.Role,
		State:    input.State,
		Search:   strings.TrimSpace(input.Search),
		Page:     input.Page,
		PageSize: input.PageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// UpdateProfile edits the caller's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, caller Caller, input ProfileInput) (*models.User, error) {
	user, err := s.find(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	applyProfile(user, input)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// Create adds an account on behalf of an admin. The generated password, if any, is
// returned once and never stored in clear.
func (s *UserService) Create(ctx context.Context, caller Caller, input CreateUserInput) (*models.User, string, error) {
	if !caller.IsAdmin() {
		return nil, "", ErrForbidden
	}

	role := input.Role
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, "", invalid("role", "unknown role %q", role)
	}

	password := input.Password
	var temporary string
	if password == "" {
		generated, err := utils.GenerateTemporaryPassword(constants.TemporaryPasswordLength)
		if err != nil {
			return nil, "", ErrFailedToGenPassword
		}
		password, temporary = generated, generated
	}
	if err := checkPassword("password", password); err != nil {
		return nil, "", err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		Email:        models.NormalizeEmail(input.Email),
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Role:         role,
		ProfileState: models.ProfileActive,
	}
	applyProfile(user, input.ProfileInput)

	if err := createUser(ctx, s.userRepo, user); err != nil {
		return nil, "", err
	}
	return user, temporary, nil
}

// Update edits another account. Admins may change anything; managers may edit profile
// fields and the state of member accounts but never roles.
func (s *UserService) Update(ctx context.Context, caller Caller, id uint64, input UpdateUserInput) (*models.User, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}

	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if !caller.IsAdmin() {
		if user.Role != models.RoleMember || input.Role != nil {
			return nil, ErrForbidden
		}
	}

	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, invalid("role", "unknown role %q", *input.Role)
		}
		if user.ID == caller.ID && *input.Role != user.Role {
			return nil, invalid("role", "you cannot change your own role")
		}
		user.Role = *input.Role
	}
	if input.ProfileState != nil {
		if !input.ProfileState.Valid() {
			return nil, invalid("profile_state", "unknown profile state %q", *input.ProfileState)
		}
		if user.ID == caller.ID && *input.ProfileState != models.ProfileActive {
			return nil, invalid("profile_state", "you cannot deactivate yourself")
		}
		user.ProfileState = *input.ProfileState
	}
	applyProfile(user, input.ProfileInput)

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// Delete removes an account. Users still on a roster must be removed from it first.
func (s *UserService) Delete(ctx context.Context, caller Caller, id uint64) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	if caller.ID == id {
		return ErrCannotDeleteSelf
	}

	inUse, err := s.userRepo.IsParticipant(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check rosters: %w", err)
	}
	if inUse {
		return ErrUserInUse
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// RegisterPushToken attaches a device token to the caller.
func (s *UserService) RegisterPushToken(ctx context.Context, caller Caller, token, platform string) (*models.PushToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, invalid("token", "token is required")
	}

	pushToken := &models.PushToken{
		UserID:   caller.ID,
		Token:    token,
		Platform: strings.ToLower(strings.TrimSpace(platform)),
	}
	if err := s.userRepo.SavePushToken(ctx, pushToken); err != nil {
		return nil, fmt.Errorf("failed to save push token: %w", err)
	}
	return pushToken, nil
}

// RemovePushToken detaches one of the caller's device tokens.
func (s *UserService) RemovePushToken(ctx context.Context, caller Caller, token string) error {
	if err := s.userRepo.DeletePushToken(ctx, caller.ID, token); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPushTokenNotFound
		}
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}

func (s *UserService) find(ctx context.Context, id uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func applyProfile(user *models.User, input ProfileInput) {
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Gender != nil {
		user.Gender = strings.TrimSpace(*input.Gender)
	}
	if input.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*input.PhoneNumber)
	}
	if input.DateOfBirth != nil {
		user.DateOfBirth = input.DateOfBirth
	}
	if input.ProfileImgURL != nil {
		user.ProfileImgURL = strings.TrimSpace(*input.ProfileImgURL)
	}
}
