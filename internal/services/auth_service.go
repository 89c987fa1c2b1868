package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yukikurage/circuit/internal/constants"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrPasswordTooShort     = errors.New("password too short")
	ErrUserNotFound         = errors.New("user not found")
	ErrAccountInactive      = errors.New("account is not active")
	ErrFailedToHashPassword = errors.New("failed to hash password")
)

// AuthService handles authentication related business logic.
type AuthService struct {
	userRepo repository.UserRepository
	tokens   *TokenService
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.UserRepository, tokens *TokenService) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// SignupInput represents the required information to create a new user.
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// Signup creates an active member account.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	email := models.NormalizeEmail(input.Email)
	if email == "" {
		return nil, invalid("email", "email is required")
	}
	if err := checkPassword("password", input.Password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Role:         models.RoleMember,
		ProfileState: models.ProfileActive,
	}

	if err := createUser(ctx, s.userRepo, user); err != nil {
		return nil, err
	}

	return user, nil
}

// LoginInput holds the credentials for authentication.
type LoginInput struct {
	Email    string
	Password string
}

// Login verifies credentials and returns the authenticated user. The account state is
// checked only after the password so the response does not reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		return nil, ErrAccountInactive
	}

	return user, nil
}

// IssueToken returns a bearer token for an authenticated user.
func (s *AuthService) IssueToken(user *models.User) (string, int64, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// ParseToken returns the user id carried by a bearer token.
func (s *AuthService) ParseToken(token string) (uint64, error) {
	return s.tokens.Parse(token)
}

// ResolveCaller loads the user behind a session or token. Users that are no longer
// active are refused even when their credential is still valid.
func (s *AuthService) ResolveCaller(ctx context.Context, userID uint64) (Caller, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return Caller{}, err
	}
	if !user.IsActive() {
		return Caller{}, ErrAccountInactive
	}
	return CallerFromUser(user), nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, caller Caller, current, next string) error {
	user, err := s.GetUser(ctx, caller.ID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if err := checkPassword("new_password", next); err != nil {
		return err
	}

	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// checkPassword enforces the length bounds. The upper bound is bcrypt's, which
// rejects longer input instead of truncating it.
func checkPassword(field, password string) error {
	if len(password) < constants.MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > constants.MaxPasswordLength {
		return invalid(field, "password must be at most %d bytes", constants.MaxPasswordLength)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", ErrFailedToHashPassword
	}
	return string(hashed), nil
}

// createUser inserts user, turning a unique index violation into ErrEmailTaken.
func createUser(ctx context.Context, repo repository.UserRepository, user *models.User) error {
	if _, err := repo.FindByEmail(ctx, user.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	if err := repo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
