package services

import "github.com/yukikurage/circuit/internal/models"

// Caller is the authenticated requester, resolved once per request from either the
// session cookie or a bearer token.
type Caller struct {
	ID    uint64
	Email string
	Name  string
	Role  models.UserRole
}

// CallerFromUser builds the Caller of an authenticated user.
func CallerFromUser(user *models.User) Caller {
	return Caller{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// IsStaff reports whether the caller is a manager or an admin.
func (c Caller) IsStaff() bool {
	return c.Role.IsStaff()
}

// DisplayName is used in notification text.
func (c Caller) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}
