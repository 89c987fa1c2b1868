package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleMember  UserRole = "member"
	RoleManager UserRole = "manager"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether r is a known global role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleMember, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r is manager or admin.
func (r UserRole) IsStaff() bool {
	return r == RoleManager || r == RoleAdmin
}

type ProfileState string

const (
	ProfileActive   ProfileState = "active"
	ProfileInactive ProfileState = "inactive"
	ProfileBanned   ProfileState = "banned"
)

func (s ProfileState) Valid() bool {
	switch s {
	case ProfileActive, ProfileInactive, ProfileBanned:
		return true
	}
	return false
}

type User struct {
	ID            uint64       `gorm:"primarykey" json:"id"`
	Email         string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash  string       `gorm:"type:varchar(255);not null" json:"-"`
	Name          string       `gorm:"type:varchar(255)" json:"name"`
	Gender        string       `gorm:"type:varchar(20)" json:"gender"`
	Role          UserRole     `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	PhoneNumber   string       `gorm:"type:varchar(40)" json:"phone_number"`
	DateOfBirth   *time.Time   `json:"date_of_birth"`
	ProfileState  ProfileState `gorm:"type:varchar(20);not null;default:'active'" json:"profile_state"`
	ProfileImgURL string       `gorm:"type:varchar(1024)" json:"profile_img_url"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// Relations
	PushTokens []PushToken `gorm:"foreignKey:UserID" json:"-"`
}

// BeforeSave keeps the email unique index case-insensitive.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// IsActive reports whether the user may authenticate.
func (u *User) IsActive() bool {
	return u.ProfileState == ProfileActive
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PushToken is a device token registered for push delivery.
type PushToken struct {
	ID        uint64    `gorm:"primarykey" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	Platform  string    `gorm:"type:varchar(20)" json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}
