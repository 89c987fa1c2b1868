package models

import (
	"time"
)

type ProjectState string

const (
	ProjectOngoing    ProjectState = "ongoing"
	ProjectCompleted  ProjectState = "completed"
	ProjectPaused     ProjectState = "paused"
	ProjectCancelled  ProjectState = "cancelled"
	ProjectDeployment ProjectState = "deployment"
)

func (s ProjectState) Valid() bool {
	switch s {
	case ProjectOngoing, ProjectCompleted, ProjectPaused, ProjectCancelled, ProjectDeployment:
		return true
	}
	return false
}

// Responsibility is the project-level tag of a participant, distinct from the global UserRole.
type Responsibility string

const (
	ResponsibilityManager Responsibility = "project-manager"
	ResponsibilityMember  Responsibility = "project-member"
)

func (r Responsibility) Valid() bool {
	return r == ResponsibilityManager || r == ResponsibilityMember
}

type Project struct {
	ID            uint64       `gorm:"primarykey" json:"id"`
	ProjectName   string       `gorm:"type:varchar(100);uniqueIndex;not null" json:"project_name"`
	ProjectState  ProjectState `gorm:"type:varchar(20);not null;default:'ongoing'" json:"project_state"`
	ProjectDomain string       `gorm:"type:varchar(255)" json:"project_domain"`
	StartDate     time.Time    `gorm:"not null" json:"start_date"`
	EndDate       *time.Time   `json:"end_date"`
	ManagerID     uint64       `gorm:"not null;index" json:"manager_id"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// Relations
	Participants []Participant `gorm:"foreignKey:ProjectID" json:"participants,omitempty"`
}

// Participant is one roster entry. Position keeps the submitted order.
type Participant struct {
	ProjectID      uint64         `gorm:"primarykey" json:"project_id"`
	UserID         uint64         `gorm:"primarykey" json:"user_id"`
	RoleInProject  string         `gorm:"type:varchar(100)" json:"role_in_project"`
	Responsibility Responsibility `gorm:"type:varchar(20);not null" json:"responsibility"`
	Position       int            `gorm:"not null;default:0" json:"position"`
	JoinedAt       time.Time      `json:"joined_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// ManagerParticipant returns the project-manager entry of the roster, if any.
func (p *Project) ManagerParticipant() (Participant, bool) {
	for _, participant := range p.Participants {
		if participant.Responsibility == ResponsibilityManager {
			return participant, true
		}
	}
	return Participant{}, false
}

// HasParticipant reports whether userID is on the loaded roster.
func (p *Project) HasParticipant(userID uint64) bool {
	for _, participant := range p.Participants {
		if participant.UserID == userID {
			return true
		}
	}
	return false
}
