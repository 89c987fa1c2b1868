package models

import "time"

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in-progress"
	TicketResolved   TicketStatus = "resolved"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved:
		return true
	}
	return false
}

type TicketTag string

const (
	TagBug         TicketTag = "bug"
	TagDevelopment TicketTag = "development"
	TagOther       TicketTag = "other"
)

func (t TicketTag) Valid() bool {
	switch t {
	case TagBug, TagDevelopment, TagOther:
		return true
	}
	return false
}

// Ticket is owned by its task and has no identity outside of it.
type Ticket struct {
	ID           uint64       `gorm:"primarykey" json:"id"`
	TaskID       uint64       `gorm:"not null;index" json:"task_id"`
	IssueTitle   string       `gorm:"type:varchar(255);not null" json:"issue_title"`
	Description  string       `gorm:"type:text" json:"description"`
	AssignedToID *uint64      `json:"assigned_to_id"`
	Priority     Priority     `gorm:"type:varchar(20);not null;default:'medium'" json:"priority"`
	Status       TicketStatus `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	StartDate    *time.Time   `json:"start_date"`
	DueDate      *time.Time   `json:"due_date"`
	Tag          TicketTag    `gorm:"type:varchar(20);not null;default:'other'" json:"tag"`
	Resolution   string       `gorm:"type:text" json:"resolution"`
	CreatedByID  uint64       `gorm:"not null" json:"created_by_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// Relations
	Comments []TicketComment `gorm:"foreignKey:TicketID" json:"comments,omitempty"`
}

type TicketComment struct {
	ID        uint64    `gorm:"primarykey" json:"id"`
	TicketID  uint64    `gorm:"not null;index" json:"ticket_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	AuthorID  uint64    `gorm:"not null" json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}
