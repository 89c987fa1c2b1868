package models

import (
	"math"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusBlocked:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type AssigneeState string

const (
	AssigneeAssigned   AssigneeState = "assigned"
	AssigneeInProgress AssigneeState = "in-progress"
	AssigneeCompleted  AssigneeState = "completed"
)

func (s AssigneeState) Valid() bool {
	switch s {
	case AssigneeAssigned, AssigneeInProgress, AssigneeCompleted:
		return true
	}
	return false
}

type DependencyType string

const (
	DependencyBlocks    DependencyType = "blocks"
	DependencyBlockedBy DependencyType = "blocked-by"
	DependencyRelatesTo DependencyType = "relates-to"
)

func (t DependencyType) Valid() bool {
	switch t {
	case DependencyBlocks, DependencyBlockedBy, DependencyRelatesTo:
		return true
	}
	return false
}

// Task rows form a flat table; nesting is expressed through ParentTaskID only.
type Task struct {
	ID             uint64     `gorm:"primarykey" json:"id"`
	Title          string     `gorm:"type:varchar(255);not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	Status         TaskStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	StartDate      *time.Time `json:"start_date"`
	DueDate        *time.Time `json:"due_date"`
	Priority       Priority   `gorm:"type:varchar(20);not null;default:'medium'" json:"priority"`
	Progress       int        `gorm:"not null;default:0" json:"progress"`
	EstimatedHours float64    `json:"estimated_hours"`
	ActualHours    float64    `json:"actual_hours"`
	ProjectID      uint64     `gorm:"not null;index" json:"project_id"`
	ParentTaskID   *uint64    `gorm:"index" json:"parent_task_id"`
	AssignedByID   uint64     `json:"assigned_by_id"`
	CreatedByID    uint64     `gorm:"not null;index" json:"created_by_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Relations
	Checklist    []ChecklistItem  `gorm:"foreignKey:TaskID" json:"checklist,omitempty"`
	Assignees    []TaskAssignee   `gorm:"foreignKey:TaskID" json:"assignees,omitempty"`
	Dependencies []TaskDependency `gorm:"foreignKey:TaskID" json:"dependencies,omitempty"`
	Attachments  []Attachment     `gorm:"foreignKey:TaskID" json:"attachments,omitempty"`
	ActivityLog  []ActivityEntry  `gorm:"foreignKey:TaskID" json:"activity_log,omitempty"`
	Tickets      []Ticket         `gorm:"foreignKey:TaskID" json:"tickets,omitempty"`
	Subtasks     []Task           `gorm:"foreignKey:ParentTaskID" json:"subtasks,omitempty"`
}

// BeforeSave derives progress from the loaded checklist.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	if progress, ok := ChecklistProgress(t.Checklist); ok {
		t.Progress = progress
	}
	return nil
}

// IsAssignee reports whether userID is among the loaded assignees.
func (t *Task) IsAssignee(userID uint64) bool {
	for _, assignee := range t.Assignees {
		if assignee.UserID == userID {
			return true
		}
	}
	return false
}

// ChecklistProgress returns round(100 * completed / total). ok is false for an empty checklist,
// in which case the last explicit progress stands.
func ChecklistProgress(items []ChecklistItem) (progress int, ok bool) {
	if len(items) == 0 {
		return 0, false
	}
	completed := 0
	for _, item := range items {
		if item.IsCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(items)))), true
}

type ChecklistItem struct {
	ID            uint64     `gorm:"primarykey" json:"id"`
	TaskID        uint64     `gorm:"not null;index" json:"task_id"`
	Position      int        `gorm:"not null;default:0" json:"position"`
	Item          string     `gorm:"type:varchar(500);not null" json:"item"`
	IsCompleted   bool       `gorm:"not null;default:false" json:"is_completed"`
	CompletedByID *uint64    `json:"completed_by_id"`
	CompletedAt   *time.Time `json:"completed_at"`
}

type TaskAssignee struct {
	TaskID    uint64        `gorm:"primarykey" json:"task_id"`
	UserID    uint64        `gorm:"primarykey" json:"user_id"`
	State     AssigneeState `gorm:"type:varchar(20);not null;default:'assigned'" json:"state"`
	CreatedAt time.Time     `json:"created_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

type TaskDependency struct {
	ID          uint64         `gorm:"primarykey" json:"id"`
	TaskID      uint64         `gorm:"not null;index" json:"task_id"`
	DependsOnID uint64         `gorm:"not null" json:"depends_on_id"`
	Type        DependencyType `gorm:"type:varchar(20);not null" json:"type"`
}

type Attachment struct {
	ID           uint64    `gorm:"primarykey" json:"id"`
	TaskID       uint64    `gorm:"not null;index" json:"task_id"`
	FileName     string    `gorm:"type:varchar(255);not null" json:"file_name"`
	URL          string    `gorm:"type:varchar(1024);not null" json:"url"`
	UploadedByID uint64    `json:"uploaded_by_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type ActivityEntry struct {
	ID        uint64         `gorm:"primarykey" json:"id"`
	TaskID    uint64         `gorm:"not null;index" json:"task_id"`
	ActorID   uint64         `gorm:"not null" json:"actor_id"`
	Action    string         `gorm:"type:varchar(50);not null" json:"action"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}
