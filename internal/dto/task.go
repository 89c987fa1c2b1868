package dto

import (
	"time"

	"github.com/yukikurage/circuit/internal/models"
)

// TaskAssigneeDTO represents a task assignee in API responses
type TaskAssigneeDTO struct {
	UserID uint64               `json:"user_id"`
	User   *UserSummaryDTO      `json:"user,omitempty"`
	State  models.AssigneeState `json:"state"`
}

// TaskDTO represents a task in API responses
type TaskDTO struct {
	ID             uint64                  `json:"id"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Status         models.TaskStatus       `json:"status"`
	Priority       models.Priority         `json:"priority"`
	Progress       int                     `json:"progress"`
	StartDate      *time.Time              `json:"start_date"`
	DueDate        *time.Time              `json:"due_date"`
	EstimatedHours float64                 `json:"estimated_hours"`
	ActualHours    float64                 `json:"actual_hours"`
	ProjectID      uint64                  `json:"project_id"`
	ParentTaskID   *uint64                 `json:"parent_task_id"`
	AssignedByID   uint64                  `json:"assigned_by_id"`
	CreatedByID    uint64                  `json:"created_by_id"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	Assignees      []TaskAssigneeDTO       `json:"assignees"`
	Checklist      []models.ChecklistItem  `json:"checklist"`
	Dependencies   []models.TaskDependency `json:"dependencies"`
	Attachments    []models.Attachment     `json:"attachments"`
	ActivityLog    []models.ActivityEntry  `json:"activity_log"`
	Tickets        []models.Ticket         `json:"tickets"`
	Subtasks       []TaskListItemDTO       `json:"subtasks"`
}

// TaskListItemDTO represents a task in list responses (minimal data)
type TaskListItemDTO struct {
	ID           uint64            `json:"id"`
	Title        string            `json:"title"`
	Status       models.TaskStatus `json:"status"`
	Priority     models.Priority   `json:"priority"`
	Progress     int               `json:"progress"`
	DueDate      *time.Time        `json:"due_date"`
	ProjectID    uint64            `json:"project_id"`
	ParentTaskID *uint64           `json:"parent_task_id"`
	AssigneeIDs  []uint64          `json:"assignee_ids"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TaskListResponse represents a paginated list of tasks
type TaskListResponse struct {
	Tasks      []TaskListItemDTO `json:"tasks"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalCount int64             `json:"total_count"`
	TotalPages int               `json:"total_pages"`
}

// AttendanceListResponse represents a page of the attendance report
type AttendanceListResponse struct {
	Records    []models.AttendanceRecord `json:"records"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"page_size"`
	TotalCount int64                     `json:"total_count"`
	TotalPages int                       `json:"total_pages"`
}

// ToTaskDTO converts a Task model to TaskDTO. Collections that were not
// preloaded come back as empty arrays.
func ToTaskDTO(task models.Task) TaskDTO {
	dto := TaskDTO{
		ID:             task.ID,
		Title:          task.Title,
		Description:    task.Description,
		Status:         task.Status,
		Priority:       task.Priority,
		Progress:       task.Progress,
		StartDate:      task.StartDate,
		DueDate:        task.DueDate,
		EstimatedHours: task.EstimatedHours,
		ActualHours:    task.ActualHours,
		ProjectID:      task.ProjectID,
		ParentTaskID:   task.ParentTaskID,
		AssignedByID:   task.AssignedByID,
		CreatedByID:    task.CreatedByID,
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
		Assignees:      make([]TaskAssigneeDTO, len(task.Assignees)),
		Checklist:      nonNil(task.Checklist),
		Dependencies:   nonNil(task.Dependencies),
		Attachments:    nonNil(task.Attachments),
		ActivityLog:    nonNil(task.ActivityLog),
		Tickets:        nonNil(task.Tickets),
		Subtasks:       make([]TaskListItemDTO, len(task.Subtasks)),
	}

	for i, assignee := range task.Assignees {
		dto.Assignees[i] = TaskAssigneeDTO{
			UserID: assignee.UserID,
			User:   ToUserSummaryDTO(assignee.User),
			State:  assignee.State,
		}
	}
	for i, subtask := range task.Subtasks {
		dto.Subtasks[i] = ToTaskListItemDTO(subtask)
	}

	return dto
}

// ToTaskListItemDTO converts a Task model to TaskListItemDTO
func ToTaskListItemDTO(task models.Task) TaskListItemDTO {
	dto := TaskListItemDTO{
		ID:           task.ID,
		Title:        task.Title,
		Status:       task.Status,
		Priority:     task.Priority,
		Progress:     task.Progress,
		DueDate:      task.DueDate,
		ProjectID:    task.ProjectID,
		ParentTaskID: task.ParentTaskID,
		AssigneeIDs:  make([]uint64, len(task.Assignees)),
		CreatedAt:    task.CreatedAt,
	}
	for i, assignee := range task.Assignees {
		dto.AssigneeIDs[i] = assignee.UserID
	}
	return dto
}

// ToTaskListResponse converts a slice of tasks to TaskListResponse
func ToTaskListResponse(tasks []models.Task, page, pageSize int, totalCount int64) TaskListResponse {
	items := make([]TaskListItemDTO, len(tasks))
	for i, task := range tasks {
		items[i] = ToTaskListItemDTO(task)
	}

	return TaskListResponse{
		Tasks:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
	}
}

func ToAttendanceListResponse(records []models.AttendanceRecord, page, pageSize int, totalCount int64) AttendanceListResponse {
	return AttendanceListResponse{
		Records:    nonNil(records),
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
