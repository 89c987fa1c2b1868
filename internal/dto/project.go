package dto

import (
	"time"

	"github.com/yukikurage/circuit/internal/models"
)

// ParticipantDTO represents one roster entry
type ParticipantDTO struct {
	User           *UserSummaryDTO       `json:"user,omitempty"`
	UserID         uint64                `json:"user_id"`
	RoleInProject  string                `json:"role_in_project"`
	Responsibility models.Responsibility `json:"responsibility"`
	JoinedAt       time.Time             `json:"joined_at"`
}

// ProjectDTO represents a project in API responses
type ProjectDTO struct {
	ID            uint64              `json:"id"`
	ProjectName   string              `json:"project_name"`
	ProjectState  models.ProjectState `json:"project_state"`
	ProjectDomain string              `json:"project_domain"`
	StartDate     time.Time           `json:"start_date"`
	EndDate       *time.Time          `json:"end_date"`
	ManagerID     uint64              `json:"manager_id"`
	Participants  []ParticipantDTO    `json:"participants"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// ProjectListResponse represents a paginated list of projects
type ProjectListResponse struct {
	Projects   []ProjectDTO `json:"projects"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalCount int64        `json:"total_count"`
	TotalPages int          `json:"total_pages"`
}

// FeedListResponse represents a paginated page of a project feed
type FeedListResponse struct {
	Entries    []models.FeedEntry `json:"entries"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalCount int64              `json:"total_count"`
	TotalPages int                `json:"total_pages"`
}

// ToParticipantDTO converts a roster entry to DTO
func ToParticipantDTO(participant models.Participant) ParticipantDTO {
	return ParticipantDTO{
		User:           ToUserSummaryDTO(participant.User),
		UserID:         participant.UserID,
		RoleInProject:  participant.RoleInProject,
		Responsibility: participant.Responsibility,
		JoinedAt:       participant.JoinedAt,
	}
}

// ToProjectDTO converts a project with its roster to DTO
func ToProjectDTO(project models.Project) ProjectDTO {
	participants := make([]ParticipantDTO, len(project.Participants))
	for i, participant := range project.Participants {
		participants[i] = ToParticipantDTO(participant)
	}

	return ProjectDTO{
		ID:            project.ID,
		ProjectName:   project.ProjectName,
		ProjectState:  project.ProjectState,
		ProjectDomain: project.ProjectDomain,
		StartDate:     project.StartDate,
		EndDate:       project.EndDate,
		ManagerID:     project.ManagerID,
		Participants:  participants,
		CreatedAt:     project.CreatedAt,
		UpdatedAt:     project.UpdatedAt,
	}
}

func ToProjectListResponse(projects []models.Project, page, pageSize int, totalCount int64) ProjectListResponse {
	items := make([]ProjectDTO, len(projects))
	for i, project := range projects {
		items[i] = ToProjectDTO(project)
	}
	return ProjectListResponse{
		Projects:   items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
	}
}

func ToFeedListResponse(entries []models.FeedEntry, page, pageSize int, totalCount int64) FeedListResponse {
	return FeedListResponse{
		Entries:    nonNil(entries),
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, pageSize),
	}
}
