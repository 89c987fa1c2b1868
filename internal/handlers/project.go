package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/dto"
	"github.com/yukikurage/circuit/internal/middleware"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/utils"
)

// ProjectHandler serves projects and their participant rosters.
type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

type participantRequest struct {
	UserID         uint64                `json:"user_id" binding:"required"`
	RoleInProject  string                `json:"role_in_project" binding:"max=100"`
	Responsibility models.Responsibility `json:"responsibility" binding:"required,oneof=project-manager project-member"`
}

func participantInputs(req []participantRequest) []services.ParticipantInput {
	if req == nil {
		return nil
	}
	inputs := make([]services.ParticipantInput, len(req))
	for i, p := range req {
		inputs[i] = services.ParticipantInput{
			UserID:         p.UserID,
			RoleInProject:  p.RoleInProject,
			Responsibility: p.Responsibility,
		}
	}
	return inputs
}

// CreateProject creates a project with its initial roster.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type CreateProjectRequest struct {
		ProjectName   string               `json:"project_name" binding:"required,max=100,projectname"`
		ProjectState  models.ProjectState  `json:"project_state" binding:"omitempty,oneof=ongoing completed paused cancelled deployment"`
		ProjectDomain string               `json:"project_domain" binding:"max=255"`
		StartDate     time.Time            `json:"start_date" binding:"required"`
		EndDate       *time.Time           `json:"end_date"`
		Participants  []participantRequest `json:"participants" binding:"required,min=1,dive"`
	}

	var req CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), caller, services.CreateProjectInput{
		ProjectName:   req.ProjectName,
		ProjectState:  req.ProjectState,
		ProjectDomain: req.ProjectDomain,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Participants:  participantInputs(req.Participants),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToProjectDTO(*project))
}

// ListProjects returns the projects visible to the caller.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type ListProjectsQuery struct {
		State *models.ProjectState `form:"project_state" binding:"omitempty,oneof=ongoing completed paused cancelled deployment"`
	}

	var query ListProjectsQuery
	if !bindQuery(c, &query) {
		return
	}
	params := utils.GetPaginationParams(c)

	projects, total, err := h.projectService.ListProjects(c.Request.Context(), caller, services.ListProjectsInput{
		State:    query.State,
		Page:     params.Page,
		PageSize: params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectListResponse(projects, params.Page, params.Limit, total))
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)

	project, err := h.projectService.GetProject(c.Request.Context(), caller, projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// UpdateProject patches project fields. A participants array, when sent, replaces the roster.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)

	type UpdateProjectRequest struct {
		ProjectName   *string               `json:"project_name" binding:"omitempty,max=100,projectname"`
		ProjectState  *models.ProjectState  `json:"project_state" binding:"omitempty,oneof=ongoing completed paused cancelled deployment"`
		ProjectDomain *string               `json:"project_domain" binding:"omitempty,max=255"`
		StartDate     *time.Time            `json:"start_date"`
		EndDate       optional[time.Time]   `json:"end_date"`
		Participants  *[]participantRequest `json:"participants" binding:"omitempty,dive"`
	}

	var req UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	input := services.UpdateProjectInput{
		ProjectName:   req.ProjectName,
		ProjectState:  req.ProjectState,
		ProjectDomain: req.ProjectDomain,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate.ptr(),
		ClearEndDate:  req.EndDate.cleared(),
	}
	if req.Participants != nil {
		input.Participants = participantInputs(*req.Participants)
		if input.Participants == nil {
			input.Participants = []services.ParticipantInput{}
		}
	}

	project, err := h.projectService.UpdateProject(c.Request.Context(), caller, projectID, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// ReplaceParticipants swaps the whole roster in one validated write.
func (h *ProjectHandler) ReplaceParticipants(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)

	type ReplaceParticipantsRequest struct {
		Participants []participantRequest `json:"participants" binding:"required,dive"`
	}

	var req ReplaceParticipantsRequest
	if !bindJSON(c, &req) {
		return
	}

	roster := participantInputs(req.Participants)
	if roster == nil {
		roster = []services.ParticipantInput{}
	}
	project, err := h.projectService.UpdateProject(c.Request.Context(), caller, projectID, services.UpdateProjectInput{
		Participants: roster,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

func (h *ProjectHandler) AddParticipant(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)

	var req participantRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.projectService.AddParticipant(c.Request.Context(), caller, projectID, participantInputs([]participantRequest{req})[0])
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

func (h *ProjectHandler) RemoveParticipant(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}

	project, err := h.projectService.RemoveParticipant(c.Request.Context(), caller, projectID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// DeleteProject removes a project with everything it owns. Admin only.
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)

	if err := h.projectService.DeleteProject(c.Request.Context(), caller, projectID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
