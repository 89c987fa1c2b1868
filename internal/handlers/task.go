package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/dto"
	apierrors "github.com/yukikurage/circuit/internal/errors"
	"github.com/yukikurage/circuit/internal/middleware"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/utils"
)

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

type checklistRequest struct {
	ID          uint64 `json:"id"`
	Item        string `json:"item" binding:"required,notblank,max=500"`
	IsCompleted bool   `json:"is_completed"`
}

type dependencyRequest struct {
	DependsOnID uint64                `json:"depends_on_id" binding:"required"`
	Type        models.DependencyType `json:"type" binding:"required,oneof=blocks blocked-by relates-to"`
}

func checklistInputs(req []checklistRequest) []services.ChecklistInput {
	inputs := make([]services.ChecklistInput, len(req))
	for i, item := range req {
		inputs[i] = services.ChecklistInput{ID: item.ID, Item: item.Item, IsCompleted: item.IsCompleted}
	}
	return inputs
}

func dependencyInputs(req []dependencyRequest) []services.DependencyInput {
	inputs := make([]services.DependencyInput, len(req))
	for i, d := range req {
		inputs[i] = services.DependencyInput{DependsOnID: d.DependsOnID, Type: d.Type}
	}
	return inputs
}

// ListTasks returns the tasks visible to the current user.
// Members only ever see tasks they are assigned to.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type ListTasksQuery struct {
		ProjectID    *uint64            `form:"project_id"`
		Status       *models.TaskStatus `form:"status" binding:"omitempty,oneof=pending in-progress completed blocked"`
		Priority     *models.Priority   `form:"priority" binding:"omitempty,oneof=low medium high urgent"`
		AssigneeID   *uint64            `form:"assignee_id"`
		ParentTaskID *uint64            `form:"parent_task_id"`
		RootOnly     bool               `form:"root_only"`
		AssignedToMe bool               `form:"assigned_to_me"`
		DueToday     bool               `form:"due_today"`
		Sort         string             `form:"sort" binding:"omitempty,oneof=due_date created_at"`
	}

	var query ListTasksQuery
	if !bindQuery(c, &query) {
		return
	}
	params := utils.GetPaginationParams(c)

	tasks, total, err := h.taskService.ListTasks(c.Request.Context(), caller, services.ListTasksInput{
		ProjectID:     query.ProjectID,
		Status:        query.Status,
		Priority:      query.Priority,
		AssigneeID:    query.AssigneeID,
		ParentTaskID:  query.ParentTaskID,
		RootOnly:      query.RootOnly,
		AssignedToMe:  query.AssignedToMe,
		DueToday:      query.DueToday,
		SortByDueDate: query.Sort == "due_date",
		Page:          params.Page,
		PageSize:      params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskListResponse(tasks, params.Page, params.Limit, total))
}

// GetTask returns a specific task by ID with its checklist, assignees, tickets and log.
func (h *TaskHandler) GetTask(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	task, err := h.taskService.GetTask(c.Request.Context(), caller, taskID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// CreateTask creates a new task
func (h *TaskHandler) CreateTask(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type CreateTaskRequest struct {
		Title          string              `json:"title" binding:"required,notblank,max=255"`
		Description    string              `json:"description" binding:"required,notblank"`
		ProjectID      uint64              `json:"project_id" binding:"required"`
		Assignees      []uint64            `json:"assignees" binding:"required,min=1"`
		Priority       models.Priority     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
		StartDate      *time.Time          `json:"start_date"`
		DueDate        *time.Time          `json:"due_date"`
		EstimatedHours float64             `json:"estimated_hours" binding:"gte=0"`
		Checklist      []checklistRequest  `json:"checklist" binding:"omitempty,dive"`
		Dependencies   []dependencyRequest `json:"dependencies" binding:"omitempty,dive"`
		ParentTaskID   *uint64             `json:"parent_task_id"`
	}

	var req CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), caller, services.CreateTaskInput{
		Title:          req.Title,
		Description:    req.Description,
		ProjectID:      req.ProjectID,
		Assignees:      req.Assignees,
		Priority:       req.Priority,
		StartDate:      req.StartDate,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
		Checklist:      checklistInputs(req.Checklist),
		Dependencies:   dependencyInputs(req.Dependencies),
		ParentTaskID:   req.ParentTaskID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// UpdateTask merges the fields present in the body into the task. Explicit nulls
// clear start_date, due_date and parent_task_id; arrays replace the collection.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	type UpdateTaskRequest struct {
		Title          *string              `json:"title" binding:"omitempty,notblank,max=255"`
		Description    *string              `json:"description" binding:"omitempty,notblank"`
		Status         *models.TaskStatus   `json:"status" binding:"omitempty,oneof=pending in-progress completed blocked"`
		Priority       *models.Priority     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
		StartDate      optional[time.Time]  `json:"start_date"`
		DueDate        optional[time.Time]  `json:"due_date"`
		Progress       *int                 `json:"progress" binding:"omitempty,gte=0,lte=100"`
		EstimatedHours *float64             `json:"estimated_hours" binding:"omitempty,gte=0"`
		ActualHours    *float64             `json:"actual_hours" binding:"omitempty,gte=0"`
		Checklist      *[]checklistRequest  `json:"checklist" binding:"omitempty,dive"`
		Assignees      *[]uint64            `json:"assignees"`
		Dependencies   *[]dependencyRequest `json:"dependencies" binding:"omitempty,dive"`
		ParentTaskID   optional[uint64]     `json:"parent_task_id"`
		ProjectID      *uint64              `json:"project_id"`
	}

	var req UpdateTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	input := services.UpdateTaskInput{
		Title:          req.Title,
		Description:    req.Description,
		Status:         req.Status,
		Priority:       req.Priority,
		StartDate:      req.StartDate.ptr(),
		ClearStartDate: req.StartDate.cleared(),
		DueDate:        req.DueDate.ptr(),
		ClearDueDate:   req.DueDate.cleared(),
		Progress:       req.Progress,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
		ParentTaskID:   req.ParentTaskID.ptr(),
		ClearParent:    req.ParentTaskID.cleared(),
		ProjectID:      req.ProjectID,
	}
	if req.Checklist != nil {
		input.Checklist = checklistInputs(*req.Checklist)
	}
	if req.Assignees != nil {
		input.Assignees = append([]uint64{}, *req.Assignees...)
	}
	if req.Dependencies != nil {
		input.Dependencies = dependencyInputs(*req.Dependencies)
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), caller, taskID, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// DeleteTask deletes a task. Admin only, whoever created it.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	if err := h.taskService.DeleteTask(c.Request.Context(), caller, taskID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// ToggleChecklistItem flips the completion of the item at :index.
func (h *TaskHandler) ToggleChecklistItem(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		apierrors.BadRequest(c, "Invalid checklist index")
		return
	}

	task, err := h.taskService.ToggleChecklistItem(c.Request.Context(), caller, taskID, index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// UpdateAssigneeState records the caller's own progress on a task.
func (h *TaskHandler) UpdateAssigneeState(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	type AssigneeStateRequest struct {
		State models.AssigneeState `json:"state" binding:"required,oneof=assigned in-progress completed"`
	}

	var req AssigneeStateRequest
	if !bindJSON(c, &req) {
		return
	}

	task, err := h.taskService.UpdateAssigneeState(c.Request.Context(), caller, taskID, req.State)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// AddAttachment uploads the multipart "file" field and attaches it to the task.
func (h *TaskHandler) AddAttachment(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	upload, closeFile, ok := formUpload(c)
	if !ok {
		return
	}
	defer closeFile()

	attachment, err := h.taskService.AddAttachment(c.Request.Context(), caller, taskID, upload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attachment)
}

// GenerateTasks generates task suggestions from text using AI
func (h *TaskHandler) GenerateTasks(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type GenerateTasksRequest struct {
		Text string `json:"text" binding:"required,notblank"`
	}

	var req GenerateTasksRequest
	if !bindJSON(c, &req) {
		return
	}

	generatedTasks, err := h.taskService.GenerateTasks(c.Request.Context(), caller, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": generatedTasks,
	})
}
