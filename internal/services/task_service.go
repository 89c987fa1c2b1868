package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/circuit/internal/constants"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/notify"
	"github.com/yukikurage/circuit/internal/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrChecklistItemNotFound  = errors.New("checklist item not found")
	ErrNotAssignee            = errors.New("user is not assigned to this task")
	ErrAIServiceNotConfigured = errors.New("AI service is not configured")
	ErrAINoTasksGenerated     = errors.New("AI did not generate any tasks")
	ErrAINoValidTasks         = errors.New("no valid tasks could be created from AI output")

	// ErrTaskCycle is returned when a parent change would make a task its own ancestor.
	ErrTaskCycle = &ValidationError{Field: "parent_task_id", Message: "a task cannot be its own ancestor"}
)

// Activity log actions
const (
	ActivityCreated          = "created"
	ActivityUpdated          = "updated"
	ActivityChecklistToggled = "checklist_toggled"
	ActivityAssigneeState    = "assignee_state_changed"
	ActivityAttachmentAdded  = "attachment_added"
)

var taskDetailPreloads = []string{
	"Checklist", "Assignees", "Assignees.User", "Dependencies", "Attachments", "ActivityLog", "Tickets", "Subtasks",
}

// TaskService handles task business logic
type TaskService struct {
	taskRepo    repository.TaskRepository
	projectRepo repository.ProjectRepository
	aiService   *AIService
	uploads     *UploadService
	dispatcher  *notify.Dispatcher
	now         func() time.Time
}

// NewTaskService creates a new TaskService
func NewTaskService(
	taskRepo repository.TaskRepository,
	projectRepo repository.ProjectRepository,
	aiService *AIService,
	uploads *UploadService,
	dispatcher *notify.Dispatcher,
) *TaskService {
	return &TaskService{
		taskRepo:    taskRepo,
		projectRepo: projectRepo,
		aiService:   aiService,
		uploads:     uploads,
		dispatcher:  dispatcher,
		now:         time.Now,
	}
}

// ChecklistInput is one submitted checklist item. ID is zero for new items.
type ChecklistInput struct {
	ID          uint64
	Item        string
	IsCompleted bool
}

type DependencyInput struct {
	DependsOnID uint64
	Type        models.DependencyType
}

// ListTasksInput represents filters for listing tasks
type ListTasksInput struct {
	ProjectID     *uint64
	Status        *models.TaskStatus
	Priority      *models.Priority
	AssigneeID    *uint64
	ParentTaskID  *uint64
	RootOnly      bool
	AssignedToMe  bool
	DueToday      bool
	SortByDueDate bool
	Page          int
	PageSize      int
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Title          string
	Description    string
	ProjectID      uint64
	Assignees      []uint64
	Priority       models.Priority
	StartDate      *time.Time
	DueDate        *time.Time
	EstimatedHours float64
	Checklist      []ChecklistInput
	Dependencies   []DependencyInput
	ParentTaskID   *uint64
}

// UpdateTaskInput is a typed patch. Nil fields are left alone; slices given as non-nil
// replace the whole collection.
type UpdateTaskInput struct {
	Title          *string
	Description    *string
	Status         *models.TaskStatus
	Priority       *models.Priority
	StartDate      *time.Time
	ClearStartDate bool
	DueDate        *time.Time
	ClearDueDate   bool
	Progress       *int
	EstimatedHours *float64
	ActualHours    *float64
	Checklist      []ChecklistInput
	Assignees      []uint64
	Dependencies   []DependencyInput
	ParentTaskID   *uint64
	ClearParent    bool
	ProjectID      *uint64
}

// ListTasks returns tasks visible to the caller. Members only see tasks they are assigned to.
func (s *TaskService) ListTasks(ctx context.Context, caller Caller, input ListTasksInput) ([]models.Task, int64, error) {
	filter := repository.TaskFilter{
		Status:        input.Status,
		Priority:      input.Priority,
		ParentTaskID:  input.ParentTaskID,
		RootOnly:      input.RootOnly,
		SortByDueDate: input.SortByDueDate,
		Page:          input.Page,
		PageSize:      input.PageSize,
	}
	if input.ProjectID != nil {
		filter.ProjectIDs = []uint64{*input.ProjectID}
	}

	switch {
	case !caller.IsStaff() || input.AssignedToMe:
		filter.AssignedUserID = &caller.ID
	case input.AssigneeID != nil:
		filter.AssignedUserID = input.AssigneeID
	}

	if input.DueToday {
		now := s.now()
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		endOfDay := startOfDay.Add(24 * time.Hour)
		filter.DueDateFrom = &startOfDay
		filter.DueDateTo = &endOfDay
	}

	tasks, total, err := s.taskRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, total, nil
}

// GetTask returns a task with related data
func (s *TaskService) GetTask(ctx context.Context, caller Caller, taskID uint64) (*models.Task, error) {
	task, err := s.find(ctx, taskID, taskDetailPreloads...)
	if err != nil {
		return nil, err
	}
	if !canSeeTask(caller, task) {
		return nil, ErrForbidden
	}
	return task, nil
}

// CreateTask creates a pending task. Only managers and admins create tasks, and every
// assignee must be on the project roster.
func (s *TaskService) CreateTask(ctx context.Context, caller Caller, input CreateTaskInput) (*models.Task, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	switch {
	case title == "":
		return nil, invalid("title", "title is required")
	case description == "":
		return nil, invalid("description", "description is required")
	case input.ProjectID == 0:
		return nil, invalid("project_id", "project is required")
	case len(input.Assignees) == 0:
		return nil, invalid("assignees", "at least one assignee is required")
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, invalid("priority", "unknown priority %q", priority)
	}
	if err := validateTaskDates(input.StartDate, input.DueDate); err != nil {
		return nil, err
	}
	if input.EstimatedHours < 0 {
		return nil, invalid("estimated_hours", "must not be negative")
	}

	project, err := s.findProject(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}

	assignees := uniqueUint64(input.Assignees)
	if err := s.ensureParticipants(ctx, project.ID, assignees); err != nil {
		return nil, err
	}

	if input.ParentTaskID != nil {
		if err := s.validateParent(ctx, 0, project.ID, *input.ParentTaskID); err != nil {
			return nil, err
		}
	}

	dependencies, err := s.buildDependencies(ctx, 0, project.ID, input.Dependencies)
	if err != nil {
		return nil, err
	}

	checklist, err := buildChecklist(nil, input.Checklist, caller.ID, s.now())
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		Title:          title,
		Description:    description,
		Status:         models.TaskStatusPending,
		StartDate:      input.StartDate,
		DueDate:        input.DueDate,
		Priority:       priority,
		EstimatedHours: input.EstimatedHours,
		ProjectID:      project.ID,
		ParentTaskID:   input.ParentTaskID,
		AssignedByID:   caller.ID,
		CreatedByID:    caller.ID,
		Checklist:      checklist,
		Assignees:      assigneeRows(assignees),
		Dependencies:   dependencies,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.recordActivity(ctx, task.ID, caller.ID, ActivityCreated, map[string]any{"title": task.Title}); err != nil {
		return nil, err
	}

	s.notifyAssigned(ctx, caller, task, project.ProjectName, assignees)

	return s.find(ctx, task.ID, taskDetailPreloads...)
}

// UpdateTask merges a patch into a task. Members may patch tasks they are assigned to,
// but never the assignees, the parent or the project.
func (s *TaskService) UpdateTask(ctx context.Context, caller Caller, taskID uint64, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.find(ctx, taskID, "Checklist", "Assignees", "Dependencies")
	if err != nil {
		return nil, err
	}

	if !caller.IsStaff() {
		if !task.IsAssignee(caller.ID) {
			return nil, ErrForbidden
		}
		if input.Assignees != nil || input.ParentTaskID != nil || input.ClearParent || input.ProjectID != nil {
			return nil, ErrForbidden
		}
	}

	changed := []string{}
	mark := func(field string) { changed = append(changed, field) }

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, invalid("title", "title cannot be empty")
		}
		task.Title = title
		mark("title")
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, invalid("description", "description cannot be empty")
		}
		task.Description = description
		mark("description")
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, invalid("status", "unknown status %q", *input.Status)
		}
		task.Status = *input.Status
		mark("status")
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, invalid("priority", "unknown priority %q", *input.Priority)
		}
		task.Priority = *input.Priority
		mark("priority")
	}
	if input.ClearStartDate {
		task.StartDate = nil
		mark("start_date")
	} else if input.StartDate != nil {
		task.StartDate = input.StartDate
		mark("start_date")
	}
	if input.ClearDueDate {
		task.DueDate = nil
		mark("due_date")
	} else if input.DueDate != nil {
		task.DueDate = input.DueDate
		mark("due_date")
	}
	if err := validateTaskDates(task.StartDate, task.DueDate); err != nil {
		return nil, err
	}
	if input.Progress != nil {
		if *input.Progress < 0 || *input.Progress > 100 {
			return nil, invalid("progress", "must be between 0 and 100")
		}
		task.Progress = *input.Progress
		mark("progress")
	}
	if input.EstimatedHours != nil {
		if *input.EstimatedHours < 0 {
			return nil, invalid("estimated_hours", "must not be negative")
		}
		task.EstimatedHours = *input.EstimatedHours
		mark("estimated_hours")
	}
	if input.ActualHours != nil {
		if *input.ActualHours < 0 {
			return nil, invalid("actual_hours", "must not be negative")
		}
		task.ActualHours = *input.ActualHours
		mark("actual_hours")
	}

	if input.ProjectID != nil && *input.ProjectID != task.ProjectID {
		if err := s.moveProject(ctx, task, *input.ProjectID, input); err != nil {
			return nil, err
		}
		mark("project_id")
	}

	if input.ClearParent {
		task.ParentTaskID = nil
		mark("parent_task_id")
	} else if input.ParentTaskID != nil {
		if err := s.validateParent(ctx, task.ID, task.ProjectID, *input.ParentTaskID); err != nil {
			return nil, err
		}
		task.ParentTaskID = input.ParentTaskID
		mark("parent_task_id")
	}

	opts := repository.TaskUpdateOptions{}

	if input.Checklist != nil {
		checklist, err := buildChecklist(task.Checklist, input.Checklist, caller.ID, s.now())
		if err != nil {
			return nil, err
		}
		task.Checklist = checklist
		opts.Checklist = true
		mark("checklist")
	}

	var added []uint64
	if input.Assignees != nil {
		assignees := uniqueUint64(input.Assignees)
		if len(assignees) == 0 {
			return nil, invalid("assignees", "at least one assignee is required")
		}
		if err := s.ensureParticipants(ctx, task.ProjectID, assignees); err != nil {
			return nil, err
		}
		for _, id := range assignees {
			if !task.IsAssignee(id) {
				added = append(added, id)
			}
		}
		task.Assignees = assigneeRows(assignees)
		opts.Assignees = true
		mark("assignees")
	}

	if input.Dependencies != nil {
		dependencies, err := s.buildDependencies(ctx, task.ID, task.ProjectID, input.Dependencies)
		if err != nil {
			return nil, err
		}
		task.Dependencies = dependencies
		opts.Dependencies = true
		mark("dependencies")
	}

	if err := s.taskRepo.Update(ctx, task, opts); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := s.recordActivity(ctx, task.ID, caller.ID, ActivityUpdated, map[string]any{"fields": changed}); err != nil {
		return nil, err
	}

	updated, err := s.find(ctx, task.ID, taskDetailPreloads...)
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.notifyAssigned(ctx, caller, updated, s.projectName(ctx, updated.ProjectID), added)
	}
	s.dispatcher.Dispatch(ctx, notify.Notification{
		Kind:         notify.KindTaskUpdated,
		ActorID:      caller.ID,
		RecipientIDs: excluding(assigneeIDs(updated), added),
		Data:         map[string]any{"Actor": caller.DisplayName(), "Title": updated.Title},
		Refs:         taskRefs(updated),
	})

	return updated, nil
}

// ToggleChecklistItem flips the item at index. Progress is recomputed on save.
func (s *TaskService) ToggleChecklistItem(ctx context.Context, caller Caller, taskID uint64, index int) (*models.Task, error) {
	task, err := s.find(ctx, taskID, "Checklist", "Assignees")
	if err != nil {
		return nil, err
	}
	if !canSeeTask(caller, task) {
		return nil, ErrForbidden
	}
	if index < 0 || index >= len(task.Checklist) {
		return nil, ErrChecklistItemNotFound
	}

	item := &task.Checklist[index]
	item.IsCompleted = !item.IsCompleted
	if item.IsCompleted {
		now := s.now()
		actor := caller.ID
		item.CompletedByID = &actor
		item.CompletedAt = &now
	} else {
		item.CompletedByID = nil
		item.CompletedAt = nil
	}

	if err := s.taskRepo.Update(ctx, task, repository.TaskUpdateOptions{Checklist: true}); err != nil {
		return nil, fmt.Errorf("failed to update checklist: %w", err)
	}

	details := map[string]any{"index": index, "item": item.Item, "is_completed": item.IsCompleted}
	if err := s.recordActivity(ctx, task.ID, caller.ID, ActivityChecklistToggled, details); err != nil {
		return nil, err
	}

	return s.find(ctx, task.ID, taskDetailPreloads...)
}

// UpdateAssigneeState lets an assignee report their own progress on a task.
func (s *TaskService) UpdateAssigneeState(ctx context.Context, caller Caller, taskID uint64, state models.AssigneeState) (*models.Task, error) {
	if !state.Valid() {
		return nil, invalid("state", "unknown assignee state %q", state)
	}

	task, err := s.find(ctx, taskID, "Assignees")
	if err != nil {
		return nil, err
	}
	if !task.IsAssignee(caller.ID) {
		return nil, ErrNotAssignee
	}

	if err := s.taskRepo.SetAssigneeState(ctx, taskID, caller.ID, state); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAssignee
		}
		return nil, fmt.Errorf("failed to update assignee state: %w", err)
	}

	if err := s.recordActivity(ctx, task.ID, caller.ID, ActivityAssigneeState, map[string]any{"state": state}); err != nil {
		return nil, err
	}

	return s.find(ctx, task.ID, taskDetailPreloads...)
}

// DeleteTask is reserved to admins, whoever created the task.
func (s *TaskService) DeleteTask(ctx context.Context, caller Caller, taskID uint64) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}

	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

// AddAttachment uploads a file and attaches it to the task.
func (s *TaskService) AddAttachment(ctx context.Context, caller Caller, taskID uint64, upload Upload) (*models.Attachment, error) {
	task, err := s.find(ctx, taskID, "Assignees")
	if err != nil {
		return nil, err
	}
	if !canSeeTask(caller, task) {
		return nil, ErrForbidden
	}

	url, err := s.uploads.Store(ctx, caller, fmt.Sprintf("tasks/%d", task.ID), upload)
	if err != nil {
		return nil, err
	}

	attachment := &models.Attachment{
		TaskID:       task.ID,
		FileName:     upload.FileName,
		URL:          url,
		UploadedByID: caller.ID,
	}
	if err := s.taskRepo.AddAttachment(ctx, attachment); err != nil {
		return nil, fmt.Errorf("failed to add attachment: %w", err)
	}

	details := map[string]any{"file_name": attachment.FileName, "url": attachment.URL}
	if err := s.recordActivity(ctx, task.ID, caller.ID, ActivityAttachmentAdded, details); err != nil {
		return nil, err
	}

	return attachment, nil
}

// GenerateTasks uses AI to suggest tasks from free text. Nothing is persisted.
func (s *TaskService) GenerateTasks(ctx context.Context, caller Caller, text string) ([]GeneratedTask, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}
	if s.aiService == nil {
		return nil, ErrAIServiceNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, invalid("text", "text is required")
	}

	aiTasks, err := s.aiService.GenerateTasksFromText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tasks: %w", err)
	}

	if len(aiTasks) == 0 {
		return nil, ErrAINoTasksGenerated
	}
	if len(aiTasks) > constants.MaxAIGeneratedTasks {
		return nil, fmt.Errorf("AI generated too many tasks (max %d)", constants.MaxAIGeneratedTasks)
	}

	validTasks := make([]GeneratedTask, 0, len(aiTasks))
	cutoff := s.now().Add(-24 * time.Hour)
	for _, aiTask := range aiTasks {
		if strings.TrimSpace(aiTask.Title) == "" {
			continue
		}

		if aiTask.DueDate != nil && aiTask.DueDate.Before(cutoff) {
			aiTask.DueDate = nil
		}
		if !aiTask.Priority.Valid() {
			aiTask.Priority = models.PriorityMedium
		}
		if aiTask.EstimatedHours < 0 {
			aiTask.EstimatedHours = 0
		}

		validTasks = append(validTasks, aiTask)
	}

	if len(validTasks) == 0 {
		return nil, ErrAINoValidTasks
	}

	return validTasks, nil
}

func (s *TaskService) find(ctx context.Context, taskID uint64, preload ...string) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID, preload...)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

func (s *TaskService) findProject(ctx context.Context, projectID uint64) (*models.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return project, nil
}

func (s *TaskService) projectName(ctx context.Context, projectID uint64) string {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return ""
	}
	return project.ProjectName
}

// ensureParticipants verifies that every user is on the project roster
func (s *TaskService) ensureParticipants(ctx context.Context, projectID uint64, userIDs []uint64) error {
	count, err := s.projectRepo.CountParticipants(ctx, projectID, userIDs)
	if err != nil {
		return fmt.Errorf("failed to verify assignees: %w", err)
	}
	if int(count) != len(userIDs) {
		return invalid("assignees", "every assignee must be a participant of the project")
	}
	return nil
}

// validateParent checks that parentID is a task of the same project and that taskID
// does not appear among its ancestors. taskID is zero for a task being created.
func (s *TaskService) validateParent(ctx context.Context, taskID, projectID, parentID uint64) error {
	if parentID == 0 {
		return invalid("parent_task_id", "parent task id is required")
	}
	if parentID == taskID {
		return ErrTaskCycle
	}

	parent, err := s.taskRepo.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid("parent_task_id", "parent task %d does not exist", parentID)
		}
		return fmt.Errorf("failed to find parent task: %w", err)
	}
	if parent.ProjectID != projectID {
		return invalid("parent_task_id", "parent task belongs to another project")
	}

	if taskID == 0 {
		return nil
	}
	ancestors, err := s.taskRepo.AncestorIDs(ctx, parentID)
	if err != nil {
		return fmt.Errorf("failed to walk parent chain: %w", err)
	}
	for _, id := range ancestors {
		if id == taskID {
			return ErrTaskCycle
		}
	}
	return nil
}

// moveProject re-homes a task. Its assignees must be on the new roster and it may only
// keep a parent from the new project.
func (s *TaskService) moveProject(ctx context.Context, task *models.Task, projectID uint64, input UpdateTaskInput) error {
	if _, err := s.findProject(ctx, projectID); err != nil {
		return err
	}

	_, subtasks, err := s.taskRepo.List(ctx, repository.TaskFilter{ParentTaskID: &task.ID, Page: 1, PageSize: 1})
	if err != nil {
		return fmt.Errorf("failed to list subtasks: %w", err)
	}
	if subtasks > 0 {
		return invalid("project_id", "a task with subtasks cannot move to another project")
	}

	if input.Assignees == nil {
		if err := s.ensureParticipants(ctx, projectID, assigneeIDs(task)); err != nil {
			return err
		}
	}
	if task.ParentTaskID != nil && input.ParentTaskID == nil && !input.ClearParent {
		return invalid("parent_task_id", "parent task belongs to another project")
	}
	if input.Dependencies == nil && len(task.Dependencies) > 0 {
		return invalid("dependencies", "dependencies must be resubmitted when moving a task")
	}

	task.ProjectID = projectID
	return nil
}

func (s *TaskService) buildDependencies(ctx context.Context, taskID, projectID uint64, input []DependencyInput) ([]models.TaskDependency, error) {
	seen := make(map[uint64]struct{}, len(input))
	dependencies := make([]models.TaskDependency, 0, len(input))

	for _, d := range input {
		if !d.Type.Valid() {
			return nil, invalid("dependencies", "unknown dependency type %q", d.Type)
		}
		if d.DependsOnID == 0 || (taskID != 0 && d.DependsOnID == taskID) {
			return nil, invalid("dependencies", "a task cannot depend on itself")
		}
		if _, dup := seen[d.DependsOnID]; dup {
			return nil, invalid("dependencies", "task %d listed twice", d.DependsOnID)
		}
		seen[d.DependsOnID] = struct{}{}

		other, err := s.taskRepo.FindByID(ctx, d.DependsOnID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalid("dependencies", "task %d does not exist", d.DependsOnID)
			}
			return nil, fmt.Errorf("failed to find dependency: %w", err)
		}
		if other.ProjectID != projectID {
			return nil, invalid("dependencies", "task %d belongs to another project", d.DependsOnID)
		}

		dependencies = append(dependencies, models.TaskDependency{DependsOnID: d.DependsOnID, Type: d.Type})
	}
	return dependencies, nil
}

func (s *TaskService) recordActivity(ctx context.Context, taskID, actorID uint64, action string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	entry := &models.ActivityEntry{
		TaskID:  taskID,
		ActorID: actorID,
		Action:  action,
		Details: datatypes.JSON(raw),
	}
	if err := s.taskRepo.AddActivity(ctx, entry); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

func (s *TaskService) notifyAssigned(ctx context.Context, caller Caller, task *models.Task, projectName string, userIDs []uint64) {
	s.dispatcher.Dispatch(ctx, notify.Notification{
		Kind:         notify.KindTaskAssigned,
		ActorID:      caller.ID,
		RecipientIDs: userIDs,
		Data: map[string]any{
			"Actor":   caller.DisplayName(),
			"Title":   task.Title,
			"Project": projectName,
		},
		Refs: taskRefs(task),
	})
}

// buildChecklist merges submitted items with the current ones. Items that keep their
// ID keep their completion record unless the completion flag changes.
func buildChecklist(current []models.ChecklistItem, input []ChecklistInput, actorID uint64, now time.Time) ([]models.ChecklistItem, error) {
	byID := make(map[uint64]models.ChecklistItem, len(current))
	for _, item := range current {
		byID[item.ID] = item
	}

	items := make([]models.ChecklistItem, 0, len(input))
	for i, in := range input {
		text := strings.TrimSpace(in.Item)
		if text == "" {
			return nil, invalid("checklist", "item %d is empty", i)
		}

		item, ok := byID[in.ID]
		if !ok {
			item = models.ChecklistItem{}
		}
		delete(byID, in.ID)
		item.Item = text

		if in.IsCompleted != item.IsCompleted {
			item.IsCompleted = in.IsCompleted
			if in.IsCompleted {
				actor, at := actorID, now
				item.CompletedByID = &actor
				item.CompletedAt = &at
			} else {
				item.CompletedByID = nil
				item.CompletedAt = nil
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func validateTaskDates(start, due *time.Time) error {
	if start != nil && due != nil && due.Before(*start) {
		return invalid("due_date", "due date must not be before start date")
	}
	return nil
}

func canSeeTask(caller Caller, task *models.Task) bool {
	return caller.IsStaff() || task.IsAssignee(caller.ID)
}

func assigneeRows(userIDs []uint64) []models.TaskAssignee {
	rows := make([]models.TaskAssignee, len(userIDs))
	for i, id := range userIDs {
		rows[i] = models.TaskAssignee{UserID: id, State: models.AssigneeAssigned}
	}
	return rows
}

func assigneeIDs(task *models.Task) []uint64 {
	ids := make([]uint64, len(task.Assignees))
	for i, a := range task.Assignees {
		ids[i] = a.UserID
	}
	return ids
}

func excluding(ids, drop []uint64) []uint64 {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[uint64]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func taskRefs(task *models.Task) map[string]string {
	return map[string]string{
		"task_id":    fmt.Sprint(task.ID),
		"project_id": fmt.Sprint(task.ProjectID),
	}
}
