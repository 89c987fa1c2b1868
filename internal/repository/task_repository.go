package repository

import (
	"context"

	"github.com/yukikurage/circuit/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create creates a new task with its child rows
func (r *GormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(task).Error; err != nil {
			return err
		}

		if err := saveChecklist(tx, task); err != nil {
			return err
		}
		if err := saveAssignees(tx, task); err != nil {
			return err
		}
		return saveDependencies(tx, task)
	})
}

// FindByID finds a task by ID with optional preloading
func (r *GormTaskRepository) FindByID(ctx context.Context, id uint64, preload ...string) (*models.Task, error) {
	var task models.Task
	query := r.db.WithContext(ctx)

	// Apply preloading if specified
	for _, p := range preload {
		if p == "Checklist" {
			query = query.Preload(p, orderByPosition)
			continue
		}
		query = query.Preload(p)
	}

	if err := query.First(&task, id).Error; err != nil {
		return nil, err
	}

	return &task, nil
}

// List retrieves tasks with filtering and pagination
func (r *GormTaskRepository) List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error) {
	var tasks []models.Task

	if filter.ProjectIDs != nil && len(filter.ProjectIDs) == 0 {
		return []models.Task{}, 0, nil
	}

	query := r.db.WithContext(ctx).Model(&models.Task{})
	if filter.ProjectIDs != nil {
		query = query.Where("tasks.project_id IN ?", filter.ProjectIDs)
	}

	// Apply filters
	if filter.Status != nil {
		query = query.Where("tasks.status = ?", *filter.Status)
	}
	if filter.Priority != nil {
		query = query.Where("tasks.priority = ?", *filter.Priority)
	}
	if filter.ParentTaskID != nil {
		query = query.Where("tasks.parent_task_id = ?", *filter.ParentTaskID)
	} else if filter.RootOnly {
		query = query.Where("tasks.parent_task_id IS NULL")
	}
	if filter.AssignedUserID != nil {
		assigneeSubQuery := r.db.Model(&models.TaskAssignee{}).
			Select("1").
			Where("task_assignees.task_id = tasks.id").
			Where("task_assignees.user_id = ?", *filter.AssignedUserID)
		query = query.Where("EXISTS (?)", assigneeSubQuery)
	}
	if filter.DueDateFrom != nil {
		query = query.Where("tasks.due_date >= ?", *filter.DueDateFrom)
	}
	if filter.DueDateTo != nil {
		query = query.Where("tasks.due_date < ?", *filter.DueDateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	listQuery := query
	if filter.SortByDueDate {
		listQuery = listQuery.Order("CASE WHEN tasks.due_date IS NULL THEN 1 ELSE 0 END, tasks.due_date ASC")
	} else {
		listQuery = listQuery.Order("tasks.created_at DESC").Order("tasks.id DESC")
	}

	err := listQuery.
		Scopes(pageScope(filter.Page, filter.PageSize)).
		Preload("Assignees").
		Preload("Checklist", orderByPosition).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

// Update saves the task row; progress is recomputed by the model hook from task.Checklist.
func (r *GormTaskRepository) Update(ctx context.Context, task *models.Task, opts TaskUpdateOptions) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(task).Error; err != nil {
			return err
		}

		if opts.Checklist {
			keep := make([]uint64, 0, len(task.Checklist))
			for _, item := range task.Checklist {
				if item.ID != 0 {
					keep = append(keep, item.ID)
				}
			}
			stale := tx.Where("task_id = ?", task.ID)
			if len(keep) > 0 {
				stale = stale.Where("id NOT IN ?", keep)
			}
			if err := stale.Delete(&models.ChecklistItem{}).Error; err != nil {
				return err
			}
			if err := saveChecklist(tx, task); err != nil {
				return err
			}
		}

		if opts.Assignees {
			userIDs := make([]uint64, len(task.Assignees))
			for i, assignee := range task.Assignees {
				userIDs[i] = assignee.UserID
			}
			stale := tx.Where("task_id = ?", task.ID)
			if len(userIDs) > 0 {
				stale = stale.Where("user_id NOT IN ?", userIDs)
			}
			if err := stale.Delete(&models.TaskAssignee{}).Error; err != nil {
				return err
			}
			if err := saveAssignees(tx, task); err != nil {
				return err
			}
		}

		if opts.Dependencies {
			if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskDependency{}).Error; err != nil {
				return err
			}
			if err := saveDependencies(tx, task); err != nil {
				return err
			}
		}

		return nil
	})
}

// Delete removes a task with everything it owns. Direct subtasks move up to the
// deleted task's parent so no row is left pointing at a missing task.
func (r *GormTaskRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Select("id", "parent_task_id").First(&task, id).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Task{}).
			Where("parent_task_id = ?", id).
			Update("parent_task_id", task.ParentTaskID).Error; err != nil {
			return err
		}

		if err := tx.Where("depends_on_id = ?", id).Delete(&models.TaskDependency{}).Error; err != nil {
			return err
		}

		if err := deleteTaskChildren(tx, []uint64{id}); err != nil {
			return err
		}

		return tx.Delete(&models.Task{}, id).Error
	})
}

// AncestorIDs returns id followed by its parent, grandparent and so on.
func (r *GormTaskRepository) AncestorIDs(ctx context.Context, id uint64) ([]uint64, error) {
	db := r.db.WithContext(ctx)
	ids := []uint64{}
	seen := make(map[uint64]struct{})

	current := &id
	for current != nil {
		if _, ok := seen[*current]; ok {
			break
		}
		seen[*current] = struct{}{}
		ids = append(ids, *current)

		var row struct {
			ParentTaskID *uint64
		}
		if err := db.Model(&models.Task{}).Select("parent_task_id").Where("id = ?", *current).Take(&row).Error; err != nil {
			return nil, err
		}
		current = row.ParentTaskID
	}

	return ids, nil
}

func (r *GormTaskRepository) SetAssigneeState(ctx context.Context, taskID, userID uint64, state models.AssigneeState) error {
	result := r.db.WithContext(ctx).Model(&models.TaskAssignee{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Update("state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormTaskRepository) AddAttachment(ctx context.Context, attachment *models.Attachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *GormTaskRepository) AddActivity(ctx context.Context, entry *models.ActivityEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func saveChecklist(tx *gorm.DB, task *models.Task) error {
	for i := range task.Checklist {
		task.Checklist[i].TaskID = task.ID
		task.Checklist[i].Position = i
		if err := tx.Save(&task.Checklist[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// saveAssignees inserts new assignees and leaves the state of existing ones untouched
func saveAssignees(tx *gorm.DB, task *models.Task) error {
	if len(task.Assignees) == 0 {
		return nil
	}
	for i := range task.Assignees {
		task.Assignees[i].TaskID = task.ID
		if task.Assignees[i].State == "" {
			task.Assignees[i].State = models.AssigneeAssigned
		}
	}
	return tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&task.Assignees).Error
}

func saveDependencies(tx *gorm.DB, task *models.Task) error {
	if len(task.Dependencies) == 0 {
		return nil
	}
	for i := range task.Dependencies {
		task.Dependencies[i].ID = 0
		task.Dependencies[i].TaskID = task.ID
	}
	return tx.Create(&task.Dependencies).Error
}

// deleteTaskChildren removes every row owned by the tasks in taskIDs, which may be
// a slice or a subquery.
func deleteTaskChildren(tx *gorm.DB, taskIDs any) error {
	ticketIDs := tx.Model(&models.Ticket{}).Select("id").Where("task_id IN (?)", taskIDs)
	if err := tx.Where("ticket_id IN (?)", ticketIDs).Delete(&models.TicketComment{}).Error; err != nil {
		return err
	}

	owned := []any{
		&models.Ticket{},
		&models.ChecklistItem{},
		&models.TaskAssignee{},
		&models.TaskDependency{},
		&models.Attachment{},
		&models.ActivityEntry{},
	}
	for _, model := range owned {
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
