package repository

import (
	"context"

	"github.com/yukikurage/circuit/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProjectRepository is a GORM implementation of ProjectRepository
type GormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &GormProjectRepository{db: db}
}

// Create creates a project and its roster atomically
func (r *GormProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUsersExist(tx, project.Participants); err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(project).Error; err != nil {
			return err
		}

		return insertParticipants(tx, project)
	})
}

// FindByID finds a project by ID
func (r *GormProjectRepository) FindByID(ctx context.Context, id uint64) (*models.Project, error) {
	var project models.Project
	if err := r.withRoster(ctx).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// FindByName finds a project by name
func (r *GormProjectRepository) FindByName(ctx context.Context, name string) (*models.Project, error) {
	var project models.Project
	if err := r.withRoster(ctx).Where("project_name = ?", name).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// List retrieves projects with filtering and pagination
func (r *GormProjectRepository) List(ctx context.Context, filter ProjectFilter) ([]models.Project, int64, error) {
	var projects []models.Project

	query := r.db.WithContext(ctx).Model(&models.Project{})
	if filter.ParticipantID != nil {
		rosterSubQuery := r.db.Model(&models.Participant{}).
			Select("1").
			Where("participants.project_id = projects.id").
			Where("participants.user_id = ?", *filter.ParticipantID)
		query = query.Where("EXISTS (?)", rosterSubQuery)
	}
	if filter.State != nil {
		query = query.Where("projects.project_state = ?", *filter.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Participants", orderByPosition).
		Order("projects.created_at DESC").
		Scopes(pageScope(filter.Page, filter.PageSize)).
		Find(&projects).Error
	if err != nil {
		return nil, 0, err
	}

	return projects, total, nil
}

// Update saves the project and optionally replaces the roster in the same transaction.
// The roster's users are re-checked inside the transaction.
func (r *GormProjectRepository) Update(ctx context.Context, project *models.Project, replaceRoster bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replaceRoster {
			if err := ensureUsersExist(tx, project.Participants); err != nil {
				return err
			}
		}

		if err := tx.Omit(clause.Associations).Save(project).Error; err != nil {
			return err
		}

		if !replaceRoster {
			return nil
		}

		if err := tx.Where("project_id = ?", project.ID).Delete(&models.Participant{}).Error; err != nil {
			return err
		}

		return insertParticipants(tx, project)
	})
}

// Delete deletes a project, its roster and every task of the project
func (r *GormProjectRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Model(&models.Task{}).Select("id").Where("project_id = ?", id)
		if err := deleteTaskChildren(tx, taskIDs); err != nil {
			return err
		}

		if err := tx.Where("project_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}

		if err := tx.Where("project_id = ?", id).Delete(&models.Participant{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}

func (r *GormProjectRepository) CountParticipants(ctx context.Context, projectID uint64, userIDs []uint64) (int64, error) {
	var count int64
	if len(userIDs) == 0 {
		return 0, nil
	}
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("project_id = ? AND user_id IN ?", projectID, userIDs).
		Count(&count).Error
	return count, err
}

func (r *GormProjectRepository) ListManagedUserIDs(ctx context.Context, managerID uint64) ([]uint64, error) {
	userIDs := []uint64{}
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Distinct("participants.user_id").
		Joins("JOIN projects ON projects.id = participants.project_id").
		Where("projects.manager_id = ?", managerID).
		Pluck("participants.user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (r *GormProjectRepository) withRoster(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Participants", orderByPosition).
		Preload("Participants.User")
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func ensureUsersExist(tx *gorm.DB, participants []models.Participant) error {
	if len(participants) == 0 {
		return nil
	}

	ids := make([]uint64, len(participants))
	for i, participant := range participants {
		ids[i] = participant.UserID
	}

	var count int64
	if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return err
	}
	if int(count) != len(ids) {
		return ErrMissingUsers
	}
	return nil
}

func insertParticipants(tx *gorm.DB, project *models.Project) error {
	if len(project.Participants) == 0 {
		return nil
	}

	for i := range project.Participants {
		project.Participants[i].ProjectID = project.ID
		project.Participants[i].Position = i
	}

	return tx.Omit(clause.Associations).Create(&project.Participants).Error
}
