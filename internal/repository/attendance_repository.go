package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/circuit/internal/database"
	"github.com/yukikurage/circuit/internal/models"
	"gorm.io/gorm"
)

// GormAttendanceRepository keeps the attendance ledger in the relational store.
// The unique (user_id, date) index is what rejects a second record for a day.
type GormAttendanceRepository struct {
	db *gorm.DB
}

// NewAttendanceRepository creates a new AttendanceRepository
func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &GormAttendanceRepository{db: db}
}

func (r *GormAttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *GormAttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &record, nil
}

func (r *GormAttendanceRepository) FindByUserAndDate(ctx context.Context, userID uint64, date string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).First(&record).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &record, nil
}

// Decide only touches rows still pending, so two racing approvers cannot both win.
func (r *GormAttendanceRepository) Decide(ctx context.Context, id string, decision models.ApprovalStatus, approverID uint64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Where("id = ? AND approval_status = ?", id, models.ApprovalPending).
		Updates(map[string]any{
			"approval_status": decision,
			"approved_by_id":  approverID,
			"decided_at":      at,
			"updated_at":      at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *GormAttendanceRepository) List(ctx context.Context, filter AttendanceFilter) ([]models.AttendanceRecord, int64, error) {
	records := []models.AttendanceRecord{}
	if filter.UserIDs != nil && len(filter.UserIDs) == 0 {
		return records, 0, nil
	}

	query := r.db.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Scopes(database.DateRange("date", filter.From, filter.To))
	if filter.UserIDs != nil {
		query = query.Where("user_id IN ?", filter.UserIDs)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ApprovalStatus != nil {
		query = query.Where("approval_status = ?", *filter.ApprovalStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("date DESC").
		Order("user_id ASC").
		Scopes(pageScope(filter.Page, filter.PageSize)).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
