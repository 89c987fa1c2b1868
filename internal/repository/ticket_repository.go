package repository

import (
	"context"

	"github.com/yukikurage/circuit/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTicketRepository is a GORM implementation of TicketRepository
type GormTicketRepository struct {
	db *gorm.DB
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &GormTicketRepository{db: db}
}

func (r *GormTicketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(ticket).Error
}

// FindByID only matches tickets that belong to taskID
func (r *GormTicketRepository) FindByID(ctx context.Context, taskID, ticketID uint64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("task_id = ?", taskID).
		First(&ticket, ticketID).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *GormTicketRepository) ListByTask(ctx context.Context, taskID uint64, status *models.TicketStatus) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	query := r.db.WithContext(ctx).Where("task_id = ?", taskID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := query.Order("created_at ASC, id ASC").Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *GormTicketRepository) Update(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(ticket).Error
}

func (r *GormTicketRepository) Delete(ctx context.Context, taskID, ticketID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket models.Ticket
		if err := tx.Select("id").Where("task_id = ?", taskID).First(&ticket, ticketID).Error; err != nil {
			return err
		}

		if err := tx.Where("ticket_id = ?", ticket.ID).Delete(&models.TicketComment{}).Error; err != nil {
			return err
		}

		return tx.Delete(&ticket).Error
	})
}

func (r *GormTicketRepository) AddComment(ctx context.Context, comment *models.TicketComment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}
