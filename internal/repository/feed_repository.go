package repository

import (
	"context"

	"github.com/yukikurage/circuit/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFeedRepository keeps project updates and announcements in the relational store.
type GormFeedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new FeedRepository
func NewFeedRepository(db *gorm.DB) FeedRepository {
	return &GormFeedRepository{db: db}
}

func (r *GormFeedRepository) Append(ctx context.Context, entry *models.FeedEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(entry).Error; err != nil {
			return err
		}
		if len(entry.Recipients) == 0 {
			return nil
		}
		for i := range entry.Recipients {
			entry.Recipients[i].EntryID = entry.ID
		}
		return tx.Create(&entry.Recipients).Error
	})
}

func (r *GormFeedRepository) FindByID(ctx context.Context, id string) (*models.FeedEntry, error) {
	var entry models.FeedEntry
	if err := r.db.WithContext(ctx).Preload("Recipients").Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &entry, nil
}

func (r *GormFeedRepository) List(ctx context.Context, filter FeedFilter) ([]models.FeedEntry, int64, error) {
	entries := []models.FeedEntry{}

	query := r.db.WithContext(ctx).Model(&models.FeedEntry{}).Where("feed_entries.project_id = ?", filter.ProjectID)
	if filter.Kind != nil {
		query = query.Where("feed_entries.kind = ?", *filter.Kind)
	}
	if filter.RecipientEmail != "" {
		recipientSubQuery := r.db.Model(&models.FeedRecipient{}).
			Select("1").
			Where("feed_recipients.entry_id = feed_entries.id").
			Where("feed_recipients.email = ?", filter.RecipientEmail)
		if filter.UnreadOnly {
			recipientSubQuery = recipientSubQuery.Where("feed_recipients.state = ?", models.RecipientUnread)
		}
		query = query.Where("EXISTS (?)", recipientSubQuery)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Recipients").
		Order("feed_entries.date DESC").
		Scopes(pageScope(filter.Page, filter.PageSize)).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *GormFeedRepository) MarkRead(ctx context.Context, entryID, email string) error {
	result := r.db.WithContext(ctx).Model(&models.FeedRecipient{}).
		Where("entry_id = ? AND email = ?", entryID, email).
		Update("state", models.RecipientRead)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero affected rows for a recipient that had already read the entry.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.FeedRecipient{}).
			Where("entry_id = ? AND email = ?", entryID, email).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (r *GormFeedRepository) DeleteByProject(ctx context.Context, projectID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entryIDs := tx.Model(&models.FeedEntry{}).Select("id").Where("project_id = ?", projectID)
		if err := tx.Where("entry_id IN (?)", entryIDs).Delete(&models.FeedRecipient{}).Error; err != nil {
			return err
		}
		return tx.Where("project_id = ?", projectID).Delete(&models.FeedEntry{}).Error
	})
}
