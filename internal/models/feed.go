package models

import "time"

type FeedKind string

const (
	FeedUpdate       FeedKind = "update"
	FeedAnnouncement FeedKind = "announcement"
)

type RecipientState string

const (
	RecipientUnread RecipientState = "unread"
	RecipientRead   RecipientState = "read"
)

// FeedEntry is an append-only project update or announcement.
type FeedEntry struct {
	ID        string    `gorm:"primarykey;type:varchar(36)" bson:"_id" json:"id"`
	ProjectID uint64    `gorm:"not null;index" bson:"project_id" json:"project_id"`
	Kind      FeedKind  `gorm:"type:varchar(20);not null;index" bson:"kind" json:"kind"`
	FromEmail string    `gorm:"type:varchar(255);not null" bson:"from_email" json:"from_email"`
	Date      time.Time `gorm:"not null;index" bson:"date" json:"date"`
	Message   string    `gorm:"type:text;not null" bson:"message" json:"message"`
	FileURL   string    `gorm:"type:varchar(1024)" bson:"file_url,omitempty" json:"file_url,omitempty"`

	// Relations
	Recipients []FeedRecipient `gorm:"foreignKey:EntryID" bson:"recipients" json:"recipients"`
}

// FeedRecipient carries the read state of one recipient of an entry.
type FeedRecipient struct {
	EntryID string         `gorm:"primarykey;type:varchar(36)" bson:"-" json:"-"`
	Email   string         `gorm:"primarykey;type:varchar(255)" bson:"email" json:"email"`
	State   RecipientState `gorm:"type:varchar(20);not null;default:'unread'" bson:"state" json:"state"`
}

// RecipientState returns the state for email and whether it is a recipient at all.
func (e *FeedEntry) RecipientState(email string) (RecipientState, bool) {
	for _, r := range e.Recipients {
		if r.Email == email {
			return r.State, true
		}
	}
	return "", false
}
