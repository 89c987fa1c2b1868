package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/repository"
)

// FeedStore keeps each entry as one document with its recipients embedded.
type FeedStore struct {
	feed *mongo.Collection
}

var _ repository.FeedRepository = (*FeedStore)(nil)

func NewFeedStore(ctx context.Context, db *MongoDB) (*FeedStore, error) {
	feed := db.Collection("project_feed")

	if _, err := feed.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "recipients.email", Value: 1}, {Key: "recipients.state", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create project_feed indexes: %w", err)
	}

	return &FeedStore{feed: feed}, nil
}

func (s *FeedStore) Append(ctx context.Context, entry *models.FeedEntry) error {
	if entry.Recipients == nil {
		entry.Recipients = []models.FeedRecipient{}
	}
	if _, err := s.feed.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert feed entry: %w", err)
	}
	return nil
}

func (s *FeedStore) FindByID(ctx context.Context, id string) (*models.FeedEntry, error) {
	var entry models.FeedEntry
	err := s.feed.FindOne(ctx, bson.M{"_id": id}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find feed entry: %w", err)
	}
	fillEntryIDs(&entry)
	return &entry, nil
}

func (s *FeedStore) List(ctx context.Context, filter repository.FeedFilter) ([]models.FeedEntry, int64, error) {
	query := bson.M{"project_id": filter.ProjectID}
	if filter.Kind != nil {
		query["kind"] = *filter.Kind
	}
	if filter.RecipientEmail != "" {
		match := bson.M{"email": filter.RecipientEmail}
		if filter.UnreadOnly {
			match["state"] = models.RecipientUnread
		}
		query["recipients"] = bson.M{"$elemMatch": match}
	}

	total, err := s.feed.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count feed entries: %w", err)
	}

	opts := skipLimit(filter.Page, filter.PageSize).SetSort(bson.D{{Key: "date", Value: -1}})
	cursor, err := s.feed.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find feed entries: %w", err)
	}

	results := []models.FeedEntry{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, fmt.Errorf("decode feed entries: %w", err)
	}
	for i := range results {
		fillEntryIDs(&results[i])
	}
	return results, total, nil
}

// MarkRead flips only the matching recipient through the positional operator.
func (s *FeedStore) MarkRead(ctx context.Context, entryID, email string) error {
	res, err := s.feed.UpdateOne(ctx,
		bson.M{"_id": entryID, "recipients.email": email},
		bson.M{"$set": bson.M{"recipients.$.state": models.RecipientRead}},
	)
	if err != nil {
		return fmt.Errorf("mark feed entry read: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *FeedStore) DeleteByProject(ctx context.Context, projectID uint64) error {
	if _, err := s.feed.DeleteMany(ctx, bson.M{"project_id": projectID}); err != nil {
		return fmt.Errorf("delete feed entries: %w", err)
	}
	return nil
}

func fillEntryIDs(entry *models.FeedEntry) {
	for i := range entry.Recipients {
		entry.Recipients[i].EntryID = entry.ID
	}
}
