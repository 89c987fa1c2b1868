package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/repository"
)

type AttendanceStore struct {
	attendance *mongo.Collection
}

var _ repository.AttendanceRepository = (*AttendanceStore)(nil)

func NewAttendanceStore(ctx context.Context, db *MongoDB) (*AttendanceStore, error) {
	attendance := db.Collection("attendance")

	if _, err := attendance.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "approval_status", Value: 1}, {Key: "date", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create attendance indexes: %w", err)
	}

	return &AttendanceStore{attendance: attendance}, nil
}

// Create inserts a record. The unique index turns a second mark for the same day into ErrDuplicate.
func (s *AttendanceStore) Create(ctx context.Context, record *models.AttendanceRecord) error {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if _, err := s.attendance.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

func (s *AttendanceStore) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *AttendanceStore) FindByUserAndDate(ctx context.Context, userID uint64, date string) (*models.AttendanceRecord, error) {
	return s.findOne(ctx, bson.M{"user_id": userID, "date": date})
}

// Decide matches on approval_status so a decided record is never overwritten.
func (s *AttendanceStore) Decide(ctx context.Context, id string, decision models.ApprovalStatus, approverID uint64, at time.Time) error {
	res, err := s.attendance.UpdateOne(ctx,
		bson.M{"_id": id, "approval_status": models.ApprovalPending},
		bson.M{"$set": bson.M{
			"approval_status": decision,
			"approved_by":     approverID,
			"decided_at":      at,
			"updated_at":      at,
		}},
	)
	if err != nil {
		return fmt.Errorf("decide attendance: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrStateChanged
	}
	return nil
}

func (s *AttendanceStore) List(ctx context.Context, filter repository.AttendanceFilter) ([]models.AttendanceRecord, int64, error) {
	results := []models.AttendanceRecord{}
	if filter.UserIDs != nil && len(filter.UserIDs) == 0 {
		return results, 0, nil
	}

	query := bson.M{}
	if filter.UserIDs != nil {
		query["user_id"] = bson.M{"$in": filter.UserIDs}
	}
	dateRange := bson.M{}
	if filter.From != "" {
		dateRange["$gte"] = filter.From
	}
	if filter.To != "" {
		dateRange["$lte"] = filter.To
	}
	if len(dateRange) > 0 {
		query["date"] = dateRange
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.ApprovalStatus != nil {
		query["approval_status"] = *filter.ApprovalStatus
	}

	total, err := s.attendance.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	opts := skipLimit(filter.Page, filter.PageSize).
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "user_id", Value: 1}})
	cursor, err := s.attendance.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find attendance: %w", err)
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, fmt.Errorf("decode attendance: %w", err)
	}
	return results, total, nil
}

func (s *AttendanceStore) findOne(ctx context.Context, filter bson.M) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := s.attendance.FindOne(ctx, filter).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &record, nil
}
