package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/repository"
)

// setupMongo connects to the database named by CIRCUIT_TEST_MONGODB_URI and
// drops it afterwards. Tests are skipped when the variable is unset.
func setupMongo(t *testing.T) *MongoDB {
	t.Helper()

	uri := os.Getenv("CIRCUIT_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("CIRCUIT_TEST_MONGODB_URI not set")
	}

	db, err := NewMongoDB(uri, fmt.Sprintf("circuit_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = db.Close(ctx)
	})

	return db
}

func TestAttendanceStore_OneRecordPerUserPerDay(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	store, err := NewAttendanceStore(ctx, db)
	require.NoError(t, err)

	first := &models.AttendanceRecord{
		ID:             uuid.NewString(),
		UserID:         7,
		Date:           "2024-03-01",
		Status:         models.AttendancePresent,
		WorkMode:       models.WorkModeOffice,
		ApprovalStatus: models.ApprovalPending,
	}
	require.NoError(t, store.Create(ctx, first))

	second := *first
	second.ID = uuid.NewString()
	err = store.Create(ctx, &second)
	assert.True(t, errors.Is(err, repository.ErrDuplicate))

	records, total, err := store.List(ctx, repository.AttendanceFilter{UserIDs: []uint64{7}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, records, 1)
}

func TestAttendanceStore_DecideOnlyOnce(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	store, err := NewAttendanceStore(ctx, db)
	require.NoError(t, err)

	record := &models.AttendanceRecord{
		ID:             uuid.NewString(),
		UserID:         3,
		Date:           "2024-03-02",
		Status:         models.AttendancePresent,
		WorkMode:       models.WorkModeWFH,
		ApprovalStatus: models.ApprovalPending,
	}
	require.NoError(t, store.Create(ctx, record))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.Decide(ctx, record.ID, models.ApprovalApproved, 1, now))
	assert.ErrorIs(t, store.Decide(ctx, record.ID, models.ApprovalRejected, 1, now), repository.ErrStateChanged)

	got, err := store.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, got.ApprovalStatus)
	require.NotNil(t, got.ApprovedByID)
	assert.EqualValues(t, 1, *got.ApprovedByID)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFeedStore_ReadStateIsPerRecipient(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	store, err := NewFeedStore(ctx, db)
	require.NoError(t, err)

	entry := &models.FeedEntry{
		ID:        uuid.NewString(),
		ProjectID: 11,
		Kind:      models.FeedAnnouncement,
		FromEmail: "lead@example.com",
		Date:      time.Now().UTC(),
		Message:   "release on friday",
		Recipients: []models.FeedRecipient{
			{Email: "a@example.com", State: models.RecipientUnread},
			{Email: "b@example.com", State: models.RecipientUnread},
		},
	}
	require.NoError(t, store.Append(ctx, entry))
	require.NoError(t, store.MarkRead(ctx, entry.ID, "a@example.com"))
	assert.ErrorIs(t, store.MarkRead(ctx, entry.ID, "stranger@example.com"), repository.ErrNotFound)

	got, err := store.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	stateA, _ := got.RecipientState("a@example.com")
	stateB, _ := got.RecipientState("b@example.com")
	assert.Equal(t, models.RecipientRead, stateA)
	assert.Equal(t, models.RecipientUnread, stateB)

	unread, total, err := store.List(ctx, repository.FeedFilter{ProjectID: 11, RecipientEmail: "a@example.com", UnreadOnly: true})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, unread)
}
