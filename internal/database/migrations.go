package database

import (
	"fmt"
	"log"
	"strings"

	"github.com/yukikurage/circuit/internal/models"
	"gorm.io/gorm"
)

type compositeIndex struct {
	model   any
	table   string
	name    string
	columns []string
}

// Composite indexes for the list filters. Single-column indexes live on the struct tags.
var compositeIndexes = []compositeIndex{
	{&models.Task{}, "tasks", "idx_tasks_project_status", []string{"project_id", "status"}},
	{&models.Task{}, "tasks", "idx_tasks_project_due", []string{"project_id", "due_date"}},
	{&models.TaskAssignee{}, "task_assignees", "idx_task_assignees_user", []string{"user_id", "task_id"}},
	{&models.Participant{}, "participants", "idx_participants_user", []string{"user_id", "project_id"}},
	{&models.FeedRecipient{}, "feed_recipients", "idx_feed_recipients_email_state", []string{"email", "state"}},
	{&models.AttendanceRecord{}, "attendance_records", "idx_attendance_approval_date", []string{"approval_status", "date"}},
}

// AddIndexes creates the composite indexes that are missing. It works on every supported dialect.
func AddIndexes(db *gorm.DB) error {
	migrator := db.Migrator()
	for _, idx := range compositeIndexes {
		if migrator.HasIndex(idx.model, idx.name) {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, strings.Join(idx.columns, ", "))
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.Printf("Created index %s on %s(%s)", idx.name, idx.table, strings.Join(idx.columns, ", "))
	}

	return nil
}
